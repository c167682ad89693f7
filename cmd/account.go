package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"personal-ledger/app"
	"personal-ledger/domain"
)

var (
	accountID      string
	accountName    string
	openingBalance string
)

// accountCmd represents the account command group
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage accounts",
	Long:  `Provides commands to create, rename, show and list accounts.`,
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	Long: `Creates a new account with an optional ID, name and opening balance.
If --id is not provided, a new UUID will be generated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opening := decimal.Zero
		if openingBalance != "" {
			d, err := decimal.NewFromString(openingBalance)
			if err != nil {
				return fmt.Errorf("invalid opening balance %q: %w", openingBalance, err)
			}
			opening = d
		}
		id, err := ledger.CreateAccount(cmd.Context(), app.CreateAccountCommand{
			AccountID:      accountID,
			OwnerID:        ownerFlag,
			Name:           accountName,
			OpeningBalance: opening,
		})
		if err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		fmt.Printf("Account '%s' created with balance %s.\n", id, opening.StringFixed(domain.AmountScale))
		return nil
	},
}

var accountRenameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Rename an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := ledger.RenameAccount(cmd.Context(), app.RenameAccountCommand{
			AccountID: accountID,
			OwnerID:   ownerFlag,
			Name:      accountName,
		})
		if err != nil {
			return fmt.Errorf("failed to rename account: %w", err)
		}
		fmt.Printf("Account '%s' renamed to %q.\n", accountID, accountName)
		return nil
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show one account and its balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		acc, err := ledger.GetAccount(cmd.Context(), app.GetAccountQuery{AccountID: accountID, OwnerID: ownerFlag})
		if err != nil {
			return fmt.Errorf("failed to get account: %w", err)
		}
		printAccount(acc)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts (search by name, sort by name or balance)",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := ledger.ListAccounts(cmd.Context(), app.ListAccountsQuery{OwnerID: ownerFlag, Page: pageRequest()})
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
		printPageHeader("Accounts", page.Page, page.PageSize, page.Total, len(page.Items))
		for _, acc := range page.Items {
			printAccount(acc)
		}
		return nil
	},
}

func printAccount(acc *domain.Account) {
	fmt.Printf("  %-36s  %-20s  %12s  (v%d)\n", acc.ID, acc.Name, acc.Balance.StringFixed(domain.AmountScale), acc.Version)
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd, accountRenameCmd, accountShowCmd, accountListCmd)

	accountCreateCmd.Flags().StringVar(&accountID, "id", "", "Optional unique ID for the account (UUID generated if empty)")
	accountCreateCmd.Flags().StringVar(&accountName, "name", "", "Display name (defaults to the ID)")
	accountCreateCmd.Flags().StringVarP(&openingBalance, "balance", "b", "", "Opening balance, e.g. 100.50")

	accountRenameCmd.Flags().StringVar(&accountID, "id", "", "Account ID (required)")
	accountRenameCmd.Flags().StringVar(&accountName, "name", "", "New name (required)")
	_ = accountRenameCmd.MarkFlagRequired("id")
	_ = accountRenameCmd.MarkFlagRequired("name")

	accountShowCmd.Flags().StringVar(&accountID, "id", "", "Account ID (required)")
	_ = accountShowCmd.MarkFlagRequired("id")

	addPageFlags(accountListCmd)
}
