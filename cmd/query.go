package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"personal-ledger/app"
	"personal-ledger/domain"
	"personal-ledger/shared"
)

// Variables for query flags
var queryAccountID string

// queryCmd represents the query command group
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query balances",
	Long:  `Provides commands to query account balances.`,
}

// balanceCmd represents the balance command
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Get an account balance, or the total over all accounts",
	Long: `Retrieves the current balance of the account given by --id. Without --id,
every account of the owner is listed with the total at the end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if queryAccountID != "" {
			acc, err := ledger.GetAccount(cmd.Context(), app.GetAccountQuery{AccountID: queryAccountID, OwnerID: ownerFlag})
			if err != nil {
				return fmt.Errorf("failed to get balance: %w", err)
			}
			fmt.Printf("Account '%s' Balance: %s\n", acc.ID, acc.Balance.StringFixed(domain.AmountScale))
			return nil
		}

		total := decimal.Zero
		count := 0
		req := shared.PageRequest{Page: 1, PageSize: shared.MaxPageSize, SortBy: "name"}
		for {
			page, err := ledger.ListAccounts(cmd.Context(), app.ListAccountsQuery{OwnerID: ownerFlag, Page: req})
			if err != nil {
				return fmt.Errorf("failed to get balances: %w", err)
			}
			for _, acc := range page.Items {
				fmt.Printf("  %-20s  %12s\n", acc.Name, acc.Balance.StringFixed(domain.AmountScale))
				total = total.Add(acc.Balance)
				count++
			}
			if len(page.Items) == 0 || count >= page.Total {
				break
			}
			req.Page++
		}
		if count == 0 {
			fmt.Printf("Owner '%s' has no accounts.\n", ownerFlag)
			return nil
		}
		fmt.Printf("Total over %d account(s): %s\n", count, total.StringFixed(domain.AmountScale))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVar(&queryAccountID, "id", "", "Account ID to query (all accounts when empty)")
}
