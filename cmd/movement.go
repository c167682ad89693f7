package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"personal-ledger/app"
	"personal-ledger/domain"
	"personal-ledger/events"
)

// Flag values shared by the expense and income command groups.
var (
	mvID          string
	mvAccountID   string
	mvAmountStr   string
	mvDateStr     string
	mvDescription string
)

// newMovementCmd builds the command group for one movement kind. Expenses
// and incomes take the same flags and differ only in which way they move
// the account balance.
func newMovementCmd(kind events.MovementKind) *cobra.Command {
	name := strings.ToLower(string(kind))
	group := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Record and manage %ss", name),
	}

	add := &cobra.Command{
		Use:   "add",
		Short: fmt.Sprintf("Record a new %s", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(mvAmountStr)
			if err != nil {
				return err
			}
			date, err := parseDate(mvDateStr)
			if err != nil {
				return err
			}
			id, err := ledger.CreateMovement(cmd.Context(), app.CreateMovementCommand{
				MovementID:  mvID,
				OwnerID:     ownerFlag,
				Kind:        kind,
				AccountID:   mvAccountID,
				Amount:      amount,
				Date:        date,
				Description: mvDescription,
			})
			if err != nil {
				return fmt.Errorf("failed to record %s: %w", name, err)
			}
			fmt.Printf("Recorded %s '%s' of %s on account '%s'.\n", name, id, amount.StringFixed(domain.AmountScale), mvAccountID)
			return nil
		},
	}

	update := &cobra.Command{
		Use:   "update",
		Short: fmt.Sprintf("Change the account, amount, date or description of a %s", name),
		Long: `Replaces the movement details. Moving it to another account or changing the
amount reverts the old effect and applies the new one in the same commit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(mvAmountStr)
			if err != nil {
				return err
			}
			date, err := parseDate(mvDateStr)
			if err != nil {
				return err
			}
			err = ledger.UpdateMovement(cmd.Context(), app.UpdateMovementCommand{
				MovementID:  mvID,
				OwnerID:     ownerFlag,
				Kind:        kind,
				AccountID:   mvAccountID,
				Amount:      amount,
				Date:        date,
				Description: mvDescription,
			})
			if err != nil {
				return fmt.Errorf("failed to update %s: %w", name, err)
			}
			fmt.Printf("Updated %s '%s'.\n", name, mvID)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: fmt.Sprintf("Delete a %s and revert its effect on the balance", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ledger.DeleteMovement(cmd.Context(), app.DeleteMovementCommand{MovementID: mvID, OwnerID: ownerFlag, Kind: kind}); err != nil {
				return fmt.Errorf("failed to delete %s: %w", name, err)
			}
			fmt.Printf("Deleted %s '%s'.\n", name, mvID)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: fmt.Sprintf("Show one %s", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ledger.GetMovement(cmd.Context(), app.GetMovementQuery{MovementID: mvID, OwnerID: ownerFlag, Kind: kind})
			if err != nil {
				return fmt.Errorf("failed to get %s: %w", name, err)
			}
			printMovement(m)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %ss (search by description, sort by date or amount)", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := ledger.ListMovements(cmd.Context(), app.ListMovementsQuery{OwnerID: ownerFlag, Kind: kind, Page: pageRequest()})
			if err != nil {
				return fmt.Errorf("failed to list %ss: %w", name, err)
			}
			printPageHeader(string(domain.MovementEntityType(kind))+"s", page.Page, page.PageSize, page.Total, len(page.Items))
			for _, m := range page.Items {
				printMovement(m)
			}
			return nil
		},
	}

	for _, c := range []*cobra.Command{add, update} {
		c.Flags().StringVar(&mvAccountID, "account", "", "Account ID (required)")
		c.Flags().StringVarP(&mvAmountStr, "amount", "a", "", "Amount, e.g. 12.50 (required)")
		c.Flags().StringVar(&mvDateStr, "date", "", "Date as YYYY-MM-DD (defaults to today on add, kept on update)")
		c.Flags().StringVar(&mvDescription, "desc", "", "Description")
		_ = c.MarkFlagRequired("account")
		_ = c.MarkFlagRequired("amount")
	}
	add.Flags().StringVar(&mvID, "id", "", "Optional ID (UUID generated if empty)")
	for _, c := range []*cobra.Command{update, del, show} {
		c.Flags().StringVar(&mvID, "id", "", fmt.Sprintf("%s ID (required)", name))
		_ = c.MarkFlagRequired("id")
	}
	addPageFlags(list)

	group.AddCommand(add, update, del, show, list)
	return group
}

func printMovement(m *domain.Movement) {
	fmt.Printf("  %-36s  %s  %-8s  %-20s  %10s  %s\n",
		m.ID, formatDate(m.Date), m.Kind, m.AccountID, m.Amount.StringFixed(domain.AmountScale), m.Description)
}

func init() {
	rootCmd.AddCommand(newMovementCmd(events.Expense), newMovementCmd(events.Income))
}
