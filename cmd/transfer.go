package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"personal-ledger/app"
	"personal-ledger/domain"
)

// Variables to hold flag values for transfer commands
var (
	txID          string
	txFromID      string
	txToID        string
	txAmountStr   string
	txDateStr     string
	txDescription string
)

// transferCmd represents the transfer command group
var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Move money between two of your accounts",
	Long: `Provides commands to record, change and delete transfers. A transfer
withdraws from the origin and deposits into the destination in one commit; if
the origin lacks funds nothing is written.`,
}

var transferAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a new transfer",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(txAmountStr)
		if err != nil {
			return err
		}
		date, err := parseDate(txDateStr)
		if err != nil {
			return err
		}
		id, err := ledger.CreateTransfer(cmd.Context(), app.CreateTransferCommand{
			TransferID:           txID,
			OwnerID:              ownerFlag,
			OriginAccountID:      txFromID,
			DestinationAccountID: txToID,
			Amount:               amount,
			Date:                 date,
			Description:          txDescription,
		})
		if err != nil {
			return fmt.Errorf("failed to transfer funds: %w", err)
		}
		fmt.Printf("Transferred %s from '%s' to '%s' (transfer '%s').\n", amount.StringFixed(domain.AmountScale), txFromID, txToID, id)
		return nil
	},
}

var transferUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change the accounts, amount, date or description of a transfer",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(txAmountStr)
		if err != nil {
			return err
		}
		date, err := parseDate(txDateStr)
		if err != nil {
			return err
		}
		err = ledger.UpdateTransfer(cmd.Context(), app.UpdateTransferCommand{
			TransferID:           txID,
			OwnerID:              ownerFlag,
			OriginAccountID:      txFromID,
			DestinationAccountID: txToID,
			Amount:               amount,
			Date:                 date,
			Description:          txDescription,
		})
		if err != nil {
			return fmt.Errorf("failed to update transfer: %w", err)
		}
		fmt.Printf("Updated transfer '%s'.\n", txID)
		return nil
	},
}

var transferDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a transfer and revert both legs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.DeleteTransfer(cmd.Context(), app.DeleteTransferCommand{TransferID: txID, OwnerID: ownerFlag}); err != nil {
			return fmt.Errorf("failed to delete transfer: %w", err)
		}
		fmt.Printf("Deleted transfer '%s'.\n", txID)
		return nil
	},
}

var transferShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show one transfer",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := ledger.GetTransfer(cmd.Context(), app.GetTransferQuery{TransferID: txID, OwnerID: ownerFlag})
		if err != nil {
			return fmt.Errorf("failed to get transfer: %w", err)
		}
		printTransfer(t)
		return nil
	},
}

var transferListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transfers (search by description, sort by date or amount)",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := ledger.ListTransfers(cmd.Context(), app.ListTransfersQuery{OwnerID: ownerFlag, Page: pageRequest()})
		if err != nil {
			return fmt.Errorf("failed to list transfers: %w", err)
		}
		printPageHeader("Transfers", page.Page, page.PageSize, page.Total, len(page.Items))
		for _, t := range page.Items {
			printTransfer(t)
		}
		return nil
	},
}

func printTransfer(t *domain.Transfer) {
	fmt.Printf("  %-36s  %s  %s -> %s  %10s  %s\n",
		t.ID, formatDate(t.Date), t.OriginAccountID, t.DestinationAccountID, t.Amount.StringFixed(domain.AmountScale), t.Description)
}

func init() {
	rootCmd.AddCommand(transferCmd)
	transferCmd.AddCommand(transferAddCmd, transferUpdateCmd, transferDeleteCmd, transferShowCmd, transferListCmd)

	for _, c := range []*cobra.Command{transferAddCmd, transferUpdateCmd} {
		c.Flags().StringVar(&txFromID, "from", "", "Origin account ID (required)")
		c.Flags().StringVar(&txToID, "to", "", "Destination account ID (required)")
		c.Flags().StringVarP(&txAmountStr, "amount", "a", "", "Amount to transfer (required)")
		c.Flags().StringVar(&txDateStr, "date", "", "Date as YYYY-MM-DD (defaults to today on add, kept on update)")
		c.Flags().StringVar(&txDescription, "desc", "", "Description")
		_ = c.MarkFlagRequired("from")
		_ = c.MarkFlagRequired("to")
		_ = c.MarkFlagRequired("amount")
	}
	transferAddCmd.Flags().StringVar(&txID, "id", "", "Optional ID (UUID generated if empty)")
	for _, c := range []*cobra.Command{transferUpdateCmd, transferDeleteCmd, transferShowCmd} {
		c.Flags().StringVar(&txID, "id", "", "Transfer ID (required)")
		_ = c.MarkFlagRequired("id")
	}
	addPageFlags(transferListCmd)
}
