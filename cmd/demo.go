package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"personal-ledger/app"
	"personal-ledger/domain"
	"personal-ledger/events"
	"personal-ledger/recurring"
	"personal-ledger/shared"
)

// demoCmd walks through the main flows against the configured store under a
// throwaway owner, so it never touches existing data.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted walkthrough of the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.Context(), ledger, "demo-"+uuid.NewString()[:8])
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(ctx context.Context, svc *app.LedgerService, owner string) error {
	fmt.Printf("\n--- Simulating Operations (owner %s) ---\n", owner)

	fmt.Println("\n[Step 1] Creating Accounts...")
	checking, err := svc.CreateAccount(ctx, app.CreateAccountCommand{OwnerID: owner, Name: "Checking", OpeningBalance: decimal.NewFromInt(1000)})
	if err != nil {
		return fmt.Errorf("create checking account: %w", err)
	}
	savings, err := svc.CreateAccount(ctx, app.CreateAccountCommand{OwnerID: owner, Name: "Savings", OpeningBalance: decimal.NewFromInt(250)})
	if err != nil {
		return fmt.Errorf("create savings account: %w", err)
	}
	fmt.Printf(" -> Checking: %s\n -> Savings:  %s\n", checking, savings)

	fmt.Println("\n[Step 2] Recording Income and Expenses...")
	today := time.Now().UTC().Truncate(24 * time.Hour)
	_, err = svc.CreateMovement(ctx, app.CreateMovementCommand{
		OwnerID: owner, Kind: events.Income, AccountID: checking, Amount: decimal.RequireFromString("3200.00"), Date: today, Description: "Salary",
	})
	handleOperationError("Salary into Checking", err)
	groceries, err := svc.CreateMovement(ctx, app.CreateMovementCommand{
		OwnerID: owner, Kind: events.Expense, AccountID: checking, Amount: decimal.RequireFromString("84.30"), Date: today, Description: "Groceries",
	})
	handleOperationError("Groceries from Checking", err)

	fmt.Println("\n[Step 3] Expense beyond the balance (should fail and change nothing)...")
	_, err = svc.CreateMovement(ctx, app.CreateMovementCommand{
		OwnerID: owner, Kind: events.Expense, AccountID: savings, Amount: decimal.NewFromInt(10000), Date: today, Description: "Boat",
	})
	if errors.Is(err, domain.ErrInsufficientFunds) {
		fmt.Printf(" -> Rejected as expected: %v\n", err)
	} else {
		handleOperationError("Oversized expense from Savings", err)
	}

	fmt.Println("\n[Step 4] Moving the groceries expense to Savings...")
	if groceries != "" {
		err = svc.UpdateMovement(ctx, app.UpdateMovementCommand{
			MovementID: groceries, OwnerID: owner, AccountID: savings, Amount: decimal.RequireFromString("84.30"), Date: today, Description: "Groceries",
		})
		handleOperationError("Re-point groceries to Savings", err)
	}

	fmt.Println("\n[Step 5] Transferring Money (Checking -> Savings)...")
	transfer, err := svc.CreateTransfer(ctx, app.CreateTransferCommand{
		OwnerID: owner, OriginAccountID: checking, DestinationAccountID: savings, Amount: decimal.NewFromInt(500), Date: today, Description: "Monthly saving",
	})
	handleOperationError("Transfer Checking -> Savings", err)

	fmt.Println("\n[Step 6] Deleting the transfer (both legs revert)...")
	if transfer != "" {
		err = svc.DeleteTransfer(ctx, app.DeleteTransferCommand{TransferID: transfer, OwnerID: owner})
		handleOperationError("Delete transfer", err)
	}

	fmt.Println("\n[Step 7] Recurring rent, three months back...")
	runner := recurring.NewRunner(svc)
	_, err = runner.Add(recurring.Schedule{
		OwnerID: owner, Target: recurring.ExpenseTarget, AccountID: checking, Amount: decimal.NewFromInt(900),
		Description: "Rent", Frequency: recurring.Monthly, Start: today.AddDate(0, -2, 0),
	})
	if err != nil {
		return fmt.Errorf("add rent schedule: %w", err)
	}
	n, err := runner.RunDue(ctx, today)
	handleOperationError(fmt.Sprintf("Book %d rent occurrence(s)", n), err)

	fmt.Println("\n[Step 8] Final Balances...")
	return displayBalances(ctx, svc, owner)
}

func handleOperationError(operationName string, err error) {
	if err != nil {
		log.WithError(err).Errorf("operation %q failed", operationName)
		fmt.Printf(" -> ERROR during operation '%s': %v\n", operationName, err)
	} else {
		fmt.Printf(" -> Operation '%s' successful.\n", operationName)
	}
}

func displayBalances(ctx context.Context, svc *app.LedgerService, owner string) error {
	page, err := svc.ListAccounts(ctx, app.ListAccountsQuery{OwnerID: owner, Page: shared.PageRequest{SortBy: "name"}})
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, acc := range page.Items {
		fmt.Printf("  %-10s %12s\n", acc.Name, acc.Balance.StringFixed(domain.AmountScale))
	}
	expenses, err := svc.ListMovements(ctx, app.ListMovementsQuery{OwnerID: owner, Kind: events.Expense, Page: shared.PageRequest{SortBy: "date"}})
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}
	fmt.Printf("  (%d expense(s) on record)\n", expenses.Total)
	fmt.Println("\n--- Simulation Complete ---")
	return nil
}
