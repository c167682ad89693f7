package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"personal-ledger/domain"
	"personal-ledger/recurring"
)

var (
	schedID          string
	schedTarget      string
	schedFrequency   string
	schedAccountID   string
	schedDestination string
	schedAmountStr   string
	schedStartStr    string
	schedEndStr      string
	schedDescription string
	schedAtStr       string
	schedInterval    time.Duration
)

// scheduleCmd represents the schedule command group
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Recurring expenses, incomes and transfers",
	Long: `Schedules book an ordinary expense, income or transfer every time they come
due. Schedules live in memory, so use them from the REPL or keep "schedule
watch" running.`,
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a recurring schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := recurring.ParseTarget(schedTarget)
		if err != nil {
			return err
		}
		freq, err := recurring.ParseFrequency(schedFrequency)
		if err != nil {
			return err
		}
		amount, err := parseAmount(schedAmountStr)
		if err != nil {
			return err
		}
		start, err := parseDate(schedStartStr)
		if err != nil {
			return err
		}
		if start.IsZero() {
			start = time.Now().UTC()
		}
		end, err := parseDate(schedEndStr)
		if err != nil {
			return err
		}
		id, err := scheduler.Add(recurring.Schedule{
			ID:                   schedID,
			OwnerID:              ownerFlag,
			Target:               target,
			AccountID:            schedAccountID,
			DestinationAccountID: schedDestination,
			Amount:               amount,
			Description:          schedDescription,
			Frequency:            freq,
			Start:                start,
			EndDate:              end,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Schedule '%s' added: %s %s of %s starting %s.\n", id, freq, target, amount.StringFixed(domain.AmountScale), formatDate(start))
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules by next run",
	RunE: func(cmd *cobra.Command, args []string) error {
		schedules := scheduler.List(ownerFlag)
		if len(schedules) == 0 {
			fmt.Println("No schedules.")
			return nil
		}
		for _, s := range schedules {
			next := formatDate(s.NextRun())
			if s.Finished() {
				next = "finished"
			}
			fmt.Printf("  %-36s  %-8s  %-8s  %10s  next %s  (%d issued)\n",
				s.ID, s.Frequency, s.Target, s.Amount.StringFixed(domain.AmountScale), next, s.Issued)
		}
		return nil
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := scheduler.Remove(schedID); err != nil {
			return err
		}
		fmt.Printf("Schedule '%s' removed.\n", schedID)
		return nil
	},
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Book every occurrence due up to --at (default now)",
	RunE: func(cmd *cobra.Command, args []string) error {
		at := time.Now().UTC()
		if schedAtStr != "" {
			var err error
			if at, err = parseDate(schedAtStr); err != nil {
				return err
			}
		}
		n, err := scheduler.RunDue(cmd.Context(), at)
		fmt.Printf("Booked %d occurrence(s) due by %s.\n", n, formatDate(at))
		return err
	},
}

var scheduleWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep booking due occurrences until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		scheduler.Start(ctx, schedInterval)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleRemoveCmd, scheduleRunCmd, scheduleWatchCmd)

	f := scheduleAddCmd.Flags()
	f.StringVar(&schedID, "id", "", "Optional schedule ID")
	f.StringVar(&schedTarget, "type", "expense", "What to book: expense, income or transfer")
	f.StringVar(&schedFrequency, "every", "monthly", "Frequency: daily, weekly, monthly or yearly")
	f.StringVar(&schedAccountID, "account", "", "Account ID, or origin for transfers (required)")
	f.StringVar(&schedDestination, "to", "", "Destination account for transfers")
	f.StringVarP(&schedAmountStr, "amount", "a", "", "Amount per occurrence (required)")
	f.StringVar(&schedStartStr, "start", "", "First occurrence as YYYY-MM-DD (defaults to today)")
	f.StringVar(&schedEndStr, "end", "", "Last possible occurrence as YYYY-MM-DD")
	f.StringVar(&schedDescription, "desc", "", "Description for booked movements")
	_ = scheduleAddCmd.MarkFlagRequired("account")
	_ = scheduleAddCmd.MarkFlagRequired("amount")

	scheduleRemoveCmd.Flags().StringVar(&schedID, "id", "", "Schedule ID (required)")
	_ = scheduleRemoveCmd.MarkFlagRequired("id")

	scheduleRunCmd.Flags().StringVar(&schedAtStr, "at", "", "Book occurrences due by this date (YYYY-MM-DD)")
	scheduleWatchCmd.Flags().DurationVar(&schedInterval, "interval", time.Minute, "Polling interval")
}
