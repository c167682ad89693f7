package recurring_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"personal-ledger/app"
	"personal-ledger/balance"
	"personal-ledger/domain"
	"personal-ledger/events"
	"personal-ledger/recurring"
	"personal-ledger/store"
	"personal-ledger/uow"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

// fakeCreator records issued commands and can be told to fail.
type fakeCreator struct {
	movements []app.CreateMovementCommand
	transfers []app.CreateTransferCommand
	seen      map[string]bool
	fail      error
}

func newFakeCreator() *fakeCreator {
	return &fakeCreator{seen: make(map[string]bool)}
}

func (f *fakeCreator) CreateMovement(_ context.Context, cmd app.CreateMovementCommand) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	if f.seen[cmd.MovementID] {
		return "", fmt.Errorf("%w: movement %s", store.ErrDuplicate, cmd.MovementID)
	}
	f.seen[cmd.MovementID] = true
	f.movements = append(f.movements, cmd)
	return cmd.MovementID, nil
}

func (f *fakeCreator) CreateTransfer(_ context.Context, cmd app.CreateTransferCommand) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.seen[cmd.TransferID] = true
	f.transfers = append(f.transfers, cmd)
	return cmd.TransferID, nil
}

func rent(start string) recurring.Schedule {
	return recurring.Schedule{
		ID:        "rent",
		OwnerID:   "owner-1",
		Target:    recurring.ExpenseTarget,
		AccountID: "checking",
		Amount:    dec("900"),
		Frequency: recurring.Monthly,
		Start:     day(start),
	}
}

func TestFrequency_Occurrence(t *testing.T) {
	tests := []struct {
		name  string
		freq  recurring.Frequency
		start string
		n     int
		want  string
	}{
		{"DailyFirst", recurring.Daily, "2024-03-01", 0, "2024-03-01"},
		{"Daily", recurring.Daily, "2024-02-28", 2, "2024-03-01"},
		{"Weekly", recurring.Weekly, "2024-01-01", 3, "2024-01-22"},
		{"MonthlyLeapClamp", recurring.Monthly, "2024-01-31", 1, "2024-02-29"},
		{"MonthlyClamp", recurring.Monthly, "2023-01-31", 1, "2023-02-28"},
		{"MonthlyRecoversAnchor", recurring.Monthly, "2024-01-31", 2, "2024-03-31"},
		{"MonthlyAcrossYear", recurring.Monthly, "2024-11-30", 3, "2025-02-28"},
		{"YearlyLeapDay", recurring.Yearly, "2024-02-29", 1, "2025-02-28"},
		{"YearlyBackOnLeap", recurring.Yearly, "2024-02-29", 4, "2028-02-29"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.freq.Occurrence(day(tt.start), tt.n)
			if !got.Equal(day(tt.want)) {
				t.Errorf("Occurrence(%s, %d) = %s, want %s", tt.start, tt.n, got.Format(time.DateOnly), tt.want)
			}
		})
	}
}

func TestParseFrequencyAndTarget(t *testing.T) {
	if f, err := recurring.ParseFrequency(" Monthly "); err != nil || f != recurring.Monthly {
		t.Errorf("ParseFrequency = %q, %v", f, err)
	}
	if _, err := recurring.ParseFrequency("hourly"); err == nil {
		t.Error("expected error for unknown frequency")
	}
	if tg, err := recurring.ParseTarget("TRANSFER"); err != nil || tg != recurring.TransferTarget {
		t.Errorf("ParseTarget = %q, %v", tg, err)
	}
	if _, err := recurring.ParseTarget("refund"); err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestRunner_Add(t *testing.T) {
	r := recurring.NewRunner(newFakeCreator())

	t.Run("GeneratesID", func(t *testing.T) {
		s := rent("2024-01-01")
		s.ID = ""
		id, err := r.Add(s)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if id == "" {
			t.Error("expected a generated ID")
		}
	})

	t.Run("RejectsDuplicate", func(t *testing.T) {
		if _, err := r.Add(rent("2024-01-01")); err != nil {
			t.Fatalf("first Add failed: %v", err)
		}
		if _, err := r.Add(rent("2024-01-01")); !errors.Is(err, store.ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	})

	invalid := map[string]func(s *recurring.Schedule){
		"NoOwner":          func(s *recurring.Schedule) { s.OwnerID = "" },
		"NoAccount":        func(s *recurring.Schedule) { s.AccountID = "" },
		"NoStart":          func(s *recurring.Schedule) { s.Start = time.Time{} },
		"EndBeforeStart":   func(s *recurring.Schedule) { s.EndDate = s.Start.AddDate(0, 0, -1) },
		"ZeroAmount":       func(s *recurring.Schedule) { s.Amount = decimal.Zero },
		"UnknownFrequency": func(s *recurring.Schedule) { s.Frequency = "hourly" },
		"TransferNoDest":   func(s *recurring.Schedule) { s.Target = recurring.TransferTarget },
		"TransferSameAccount": func(s *recurring.Schedule) {
			s.Target = recurring.TransferTarget
			s.DestinationAccountID = s.AccountID
		},
	}
	for name, mutate := range invalid {
		t.Run(name, func(t *testing.T) {
			s := rent("2024-01-01")
			s.ID = "invalid-" + name
			mutate(&s)
			if _, err := r.Add(s); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestRunner_RunDue(t *testing.T) {
	ctx := context.Background()

	t.Run("IssuesEveryDueOccurrence", func(t *testing.T) {
		c := newFakeCreator()
		r := recurring.NewRunner(c)
		if _, err := r.Add(rent("2024-01-31")); err != nil {
			t.Fatal(err)
		}

		n, err := r.RunDue(ctx, day("2024-03-31"))
		if err != nil {
			t.Fatalf("RunDue failed: %v", err)
		}
		if n != 3 {
			t.Fatalf("expected 3 occurrences, got %d", n)
		}
		wantDates := []string{"2024-01-31", "2024-02-29", "2024-03-31"}
		for i, cmd := range c.movements {
			if !cmd.Date.Equal(day(wantDates[i])) {
				t.Errorf("occurrence %d dated %s, want %s", i+1, cmd.Date.Format(time.DateOnly), wantDates[i])
			}
			if cmd.MovementID != fmt.Sprintf("rent-%d", i+1) {
				t.Errorf("occurrence %d has ID %s", i+1, cmd.MovementID)
			}
			if cmd.Kind != events.Expense || cmd.OwnerID != "owner-1" || !cmd.Amount.Equal(dec("900")) {
				t.Errorf("unexpected command: %+v", cmd)
			}
		}

		n, _ = r.RunDue(ctx, day("2024-04-29"))
		if n != 0 {
			t.Errorf("nothing should be due before Apr 30, got %d", n)
		}
		s, _ := r.Get("rent")
		if !s.NextRun().Equal(day("2024-04-30")) {
			t.Errorf("expected next run on Apr 30, got %s", s.NextRun().Format(time.DateOnly))
		}
	})

	t.Run("StopsAtEndDate", func(t *testing.T) {
		c := newFakeCreator()
		r := recurring.NewRunner(c)
		s := rent("2024-01-01")
		s.Frequency = recurring.Weekly
		s.EndDate = day("2024-01-15")
		if _, err := r.Add(s); err != nil {
			t.Fatal(err)
		}
		n, err := r.RunDue(ctx, day("2024-12-31"))
		if err != nil || n != 3 {
			t.Fatalf("expected 3 occurrences up to the inclusive end date, got %d (%v)", n, err)
		}
		got, _ := r.Get("rent")
		if !got.Finished() {
			t.Error("schedule should be finished")
		}
	})

	t.Run("DuplicateCountsAsIssued", func(t *testing.T) {
		c := newFakeCreator()
		c.seen["rent-1"] = true
		r := recurring.NewRunner(c)
		if _, err := r.Add(rent("2024-01-01")); err != nil {
			t.Fatal(err)
		}
		n, err := r.RunDue(ctx, day("2024-02-01"))
		if err != nil {
			t.Fatalf("RunDue failed: %v", err)
		}
		if n != 1 || len(c.movements) != 1 || c.movements[0].MovementID != "rent-2" {
			t.Errorf("expected only the second occurrence to be booked, got %d: %+v", n, c.movements)
		}
		s, _ := r.Get("rent")
		if s.Issued != 2 {
			t.Errorf("expected both occurrences to count as issued, got %d", s.Issued)
		}
	})

	t.Run("FailureHoldsSchedule", func(t *testing.T) {
		c := newFakeCreator()
		r := recurring.NewRunner(c)
		if _, err := r.Add(rent("2024-01-01")); err != nil {
			t.Fatal(err)
		}
		salary := rent("2024-01-01")
		salary.ID = "salary"
		salary.Target = recurring.TransferTarget
		salary.DestinationAccountID = "savings"
		if _, err := r.Add(salary); err != nil {
			t.Fatal(err)
		}

		c.fail = errors.New("store unavailable")
		n, err := r.RunDue(ctx, day("2024-02-15"))
		if err == nil || n != 0 {
			t.Fatalf("expected failures and no issued commands, got %d (%v)", n, err)
		}
		s, _ := r.Get("rent")
		if s.Issued != 0 {
			t.Errorf("failed occurrence must not advance the schedule, got %d", s.Issued)
		}

		c.fail = nil
		n, err = r.RunDue(ctx, day("2024-02-15"))
		if err != nil || n != 4 {
			t.Errorf("expected the retry to issue 4 commands, got %d (%v)", n, err)
		}
		if len(c.transfers) != 2 || c.transfers[0].DestinationAccountID != "savings" {
			t.Errorf("unexpected transfers: %+v", c.transfers)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		r := recurring.NewRunner(newFakeCreator())
		if _, err := r.Add(rent("2024-01-01")); err != nil {
			t.Fatal(err)
		}
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		n, err := r.RunDue(cctx, day("2024-06-01"))
		if !errors.Is(err, context.Canceled) || n != 0 {
			t.Errorf("expected context.Canceled and nothing issued, got %d (%v)", n, err)
		}
	})
}

func TestRunner_ListAndRemove(t *testing.T) {
	r := recurring.NewRunner(newFakeCreator())
	late := rent("2024-05-01")
	late.ID = "b-late"
	early := rent("2024-02-01")
	early.ID = "c-early"
	tie := rent("2024-02-01")
	tie.ID = "a-tie"
	other := rent("2024-01-01")
	other.ID = "other"
	other.OwnerID = "owner-2"
	for _, s := range []recurring.Schedule{late, early, tie, other} {
		if _, err := r.Add(s); err != nil {
			t.Fatal(err)
		}
	}

	got := r.List("owner-1")
	want := []string{"a-tie", "c-early", "b-late"}
	if len(got) != len(want) {
		t.Fatalf("expected %d schedules, got %d", len(want), len(got))
	}
	for i, s := range got {
		if s.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], s.ID)
		}
	}

	if err := r.Remove("a-tie"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := r.Remove("a-tie"); !errors.Is(err, recurring.ErrScheduleNotFound) {
		t.Errorf("expected ErrScheduleNotFound, got %v", err)
	}
	if _, err := r.Get("a-tie"); !errors.Is(err, recurring.ErrScheduleNotFound) {
		t.Errorf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestRunner_AgainstLedger(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	units := uow.NewFactory(st, uow.Options{}, func(bus *events.Bus, u *uow.UnitOfWork) {
		balance.NewHandlers(u, balance.SkipMissing).Register(bus)
	})
	svc := app.NewLedgerService(units, nil, app.Options{})
	if _, err := svc.CreateAccount(ctx, app.CreateAccountCommand{AccountID: "checking", OwnerID: "owner-1", OpeningBalance: dec("2000")}); err != nil {
		t.Fatal(err)
	}

	r := recurring.NewRunner(svc)
	if _, err := r.Add(rent("2024-01-01")); err != nil {
		t.Fatal(err)
	}
	n, err := r.RunDue(ctx, day("2024-03-01"))
	if n != 2 {
		t.Errorf("expected two rents to fit, got %d", n)
	}
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("expected the third rent to fail with insufficient funds, got %v", err)
	}
	acc, err := svc.GetAccount(ctx, app.GetAccountQuery{AccountID: "checking", OwnerID: "owner-1"})
	if err != nil {
		t.Fatal(err)
	}
	if !acc.Balance.Equal(dec("200")) {
		t.Errorf("expected 200 left, got %s", acc.Balance)
	}

	// Replaying after a restart books nothing twice.
	replay := recurring.NewRunner(svc)
	if _, err := replay.Add(rent("2024-01-01")); err != nil {
		t.Fatal(err)
	}
	n, _ = replay.RunDue(ctx, day("2024-02-01"))
	if n != 0 {
		t.Errorf("replayed occurrences must be skipped, got %d", n)
	}
}
