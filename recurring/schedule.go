// Package recurring keeps scheduled expenses, incomes and transfers and turns
// every due occurrence into an ordinary create command.
package recurring

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"personal-ledger/domain"
	"personal-ledger/events"
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Daily, Weekly, Monthly, Yearly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q (want daily, weekly, monthly or yearly)", s)
}

// Occurrence returns the n-th run counted from start. Monthly and yearly
// runs clamp to the last day of a shorter month instead of spilling over,
// so a schedule anchored on the 31st fires on Feb 28 and then Mar 31.
func (f Frequency) Occurrence(start time.Time, n int) time.Time {
	switch f {
	case Daily:
		return start.AddDate(0, 0, n)
	case Weekly:
		return start.AddDate(0, 0, 7*n)
	case Monthly:
		return addMonths(start, n)
	case Yearly:
		return addMonths(start, 12*n)
	}
	return start
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(d, last)-1)
}

// Target says what a schedule creates.
type Target string

const (
	ExpenseTarget  Target = "expense"
	IncomeTarget   Target = "income"
	TransferTarget Target = "transfer"
)

func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case ExpenseTarget, IncomeTarget, TransferTarget:
		return t, nil
	}
	return "", fmt.Errorf("unknown schedule target %q (want expense, income or transfer)", s)
}

func (t Target) movementKind() events.MovementKind {
	if t == IncomeTarget {
		return events.Income
	}
	return events.Expense
}

type Schedule struct {
	ID      string
	OwnerID string
	Target  Target
	// AccountID is the movement account, or the origin of a transfer.
	AccountID            string
	DestinationAccountID string
	Amount               decimal.Decimal
	Description          string
	Frequency            Frequency
	Start                time.Time
	// EndDate is inclusive; the zero value means open-ended.
	EndDate time.Time
	// Issued counts occurrences already turned into commands.
	Issued int
}

var ErrScheduleNotFound = errors.New("schedule not found")

func (s Schedule) validate() error {
	if s.OwnerID == "" {
		return errors.New("schedule owner is required")
	}
	if s.AccountID == "" {
		return errors.New("schedule account is required")
	}
	if s.Start.IsZero() {
		return errors.New("schedule start is required")
	}
	if !s.EndDate.IsZero() && s.EndDate.Before(s.Start) {
		return fmt.Errorf("schedule ends %s before it starts %s", s.EndDate.Format(time.DateOnly), s.Start.Format(time.DateOnly))
	}
	if _, err := ParseFrequency(string(s.Frequency)); err != nil {
		return err
	}
	if _, err := ParseTarget(string(s.Target)); err != nil {
		return err
	}
	if s.Target == TransferTarget {
		if s.DestinationAccountID == "" {
			return errors.New("transfer schedule needs a destination account")
		}
		if s.DestinationAccountID == s.AccountID {
			return domain.ErrSameAccount
		}
	}
	return domain.ValidateAmount(s.Amount)
}

// NextRun is the date of the next occurrence to issue.
func (s Schedule) NextRun() time.Time {
	return s.Frequency.Occurrence(s.Start, s.Issued)
}

// Finished reports whether the next occurrence falls after the end date.
func (s Schedule) Finished() bool {
	return !s.EndDate.IsZero() && s.NextRun().After(s.EndDate)
}

// occurrenceID is deterministic so a replayed run hits a duplicate instead of
// booking the same occurrence twice.
func (s Schedule) occurrenceID() string {
	return fmt.Sprintf("%s-%d", s.ID, s.Issued+1)
}
