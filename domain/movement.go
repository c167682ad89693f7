package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"personal-ledger/events"
	"personal-ledger/shared"
)

// Movement is a single-account money event: an Expense withdraws from its
// account, an Income deposits into it. Balance effects are not applied here;
// the movement only records what happened.
type Movement struct {
	events.Recorder `json:"-"`

	ID          string              `json:"id"`
	OwnerID     string              `json:"ownerId"`
	Kind        events.MovementKind `json:"kind"`
	AccountID   string              `json:"accountId"`
	Amount      decimal.Decimal     `json:"amount"`
	Date        time.Time           `json:"date"`
	Description string              `json:"description"`
	Version     int                 `json:"version"`
}

type MovementDetails struct {
	AccountID   string
	Amount      decimal.Decimal
	Date        time.Time
	Description string
}

func validateMovement(kind events.MovementKind, d MovementDetails) error {
	if kind != events.Expense && kind != events.Income {
		return NewDomainError("unknown movement kind %q", kind)
	}
	if d.AccountID == "" {
		return NewDomainError("%s must reference an account", strings.ToLower(string(kind)))
	}
	return ValidateAmount(d.Amount)
}

// NewMovement creates a movement and records its Created event.
func NewMovement(id, ownerID string, kind events.MovementKind, d MovementDetails) (*Movement, error) {
	if id == "" {
		return nil, NewDomainError("movement ID cannot be empty")
	}
	if ownerID == "" {
		return nil, NewDomainError("movement owner cannot be empty")
	}
	if err := validateMovement(kind, d); err != nil {
		return nil, err
	}
	if d.Date.IsZero() {
		d.Date = time.Now().UTC()
	}
	m := &Movement{
		ID:          id,
		OwnerID:     ownerID,
		Kind:        kind,
		AccountID:   d.AccountID,
		Amount:      d.Amount,
		Date:        d.Date,
		Description: d.Description,
	}
	m.Record(events.NewMovementCreated(m.ID, m.OwnerID, m.Kind, m.leg()))
	return m, nil
}

func NewExpense(id, ownerID string, d MovementDetails) (*Movement, error) {
	return NewMovement(id, ownerID, events.Expense, d)
}

func NewIncome(id, ownerID string, d MovementDetails) (*Movement, error) {
	return NewMovement(id, ownerID, events.Income, d)
}

// Update replaces the movement's details. An Updated event is recorded only
// when the account or the amount changed; date or description edits have no
// balance effect.
func (m *Movement) Update(d MovementDetails) error {
	if err := validateMovement(m.Kind, d); err != nil {
		return err
	}
	before := m.leg()

	m.AccountID = d.AccountID
	m.Amount = d.Amount
	if !d.Date.IsZero() {
		m.Date = d.Date
	}
	m.Description = d.Description

	after := m.leg()
	if !before.Equal(after) {
		m.Record(events.NewMovementUpdated(m.ID, m.OwnerID, m.Kind, before, after))
	}
	return nil
}

// DeletedEvent describes the removal of this movement from its last known state.
func (m *Movement) DeletedEvent() events.MovementDeletedEvent {
	return events.NewMovementDeleted(m.ID, m.OwnerID, m.Kind, m.leg())
}

func (m *Movement) leg() events.Leg {
	return events.Leg{AccountID: m.AccountID, Amount: m.Amount}
}

func (m *Movement) EntityID() string { return m.ID }

func (m *Movement) EntityType() shared.EntityType {
	return MovementEntityType(m.Kind)
}

func (m *Movement) Owner() string       { return m.OwnerID }
func (m *Movement) CurrentVersion() int { return m.Version }
func (m *Movement) SetVersion(v int)    { m.Version = v }

// MovementEntityType maps a movement kind onto its cache/storage entity type.
func MovementEntityType(kind events.MovementKind) shared.EntityType {
	switch kind {
	case events.Income:
		return shared.IncomeEntity
	default:
		return shared.ExpenseEntity
	}
}

// ParseMovementKind accepts "expense" or "income" in any case.
func ParseMovementKind(s string) (events.MovementKind, error) {
	switch strings.ToLower(s) {
	case "expense":
		return events.Expense, nil
	case "income":
		return events.Income, nil
	}
	return "", fmt.Errorf("unknown movement kind %q", s)
}
