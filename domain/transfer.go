package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"personal-ledger/events"
	"personal-ledger/shared"
)

// Transfer moves money from an origin account to a destination account owned
// by the same user.
type Transfer struct {
	events.Recorder `json:"-"`

	ID                   string          `json:"id"`
	OwnerID              string          `json:"ownerId"`
	OriginAccountID      string          `json:"originAccountId"`
	DestinationAccountID string          `json:"destinationAccountId"`
	Amount               decimal.Decimal `json:"amount"`
	Date                 time.Time       `json:"date"`
	Description          string          `json:"description"`
	Version              int             `json:"version"`
}

type TransferDetails struct {
	OriginAccountID      string
	DestinationAccountID string
	Amount               decimal.Decimal
	Date                 time.Time
	Description          string
}

func validateTransfer(d TransferDetails) error {
	if d.OriginAccountID == "" || d.DestinationAccountID == "" {
		return NewDomainError("transfer must reference an origin and a destination account")
	}
	if d.OriginAccountID == d.DestinationAccountID {
		return fmt.Errorf("%w: %s", ErrSameAccount, d.OriginAccountID)
	}
	return ValidateAmount(d.Amount)
}

func NewTransfer(id, ownerID string, d TransferDetails) (*Transfer, error) {
	if id == "" {
		return nil, NewDomainError("transfer ID cannot be empty")
	}
	if ownerID == "" {
		return nil, NewDomainError("transfer owner cannot be empty")
	}
	if err := validateTransfer(d); err != nil {
		return nil, err
	}
	if d.Date.IsZero() {
		d.Date = time.Now().UTC()
	}
	t := &Transfer{
		ID:                   id,
		OwnerID:              ownerID,
		OriginAccountID:      d.OriginAccountID,
		DestinationAccountID: d.DestinationAccountID,
		Amount:               d.Amount,
		Date:                 d.Date,
		Description:          d.Description,
	}
	t.Record(events.NewTransferCreated(t.ID, t.OwnerID, t.legs()))
	return t, nil
}

// Update records a TransferUpdated event only when either account or the
// amount changed.
func (t *Transfer) Update(d TransferDetails) error {
	if err := validateTransfer(d); err != nil {
		return err
	}
	before := t.legs()

	t.OriginAccountID = d.OriginAccountID
	t.DestinationAccountID = d.DestinationAccountID
	t.Amount = d.Amount
	if !d.Date.IsZero() {
		t.Date = d.Date
	}
	t.Description = d.Description

	after := t.legs()
	if !before.Equal(after) {
		t.Record(events.NewTransferUpdated(t.ID, t.OwnerID, before, after))
	}
	return nil
}

func (t *Transfer) DeletedEvent() events.TransferDeletedEvent {
	return events.NewTransferDeleted(t.ID, t.OwnerID, t.legs())
}

func (t *Transfer) legs() events.TransferLegs {
	return events.TransferLegs{
		OriginAccountID:      t.OriginAccountID,
		DestinationAccountID: t.DestinationAccountID,
		Amount:               t.Amount,
	}
}

func (t *Transfer) EntityID() string              { return t.ID }
func (t *Transfer) EntityType() shared.EntityType { return shared.TransferEntity }
func (t *Transfer) Owner() string                 { return t.OwnerID }
func (t *Transfer) CurrentVersion() int           { return t.Version }
func (t *Transfer) SetVersion(v int)              { t.Version = v }
