package app

import (
	"time"

	"github.com/shopspring/decimal"

	"personal-ledger/events"
	"personal-ledger/shared"
)

// --- Command Struct Definitions ---
// Commands carry the intent of a write. IDs are generated when left empty.

type CreateAccountCommand struct {
	AccountID      string
	OwnerID        string
	Name           string
	OpeningBalance decimal.Decimal
}

type RenameAccountCommand struct {
	AccountID string
	OwnerID   string
	Name      string
}

type CreateMovementCommand struct {
	MovementID  string
	OwnerID     string
	Kind        events.MovementKind
	AccountID   string
	Amount      decimal.Decimal
	Date        time.Time
	Description string
}

// UpdateMovementCommand replaces a movement's details. A zero Date keeps the
// stored one; a non-empty Kind must match the stored movement.
type UpdateMovementCommand struct {
	MovementID  string
	OwnerID     string
	Kind        events.MovementKind
	AccountID   string
	Amount      decimal.Decimal
	Date        time.Time
	Description string
}

type DeleteMovementCommand struct {
	MovementID string
	OwnerID    string
	Kind       events.MovementKind
}

type CreateTransferCommand struct {
	TransferID           string
	OwnerID              string
	OriginAccountID      string
	DestinationAccountID string
	Amount               decimal.Decimal
	Date                 time.Time
	Description          string
}

type UpdateTransferCommand struct {
	TransferID           string
	OwnerID              string
	OriginAccountID      string
	DestinationAccountID string
	Amount               decimal.Decimal
	Date                 time.Time
	Description          string
}

type DeleteTransferCommand struct {
	TransferID string
	OwnerID    string
}

// --- Query Structures ---

type GetAccountQuery struct {
	AccountID string
	OwnerID   string
}

type ListAccountsQuery struct {
	OwnerID string
	Page    shared.PageRequest
}

type GetMovementQuery struct {
	MovementID string
	OwnerID    string
	Kind       events.MovementKind
}

type ListMovementsQuery struct {
	OwnerID string
	Kind    events.MovementKind
	Page    shared.PageRequest
}

type GetTransferQuery struct {
	TransferID string
	OwnerID    string
}

type ListTransfersQuery struct {
	OwnerID string
	Page    shared.PageRequest
}
