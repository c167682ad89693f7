package events

import (
	"github.com/shopspring/decimal"
)

// MovementKind distinguishes the two single-account movements.
type MovementKind string

const (
	Expense MovementKind = "Expense"
	Income  MovementKind = "Income"
)

// Leg is the balance-affecting state of a single-account movement.
type Leg struct {
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
}

func (l Leg) Equal(o Leg) bool {
	return l.AccountID == o.AccountID && l.Amount.Equal(o.Amount)
}

// TransferLegs is the balance-affecting state of a transfer.
type TransferLegs struct {
	OriginAccountID      string          `json:"originAccountId"`
	DestinationAccountID string          `json:"destinationAccountId"`
	Amount               decimal.Decimal `json:"amount"`
}

func (l TransferLegs) Equal(o TransferLegs) bool {
	return l.OriginAccountID == o.OriginAccountID &&
		l.DestinationAccountID == o.DestinationAccountID &&
		l.Amount.Equal(o.Amount)
}

type MovementCreatedEvent struct {
	BaseEvent
	Kind  MovementKind `json:"kind"`
	After Leg          `json:"after"`
}

type MovementUpdatedEvent struct {
	BaseEvent
	Kind   MovementKind `json:"kind"`
	Before Leg          `json:"before"`
	After  Leg          `json:"after"`
}

type MovementDeletedEvent struct {
	BaseEvent
	Kind   MovementKind `json:"kind"`
	Before Leg          `json:"before"`
}

type TransferCreatedEvent struct {
	BaseEvent
	After TransferLegs `json:"after"`
}

type TransferUpdatedEvent struct {
	BaseEvent
	Before TransferLegs `json:"before"`
	After  TransferLegs `json:"after"`
}

type TransferDeletedEvent struct {
	BaseEvent
	Before TransferLegs `json:"before"`
}

// MovementEventType maps a movement kind and lifecycle phase to its event type.
func MovementEventType(kind MovementKind, phase string) EventType {
	return EventType(string(kind) + phase)
}

const (
	PhaseCreated = "Created"
	PhaseUpdated = "Updated"
	PhaseDeleted = "Deleted"
)

func NewMovementCreated(id, ownerID string, kind MovementKind, after Leg) MovementCreatedEvent {
	return MovementCreatedEvent{
		BaseEvent: NewBaseEvent(id, ownerID, MovementEventType(kind, PhaseCreated)),
		Kind:      kind,
		After:     after,
	}
}

func NewMovementUpdated(id, ownerID string, kind MovementKind, before, after Leg) MovementUpdatedEvent {
	return MovementUpdatedEvent{
		BaseEvent: NewBaseEvent(id, ownerID, MovementEventType(kind, PhaseUpdated)),
		Kind:      kind,
		Before:    before,
		After:     after,
	}
}

// NewMovementDeleted builds the deletion fact from the last known state of a
// movement. Deleted aggregates cannot be reloaded, so callers build this
// before staging the delete.
func NewMovementDeleted(id, ownerID string, kind MovementKind, before Leg) MovementDeletedEvent {
	return MovementDeletedEvent{
		BaseEvent: NewBaseEvent(id, ownerID, MovementEventType(kind, PhaseDeleted)),
		Kind:      kind,
		Before:    before,
	}
}

func NewTransferCreated(id, ownerID string, after TransferLegs) TransferCreatedEvent {
	return TransferCreatedEvent{
		BaseEvent: NewBaseEvent(id, ownerID, TransferCreatedType),
		After:     after,
	}
}

func NewTransferUpdated(id, ownerID string, before, after TransferLegs) TransferUpdatedEvent {
	return TransferUpdatedEvent{
		BaseEvent: NewBaseEvent(id, ownerID, TransferUpdatedType),
		Before:    before,
		After:     after,
	}
}

func NewTransferDeleted(id, ownerID string, before TransferLegs) TransferDeletedEvent {
	return TransferDeletedEvent{
		BaseEvent: NewBaseEvent(id, ownerID, TransferDeletedType),
		Before:    before,
	}
}
