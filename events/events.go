package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

type BaseEvent struct {
	EventID     uuid.UUID `json:"eventId"`
	AggregateID string    `json:"aggregateId"`
	OwnerID     string    `json:"ownerId"`
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"type"`
}

type Event interface {
	GetBase() BaseEvent
}

func (e BaseEvent) GetBase() BaseEvent {
	return e
}

const (
	ExpenseCreatedType  EventType = "ExpenseCreated"
	ExpenseUpdatedType  EventType = "ExpenseUpdated"
	ExpenseDeletedType  EventType = "ExpenseDeleted"
	IncomeCreatedType   EventType = "IncomeCreated"
	IncomeUpdatedType   EventType = "IncomeUpdated"
	IncomeDeletedType   EventType = "IncomeDeleted"
	TransferCreatedType EventType = "TransferCreated"
	TransferUpdatedType EventType = "TransferUpdated"
	TransferDeletedType EventType = "TransferDeleted"
)

func NewBaseEvent(aggregateID, ownerID string, eventType EventType) BaseEvent {
	return BaseEvent{
		EventID:     uuid.New(),
		AggregateID: aggregateID,
		OwnerID:     ownerID,
		Timestamp:   time.Now().UTC(),
		Type:        eventType,
	}
}
