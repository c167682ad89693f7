package store

import (
	"context"
	"errors"

	"personal-ledger/domain"
	"personal-ledger/events"
	"personal-ledger/shared"
)

var (
	ErrOptimisticLock = errors.New("optimistic lock error: version conflict")
	ErrNotFound       = errors.New("entity not found")
	ErrDuplicate      = errors.New("entity already exists")
)

type Op int

const (
	OpAdd Op = iota + 1
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Change is one staged mutation. Entity carries the version it was loaded at;
// Update and Delete only succeed when the stored version still matches.
type Change struct {
	Op     Op
	Entity domain.Entity
}

// Store is the storage collaborator. Every Find returns a fresh copy that the
// caller owns. Commit applies all changes atomically or none of them and
// returns the number of entities written.
type Store interface {
	FindAccount(ctx context.Context, id string) (*domain.Account, error)
	FindMovement(ctx context.Context, id string) (*domain.Movement, error)
	FindTransfer(ctx context.Context, id string) (*domain.Transfer, error)

	ListAccounts(ctx context.Context, ownerID string, req shared.PageRequest) (shared.Page[*domain.Account], error)
	ListMovements(ctx context.Context, kind events.MovementKind, ownerID string, req shared.PageRequest) (shared.Page[*domain.Movement], error)
	ListTransfers(ctx context.Context, ownerID string, req shared.PageRequest) (shared.Page[*domain.Transfer], error)

	Commit(ctx context.Context, changes []Change) (int, error)
}
