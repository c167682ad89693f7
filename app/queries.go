package app

import (
	"context"
	"errors"
	"fmt"

	"personal-ledger/cache"
	"personal-ledger/domain"
	"personal-ledger/events"
	"personal-ledger/shared"
	"personal-ledger/store"
)

// --- Query Handlers ---
// Reads bypass the unit of work and go through the cache registry.

func (s *LedgerService) GetAccount(ctx context.Context, q GetAccountQuery) (*domain.Account, error) {
	acc, err := cache.Entity(ctx, s.cache, shared.AccountEntity, q.AccountID, func(ctx context.Context) (*domain.Account, error) {
		return s.store.FindAccount(ctx, q.AccountID)
	})
	if err != nil {
		return nil, readError(err, domain.ErrAccountNotFound, q.AccountID)
	}
	if acc.OwnerID != q.OwnerID {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, q.AccountID)
	}
	return acc, nil
}

func (s *LedgerService) ListAccounts(ctx context.Context, q ListAccountsQuery) (shared.Page[*domain.Account], error) {
	req := q.Page.Normalize()
	return cache.Page(ctx, s.cache, shared.AccountEntity, q.OwnerID, req, func(ctx context.Context) (shared.Page[*domain.Account], error) {
		return s.store.ListAccounts(ctx, q.OwnerID, req)
	})
}

func (s *LedgerService) GetMovement(ctx context.Context, q GetMovementQuery) (*domain.Movement, error) {
	m, err := s.findMovement(ctx, q.MovementID)
	if err != nil {
		return nil, err
	}
	if m.OwnerID != q.OwnerID || (q.Kind != "" && m.Kind != q.Kind) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMovementNotFound, q.MovementID)
	}
	return m, nil
}

var errOtherKind = errors.New("movement has another kind")

// findMovement checks the expense and income entity keys in turn. The store
// is read at most once, and only when neither key is cached.
func (s *LedgerService) findMovement(ctx context.Context, id string) (*domain.Movement, error) {
	var loaded *domain.Movement
	loader := func(kind events.MovementKind) func(context.Context) (*domain.Movement, error) {
		return func(ctx context.Context) (*domain.Movement, error) {
			if loaded == nil {
				m, err := s.store.FindMovement(ctx, id)
				if err != nil {
					return nil, err
				}
				loaded = m
			}
			if loaded.Kind != kind {
				return nil, errOtherKind
			}
			return loaded, nil
		}
	}
	for _, kind := range []events.MovementKind{events.Expense, events.Income} {
		m, err := cache.Entity(ctx, s.cache, domain.MovementEntityType(kind), id, loader(kind))
		if errors.Is(err, errOtherKind) {
			continue
		}
		if err != nil {
			return nil, readError(err, domain.ErrMovementNotFound, id)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrMovementNotFound, id)
}

func (s *LedgerService) ListMovements(ctx context.Context, q ListMovementsQuery) (shared.Page[*domain.Movement], error) {
	req := q.Page.Normalize()
	return cache.Page(ctx, s.cache, domain.MovementEntityType(q.Kind), q.OwnerID, req, func(ctx context.Context) (shared.Page[*domain.Movement], error) {
		return s.store.ListMovements(ctx, q.Kind, q.OwnerID, req)
	})
}

func (s *LedgerService) GetTransfer(ctx context.Context, q GetTransferQuery) (*domain.Transfer, error) {
	t, err := cache.Entity(ctx, s.cache, shared.TransferEntity, q.TransferID, func(ctx context.Context) (*domain.Transfer, error) {
		return s.store.FindTransfer(ctx, q.TransferID)
	})
	if err != nil {
		return nil, readError(err, domain.ErrTransferNotFound, q.TransferID)
	}
	if t.OwnerID != q.OwnerID {
		return nil, fmt.Errorf("%w: %s", domain.ErrTransferNotFound, q.TransferID)
	}
	return t, nil
}

func (s *LedgerService) ListTransfers(ctx context.Context, q ListTransfersQuery) (shared.Page[*domain.Transfer], error) {
	req := q.Page.Normalize()
	return cache.Page(ctx, s.cache, shared.TransferEntity, q.OwnerID, req, func(ctx context.Context) (shared.Page[*domain.Transfer], error) {
		return s.store.ListTransfers(ctx, q.OwnerID, req)
	})
}

func readError(err, notFound error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return err
}
