package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"personal-ledger/domain"
	"personal-ledger/events"
	"personal-ledger/shared"
)

// InMemoryStore keeps committed rows in maps guarded by a RWMutex. Loads hand
// out fresh aggregates, so no two units of work ever share an instance.
type InMemoryStore struct {
	sync.RWMutex
	accounts  map[string]AccountModel
	movements map[string]MovementModel
	transfers map[string]TransferModel
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts:  make(map[string]AccountModel),
		movements: make(map[string]MovementModel),
		transfers: make(map[string]TransferModel),
	}
}

func (s *InMemoryStore) FindAccount(ctx context.Context, id string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.RLock()
	defer s.RUnlock()
	m, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return m.toDomain(), nil
}

func (s *InMemoryStore) FindMovement(ctx context.Context, id string) (*domain.Movement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.RLock()
	defer s.RUnlock()
	m, ok := s.movements[id]
	if !ok {
		return nil, fmt.Errorf("%w: movement %s", ErrNotFound, id)
	}
	return m.toDomain(), nil
}

func (s *InMemoryStore) FindTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.RLock()
	defer s.RUnlock()
	m, ok := s.transfers[id]
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", ErrNotFound, id)
	}
	return m.toDomain(), nil
}

func (s *InMemoryStore) ListAccounts(ctx context.Context, ownerID string, req shared.PageRequest) (shared.Page[*domain.Account], error) {
	if err := ctx.Err(); err != nil {
		return shared.Page[*domain.Account]{}, err
	}
	req = req.Normalize()
	s.RLock()
	rows := make([]AccountModel, 0)
	for _, m := range s.accounts {
		if m.OwnerID == ownerID && matches(req.Search, m.Name) {
			rows = append(rows, m)
		}
	}
	s.RUnlock()

	slices.SortFunc(rows, func(a, b AccountModel) int {
		var c int
		switch req.SortBy {
		case "balance":
			c = a.Balance.Cmp(b.Balance)
		default:
			c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
		return direction(req.Desc, cmp.Or(c, strings.Compare(a.ID, b.ID)))
	})
	return paginate(rows, req, AccountModel.toDomain), nil
}

func (s *InMemoryStore) ListMovements(ctx context.Context, kind events.MovementKind, ownerID string, req shared.PageRequest) (shared.Page[*domain.Movement], error) {
	if err := ctx.Err(); err != nil {
		return shared.Page[*domain.Movement]{}, err
	}
	req = req.Normalize()
	s.RLock()
	rows := make([]MovementModel, 0)
	for _, m := range s.movements {
		if m.OwnerID == ownerID && m.Kind == string(kind) && matches(req.Search, m.Description) {
			rows = append(rows, m)
		}
	}
	s.RUnlock()

	slices.SortFunc(rows, func(a, b MovementModel) int {
		var c int
		switch req.SortBy {
		case "amount":
			c = a.Amount.Cmp(b.Amount)
		default:
			c = a.Date.Compare(b.Date)
		}
		return direction(req.Desc, cmp.Or(c, strings.Compare(a.ID, b.ID)))
	})
	return paginate(rows, req, MovementModel.toDomain), nil
}

func (s *InMemoryStore) ListTransfers(ctx context.Context, ownerID string, req shared.PageRequest) (shared.Page[*domain.Transfer], error) {
	if err := ctx.Err(); err != nil {
		return shared.Page[*domain.Transfer]{}, err
	}
	req = req.Normalize()
	s.RLock()
	rows := make([]TransferModel, 0)
	for _, m := range s.transfers {
		if m.OwnerID == ownerID && matches(req.Search, m.Description) {
			rows = append(rows, m)
		}
	}
	s.RUnlock()

	slices.SortFunc(rows, func(a, b TransferModel) int {
		var c int
		switch req.SortBy {
		case "amount":
			c = a.Amount.Cmp(b.Amount)
		default:
			c = a.Date.Compare(b.Date)
		}
		return direction(req.Desc, cmp.Or(c, strings.Compare(a.ID, b.ID)))
	})
	return paginate(rows, req, TransferModel.toDomain), nil
}

// Commit validates and applies every change against a copy of the tables and
// swaps the copy in only when all of them succeeded.
func (s *InMemoryStore) Commit(ctx context.Context, changes []Change) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}
	s.Lock()
	defer s.Unlock()

	accounts := maps.Clone(s.accounts)
	movements := maps.Clone(s.movements)
	transfers := maps.Clone(s.transfers)

	for _, c := range changes {
		var err error
		switch e := c.Entity.(type) {
		case *domain.Account:
			err = applyChange(accounts, c.Op, e.ID, e.Version, accountModel(e))
		case *domain.Movement:
			err = applyChange(movements, c.Op, e.ID, e.Version, movementModel(e))
		case *domain.Transfer:
			err = applyChange(transfers, c.Op, e.ID, e.Version, transferModel(e))
		default:
			err = fmt.Errorf("unsupported entity %T", c.Entity)
		}
		if err != nil {
			return 0, fmt.Errorf("commit %s %s %s: %w", c.Op, c.Entity.EntityType(), c.Entity.EntityID(), err)
		}
	}

	s.accounts, s.movements, s.transfers = accounts, movements, transfers
	for _, c := range changes {
		if c.Op != OpDelete {
			c.Entity.SetVersion(c.Entity.CurrentVersion() + 1)
		}
	}
	return len(changes), nil
}

type versioned interface {
	AccountModel | MovementModel | TransferModel
}

func applyChange[M versioned](table map[string]M, op Op, id string, version int, row M) error {
	current, exists := table[id]
	switch op {
	case OpAdd:
		if exists {
			return ErrDuplicate
		}
		table[id] = withVersion(row, version+1)
	case OpUpdate, OpDelete:
		if !exists {
			return ErrNotFound
		}
		if stored := versionOf(current); stored != version {
			return fmt.Errorf("%w: expected version %d, stored version %d", ErrOptimisticLock, version, stored)
		}
		if op == OpDelete {
			delete(table, id)
		} else {
			table[id] = withVersion(row, version+1)
		}
	default:
		return fmt.Errorf("unknown op %d", op)
	}
	return nil
}

func versionOf[M versioned](row M) int {
	switch r := any(row).(type) {
	case AccountModel:
		return r.Version
	case MovementModel:
		return r.Version
	case TransferModel:
		return r.Version
	}
	return 0
}

func withVersion[M versioned](row M, v int) M {
	switch r := any(row).(type) {
	case AccountModel:
		r.Version = v
		return any(r).(M)
	case MovementModel:
		r.Version = v
		return any(r).(M)
	case TransferModel:
		r.Version = v
		return any(r).(M)
	}
	return row
}

func matches(search, text string) bool {
	return search == "" || strings.Contains(strings.ToLower(text), search)
}

func direction(desc bool, c int) int {
	if desc {
		return -c
	}
	return c
}

func paginate[M any, T any](rows []M, req shared.PageRequest, convert func(M) T) shared.Page[T] {
	page := shared.Page[T]{Items: []T{}, Page: req.Page, PageSize: req.PageSize, Total: len(rows)}
	start := req.Offset()
	if start >= len(rows) {
		return page
	}
	end := min(start+req.PageSize, len(rows))
	for _, r := range rows[start:end] {
		page.Items = append(page.Items, convert(r))
	}
	return page
}
