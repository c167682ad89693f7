package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"personal-ledger/cache"
	"personal-ledger/domain"
	"personal-ledger/events"
	"personal-ledger/shared"
	"personal-ledger/store"
	"personal-ledger/uow"
)

const DefaultCommitRetries = 3

type Options struct {
	// CommitRetries is how many times a command is re-run on a fresh unit of
	// work after an optimistic lock conflict.
	CommitRetries int
}

// LedgerService is the application layer: every write runs against its own
// unit of work, and every successful commit bumps the cache versions of what
// it wrote.
type LedgerService struct {
	units   *uow.Factory
	store   store.Store
	cache   *cache.Registry
	retries int
}

func NewLedgerService(units *uow.Factory, registry *cache.Registry, opts Options) *LedgerService {
	if units == nil {
		panic("app.NewLedgerService: unit of work factory is nil")
	}
	if registry == nil {
		registry = cache.NewRegistry(nil, cache.Options{})
	}
	if opts.CommitRetries < 0 {
		opts.CommitRetries = 0
	}
	return &LedgerService{
		units:   units,
		store:   units.Store(),
		cache:   registry,
		retries: opts.CommitRetries,
	}
}

// IsNotFound reports whether err means a referenced aggregate does not exist
// (or is not visible to the caller).
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrAccountNotFound) ||
		errors.Is(err, domain.ErrMovementNotFound) ||
		errors.Is(err, domain.ErrTransferNotFound)
}

// IsValidation reports whether err is a rule violation the caller can fix,
// such as insufficient funds or an invalid amount.
func IsValidation(err error) bool {
	var de *domain.DomainError
	return errors.As(err, &de) && !IsNotFound(err)
}

// execute runs body against a fresh unit of work and saves it. Optimistic
// lock conflicts re-run the whole command, reloading every aggregate.
func (s *LedgerService) execute(ctx context.Context, name string, body func(ctx context.Context, u *uow.UnitOfWork) error) error {
	for attempt := 0; ; attempt++ {
		u := s.units.Begin()
		if err := body(ctx, u); err != nil {
			return err
		}
		n, err := u.Save(ctx)
		if err != nil {
			if errors.Is(err, store.ErrOptimisticLock) && attempt < s.retries {
				log.WithError(err).WithFields(log.Fields{"command": name, "attempt": attempt + 1}).Warn("version conflict, retrying command")
				continue
			}
			return fmt.Errorf("%s: %w", name, err)
		}
		s.invalidate(ctx, u.Committed())
		log.WithFields(log.Fields{"command": name, "written": n}).Debug("command committed")
		return nil
	}
}

func (s *LedgerService) invalidate(ctx context.Context, changes []store.Change) {
	type scope struct {
		t     shared.EntityType
		owner string
	}
	ids := make(map[scope][]string)
	var order []scope
	for _, c := range changes {
		k := scope{t: c.Entity.EntityType(), owner: c.Entity.Owner()}
		if _, ok := ids[k]; !ok {
			order = append(order, k)
		}
		ids[k] = append(ids[k], c.Entity.EntityID())
	}
	for _, k := range order {
		s.cache.Invalidate(ctx, k.t, k.owner, ids[k]...)
	}
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// --- Command Handlers ---

func (s *LedgerService) CreateAccount(ctx context.Context, cmd CreateAccountCommand) (string, error) {
	id := newID(cmd.AccountID)
	err := s.execute(ctx, "create account", func(ctx context.Context, u *uow.UnitOfWork) error {
		if _, err := u.FindAccount(ctx, id); err == nil {
			return fmt.Errorf("%w: account %s", store.ErrDuplicate, id)
		} else if !errors.Is(err, domain.ErrAccountNotFound) {
			return err
		}
		acc, err := domain.NewAccount(id, cmd.OwnerID, cmd.Name, cmd.OpeningBalance)
		if err != nil {
			return fmt.Errorf("account creation failed validation: %w", err)
		}
		u.Add(acc)
		return nil
	})
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"account": id, "owner": cmd.OwnerID}).Info("account created")
	return id, nil
}

func (s *LedgerService) RenameAccount(ctx context.Context, cmd RenameAccountCommand) error {
	return s.execute(ctx, "rename account", func(ctx context.Context, u *uow.UnitOfWork) error {
		acc, err := ownedAccount(ctx, u, cmd.AccountID, cmd.OwnerID)
		if err != nil {
			return err
		}
		if err := acc.Rename(cmd.Name); err != nil {
			return err
		}
		u.Update(acc)
		return nil
	})
}

func (s *LedgerService) CreateMovement(ctx context.Context, cmd CreateMovementCommand) (string, error) {
	id := newID(cmd.MovementID)
	err := s.execute(ctx, "create "+string(cmd.Kind), func(ctx context.Context, u *uow.UnitOfWork) error {
		if cmd.MovementID != "" {
			if _, err := u.FindMovement(ctx, id); err == nil {
				return fmt.Errorf("%w: movement %s", store.ErrDuplicate, id)
			} else if !errors.Is(err, domain.ErrMovementNotFound) {
				return err
			}
		}
		m, err := domain.NewMovement(id, cmd.OwnerID, cmd.Kind, domain.MovementDetails{
			AccountID:   cmd.AccountID,
			Amount:      cmd.Amount,
			Date:        cmd.Date,
			Description: cmd.Description,
		})
		if err != nil {
			return err
		}
		u.Add(m)
		return nil
	})
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"kind": cmd.Kind, "movement": id, "account": cmd.AccountID, "amount": cmd.Amount.String()}).Info("movement created")
	return id, nil
}

func (s *LedgerService) UpdateMovement(ctx context.Context, cmd UpdateMovementCommand) error {
	return s.execute(ctx, "update movement", func(ctx context.Context, u *uow.UnitOfWork) error {
		m, err := ownedMovement(ctx, u, cmd.MovementID, cmd.OwnerID, cmd.Kind)
		if err != nil {
			return err
		}
		err = m.Update(domain.MovementDetails{
			AccountID:   cmd.AccountID,
			Amount:      cmd.Amount,
			Date:        cmd.Date,
			Description: cmd.Description,
		})
		if err != nil {
			return err
		}
		u.Update(m)
		return nil
	})
}

func (s *LedgerService) DeleteMovement(ctx context.Context, cmd DeleteMovementCommand) error {
	return s.execute(ctx, "delete movement", func(ctx context.Context, u *uow.UnitOfWork) error {
		m, err := ownedMovement(ctx, u, cmd.MovementID, cmd.OwnerID, cmd.Kind)
		if err != nil {
			return err
		}
		u.Raise(m.DeletedEvent())
		u.Delete(m)
		return nil
	})
}

func (s *LedgerService) CreateTransfer(ctx context.Context, cmd CreateTransferCommand) (string, error) {
	id := newID(cmd.TransferID)
	err := s.execute(ctx, "create transfer", func(ctx context.Context, u *uow.UnitOfWork) error {
		if cmd.TransferID != "" {
			if _, err := u.FindTransfer(ctx, id); err == nil {
				return fmt.Errorf("%w: transfer %s", store.ErrDuplicate, id)
			} else if !errors.Is(err, domain.ErrTransferNotFound) {
				return err
			}
		}
		t, err := domain.NewTransfer(id, cmd.OwnerID, domain.TransferDetails{
			OriginAccountID:      cmd.OriginAccountID,
			DestinationAccountID: cmd.DestinationAccountID,
			Amount:               cmd.Amount,
			Date:                 cmd.Date,
			Description:          cmd.Description,
		})
		if err != nil {
			return err
		}
		u.Add(t)
		return nil
	})
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{
		"transfer": id, "origin": cmd.OriginAccountID, "destination": cmd.DestinationAccountID, "amount": cmd.Amount.String(),
	}).Info("transfer created")
	return id, nil
}

func (s *LedgerService) UpdateTransfer(ctx context.Context, cmd UpdateTransferCommand) error {
	return s.execute(ctx, "update transfer", func(ctx context.Context, u *uow.UnitOfWork) error {
		t, err := u.FindTransfer(ctx, cmd.TransferID)
		if err != nil {
			return err
		}
		if t.OwnerID != cmd.OwnerID {
			return fmt.Errorf("%w: %s", domain.ErrTransferNotFound, cmd.TransferID)
		}
		err = t.Update(domain.TransferDetails{
			OriginAccountID:      cmd.OriginAccountID,
			DestinationAccountID: cmd.DestinationAccountID,
			Amount:               cmd.Amount,
			Date:                 cmd.Date,
			Description:          cmd.Description,
		})
		if err != nil {
			return err
		}
		u.Update(t)
		return nil
	})
}

func (s *LedgerService) DeleteTransfer(ctx context.Context, cmd DeleteTransferCommand) error {
	return s.execute(ctx, "delete transfer", func(ctx context.Context, u *uow.UnitOfWork) error {
		t, err := u.FindTransfer(ctx, cmd.TransferID)
		if err != nil {
			return err
		}
		if t.OwnerID != cmd.OwnerID {
			return fmt.Errorf("%w: %s", domain.ErrTransferNotFound, cmd.TransferID)
		}
		u.Raise(t.DeletedEvent())
		u.Delete(t)
		return nil
	})
}

// ownedMovement loads a movement of the given owner. An empty kind matches
// both expenses and incomes.
func ownedMovement(ctx context.Context, u *uow.UnitOfWork, id, ownerID string, kind events.MovementKind) (*domain.Movement, error) {
	m, err := u.FindMovement(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.OwnerID != ownerID || (kind != "" && m.Kind != kind) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMovementNotFound, id)
	}
	return m, nil
}

func ownedAccount(ctx context.Context, u *uow.UnitOfWork, id, ownerID string) (*domain.Account, error) {
	acc, err := u.FindAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	return acc, nil
}
