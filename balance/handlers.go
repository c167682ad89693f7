// Package balance applies the balance effect of movement and transfer events
// to the accounts they reference.
package balance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"personal-ledger/domain"
	"personal-ledger/events"
)

// Accounts is the view of the current unit of work the handlers need: load an
// account and mark it dirty so it is written with the rest of the change set.
type Accounts interface {
	FindAccount(ctx context.Context, id string) (*domain.Account, error)
	UpdateAccount(a *domain.Account)
}

// MissingAccountPolicy decides what a handler does when an account referenced
// by an event cannot be loaded.
type MissingAccountPolicy int

const (
	// SkipMissing logs a warning and leaves every account untouched.
	SkipMissing MissingAccountPolicy = iota
	// FailOnMissing aborts the write with domain.ErrAccountNotFound.
	FailOnMissing
)

func (p MissingAccountPolicy) String() string {
	if p == FailOnMissing {
		return "fail"
	}
	return "skip"
}

func ParseMissingAccountPolicy(s string) (MissingAccountPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return SkipMissing, nil
	case "fail":
		return FailOnMissing, nil
	}
	return SkipMissing, fmt.Errorf("unknown missing account policy %q (want skip or fail)", s)
}

type Handlers struct {
	accounts Accounts
	policy   MissingAccountPolicy
}

func NewHandlers(accounts Accounts, policy MissingAccountPolicy) *Handlers {
	return &Handlers{accounts: accounts, policy: policy}
}

// Subscriber is the registration side of an event bus.
type Subscriber interface {
	Subscribe(t events.EventType, h events.Handler)
}

// Register subscribes one handler per (movement type, lifecycle phase).
func (h *Handlers) Register(bus Subscriber) {
	for _, kind := range []events.MovementKind{events.Expense, events.Income} {
		bus.Subscribe(events.MovementEventType(kind, events.PhaseCreated), events.HandlerFunc(h.movementCreated))
		bus.Subscribe(events.MovementEventType(kind, events.PhaseUpdated), events.HandlerFunc(h.movementUpdated))
		bus.Subscribe(events.MovementEventType(kind, events.PhaseDeleted), events.HandlerFunc(h.movementDeleted))
	}
	bus.Subscribe(events.TransferCreatedType, events.HandlerFunc(h.transferCreated))
	bus.Subscribe(events.TransferUpdatedType, events.HandlerFunc(h.transferUpdated))
	bus.Subscribe(events.TransferDeletedType, events.HandlerFunc(h.transferDeleted))
}

// touch is one Deposit or Withdraw against one account.
type touch struct {
	accountID string
	amount    decimal.Decimal
	deposit   bool
}

func deposit(id string, amount decimal.Decimal) touch  { return touch{accountID: id, amount: amount, deposit: true} }
func withdraw(id string, amount decimal.Decimal) touch { return touch{accountID: id, amount: amount} }

// apply is the effect a movement has on its account.
func apply(kind events.MovementKind, leg events.Leg) touch {
	if kind == events.Income {
		return deposit(leg.AccountID, leg.Amount)
	}
	return withdraw(leg.AccountID, leg.Amount)
}

// revert undoes apply.
func revert(kind events.MovementKind, leg events.Leg) touch {
	if kind == events.Income {
		return withdraw(leg.AccountID, leg.Amount)
	}
	return deposit(leg.AccountID, leg.Amount)
}

func (h *Handlers) movementCreated(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.MovementCreatedEvent)
	if !ok {
		return unexpected(ev)
	}
	return h.run(ctx, e.BaseEvent, apply(e.Kind, e.After))
}

func (h *Handlers) movementUpdated(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.MovementUpdatedEvent)
	if !ok {
		return unexpected(ev)
	}
	if e.Before.Equal(e.After) {
		return nil
	}
	// Reverting before applying keeps a same-account amount change from
	// tripping the balance check on the intermediate state.
	return h.run(ctx, e.BaseEvent, revert(e.Kind, e.Before), apply(e.Kind, e.After))
}

func (h *Handlers) movementDeleted(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.MovementDeletedEvent)
	if !ok {
		return unexpected(ev)
	}
	return h.run(ctx, e.BaseEvent, revert(e.Kind, e.Before))
}

func (h *Handlers) transferCreated(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.TransferCreatedEvent)
	if !ok {
		return unexpected(ev)
	}
	return h.run(ctx, e.BaseEvent,
		withdraw(e.After.OriginAccountID, e.After.Amount),
		deposit(e.After.DestinationAccountID, e.After.Amount),
	)
}

func (h *Handlers) transferUpdated(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.TransferUpdatedEvent)
	if !ok {
		return unexpected(ev)
	}
	if e.Before.Equal(e.After) {
		return nil
	}
	return h.run(ctx, e.BaseEvent,
		deposit(e.Before.OriginAccountID, e.Before.Amount),
		withdraw(e.Before.DestinationAccountID, e.Before.Amount),
		withdraw(e.After.OriginAccountID, e.After.Amount),
		deposit(e.After.DestinationAccountID, e.After.Amount),
	)
}

func (h *Handlers) transferDeleted(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.TransferDeletedEvent)
	if !ok {
		return unexpected(ev)
	}
	return h.run(ctx, e.BaseEvent,
		deposit(e.Before.OriginAccountID, e.Before.Amount),
		withdraw(e.Before.DestinationAccountID, e.Before.Amount),
	)
}

// run loads every account the touches need, then applies them in order and
// stages each touched account. Nothing is mutated when an account is missing.
func (h *Handlers) run(ctx context.Context, base events.BaseEvent, touches ...touch) error {
	accounts := make(map[string]*domain.Account, len(touches))
	for _, t := range touches {
		if _, loaded := accounts[t.accountID]; loaded {
			continue
		}
		acc, err := h.load(ctx, base, t.accountID)
		if err != nil {
			return err
		}
		if acc == nil {
			return nil
		}
		accounts[t.accountID] = acc
	}

	for _, t := range touches {
		acc := accounts[t.accountID]
		var err error
		if t.deposit {
			err = acc.Deposit(t.amount)
		} else {
			err = acc.Withdraw(t.amount)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", base.Type, base.AggregateID, err)
		}
	}
	for _, t := range touches {
		if acc, ok := accounts[t.accountID]; ok {
			h.accounts.UpdateAccount(acc)
			delete(accounts, t.accountID)
		}
	}
	return nil
}

// load returns (nil, nil) when the account is missing and the policy says to skip.
func (h *Handlers) load(ctx context.Context, base events.BaseEvent, id string) (*domain.Account, error) {
	acc, err := h.accounts.FindAccount(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, fmt.Errorf("load account %s for %s: %w", id, base.Type, err)
	}
	if err == nil && acc.OwnerID != base.OwnerID {
		acc = nil
	}
	if acc != nil {
		return acc, nil
	}

	fields := log.Fields{"event": base.Type, "aggregate": base.AggregateID, "account": id, "owner": base.OwnerID}
	if h.policy == FailOnMissing {
		log.WithFields(fields).Warn("referenced account not found, aborting")
		return nil, fmt.Errorf("%w: %s referenced by %s %s", domain.ErrAccountNotFound, id, base.Type, base.AggregateID)
	}
	log.WithFields(fields).Warn("referenced account not found, skipping balance update")
	return nil, nil
}

func unexpected(ev events.Event) error {
	return fmt.Errorf("unexpected payload %T for %s", ev, ev.GetBase().Type)
}
