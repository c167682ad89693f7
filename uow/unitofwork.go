// Package uow turns one logical write into one commit: aggregates are loaded
// into an identity map, mutations are staged into a single change set, domain
// events are collected and dispatched, and only then is the change set
// handed to the store.
package uow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"personal-ledger/domain"
	"personal-ledger/events"
	"personal-ledger/store"
)

var (
	// ErrEventReentry is returned when a source that was already harvested in
	// this unit of work produces events again while handlers run.
	ErrEventReentry = errors.New("event source produced events after being harvested")
	// ErrDispatchPasses is returned when handlers keep raising events past the pass budget.
	ErrDispatchPasses = errors.New("dispatch pass budget exceeded")
)

const DefaultMaxPasses = 3

type Options struct {
	Dispatch  events.DispatchOptions
	MaxPasses int
}

// Binder subscribes handlers that act on a specific unit of work.
type Binder func(bus *events.Bus, u *UnitOfWork)

// Factory creates units of work sharing one store and one set of binders.
type Factory struct {
	store   store.Store
	opts    Options
	binders []Binder
}

func NewFactory(st store.Store, opts Options, binders ...Binder) *Factory {
	if st == nil {
		panic("uow.NewFactory: store is nil")
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultMaxPasses
	}
	return &Factory{store: st, opts: opts, binders: binders}
}

func (f *Factory) Store() store.Store { return f.store }

func (f *Factory) Begin() *UnitOfWork {
	u := &UnitOfWork{
		store:     f.store,
		maxPasses: f.opts.MaxPasses,
		bus:       events.NewBus(),
		accounts:  make(map[string]*domain.Account),
		movements: make(map[string]*domain.Movement),
		transfers: make(map[string]*domain.Transfer),
		staged:    make(map[domain.Entity]int),
	}
	for _, bind := range f.binders {
		bind(u.bus, u)
	}
	u.dispatcher = events.NewDispatcher(u.bus, f.opts.Dispatch)
	return u
}

// UnitOfWork is not meant to be shared between requests. Its methods are safe
// for the concurrent handler calls made during dispatch.
type UnitOfWork struct {
	store      store.Store
	bus        *events.Bus
	dispatcher *events.Dispatcher
	maxPasses  int

	mu        sync.Mutex
	accounts  map[string]*domain.Account
	movements map[string]*domain.Movement
	transfers map[string]*domain.Transfer
	tracked   []domain.Entity
	changes   []store.Change
	staged    map[domain.Entity]int
	raised    events.Recorder
	committed []store.Change
}

func (u *UnitOfWork) FindAccount(ctx context.Context, id string) (*domain.Account, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if a, ok := u.accounts[id]; ok {
		return a, nil
	}
	a, err := u.store.FindAccount(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
		}
		return nil, err
	}
	u.accounts[id] = a
	u.tracked = append(u.tracked, a)
	return a, nil
}

func (u *UnitOfWork) FindMovement(ctx context.Context, id string) (*domain.Movement, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if m, ok := u.movements[id]; ok {
		return m, nil
	}
	m, err := u.store.FindMovement(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMovementNotFound, id)
		}
		return nil, err
	}
	u.movements[id] = m
	u.tracked = append(u.tracked, m)
	return m, nil
}

func (u *UnitOfWork) FindTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if t, ok := u.transfers[id]; ok {
		return t, nil
	}
	t, err := u.store.FindTransfer(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTransferNotFound, id)
		}
		return nil, err
	}
	u.transfers[id] = t
	u.tracked = append(u.tracked, t)
	return t, nil
}

// Add tracks a new aggregate and stages its insertion.
func (u *UnitOfWork) Add(e domain.Entity) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.trackLocked(e)
	u.stageLocked(store.OpAdd, e)
}

func (u *UnitOfWork) Update(e domain.Entity) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.trackLocked(e)
	u.stageLocked(store.OpUpdate, e)
}

func (u *UnitOfWork) UpdateAccount(a *domain.Account) {
	u.Update(a)
}

// Delete stages the removal of e. The caller raises the matching deleted
// event itself, from the state it last saw.
func (u *UnitOfWork) Delete(e domain.Entity) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.trackLocked(e)
	u.stageLocked(store.OpDelete, e)
}

// Raise queues an event that no tracked aggregate owns.
func (u *UnitOfWork) Raise(ev events.Event) {
	u.raised.Record(ev)
}

func (u *UnitOfWork) trackLocked(e domain.Entity) {
	switch v := e.(type) {
	case *domain.Account:
		if _, ok := u.accounts[v.ID]; ok {
			return
		}
		u.accounts[v.ID] = v
	case *domain.Movement:
		if _, ok := u.movements[v.ID]; ok {
			return
		}
		u.movements[v.ID] = v
	case *domain.Transfer:
		if _, ok := u.transfers[v.ID]; ok {
			return
		}
		u.transfers[v.ID] = v
	}
	u.tracked = append(u.tracked, e)
}

// stageLocked folds repeated mutations of one entity into a single change:
// an update after an add stays an add, a delete after an add drops both.
func (u *UnitOfWork) stageLocked(op store.Op, e domain.Entity) {
	idx, ok := u.staged[e]
	if !ok {
		u.staged[e] = len(u.changes)
		u.changes = append(u.changes, store.Change{Op: op, Entity: e})
		return
	}
	prev := u.changes[idx].Op
	switch {
	case op == store.OpUpdate:
	case op == store.OpDelete && prev == store.OpAdd:
		u.changes[idx].Op = 0
	default:
		u.changes[idx].Op = op
	}
}

func (u *UnitOfWork) sources() []any {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]any, 0, len(u.tracked)+1)
	for _, e := range u.tracked {
		out = append(out, e)
	}
	return append(out, &u.raised)
}

func (u *UnitOfWork) pendingChanges() []store.Change {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]store.Change, 0, len(u.changes))
	for _, c := range u.changes {
		if c.Op != 0 {
			out = append(out, c)
		}
	}
	return out
}

// Save collects and dispatches pending events, then commits the whole change
// set at once. Handler failures and cancellation abort before the commit, so
// either the movement and its balance effects land together or nothing does.
func (u *UnitOfWork) Save(ctx context.Context) (int, error) {
	harvested := make(map[events.Source]struct{})
	for pass := 0; ; pass++ {
		evs, err := u.collect(harvested)
		if err != nil {
			return 0, err
		}
		if len(evs) == 0 {
			break
		}
		if pass >= u.maxPasses {
			return 0, fmt.Errorf("%w: %d passes, %d events still pending", ErrDispatchPasses, pass, len(evs))
		}
		log.WithFields(log.Fields{"pass": pass, "events": len(evs)}).Debug("dispatching domain events")
		if err := u.dispatcher.Dispatch(ctx, evs); err != nil {
			return 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	changes := u.pendingChanges()
	n, err := u.store.Commit(ctx, changes)
	if err != nil {
		return 0, err
	}

	u.mu.Lock()
	u.committed = append(u.committed, changes...)
	u.changes = nil
	u.staged = make(map[domain.Entity]int)
	u.mu.Unlock()
	return n, nil
}

// collect harvests every source and refuses aggregates that were already
// harvested earlier in this unit of work. Raised events are not tied to an
// aggregate; only the pass budget bounds them.
func (u *UnitOfWork) collect(harvested map[events.Source]struct{}) ([]events.Event, error) {
	var evs []events.Event
	for _, t := range u.sources() {
		src, ok := t.(events.Source)
		if !ok {
			continue
		}
		got := events.Collect(src)
		if len(got) == 0 {
			continue
		}
		if src == events.Source(&u.raised) {
			evs = append(evs, got...)
			continue
		}
		if _, seen := harvested[src]; seen {
			return nil, fmt.Errorf("%w: %T", ErrEventReentry, src)
		}
		harvested[src] = struct{}{}
		evs = append(evs, got...)
	}
	return evs, nil
}

// Committed lists every change written by successful Save calls.
func (u *UnitOfWork) Committed() []store.Change {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]store.Change(nil), u.committed...)
}
