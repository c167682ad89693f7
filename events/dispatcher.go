package events

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Publisher delivers a single event to whoever is interested in it.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus is an in-process Publisher keyed by event type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]Handler)}
}

func (b *Bus) Subscribe(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish runs every handler subscribed to the event's type, in subscription
// order, and stops at the first error.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	base := ev.GetBase()
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[base.Type]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		log.WithFields(log.Fields{"type": base.Type, "aggregate": base.AggregateID}).Debug("no handlers for event")
		return nil
	}
	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.Handle(ctx, ev); err != nil {
			return fmt.Errorf("handle %s for %s: %w", base.Type, base.AggregateID, err)
		}
	}
	return nil
}

type DispatchOptions struct {
	// MaxParallelism caps concurrently running publishes. Defaults to GOMAXPROCS.
	MaxParallelism int
	// BatchSize is the number of events awaited together. Defaults to MaxParallelism.
	BatchSize int
}

func (o DispatchOptions) withDefaults() DispatchOptions {
	if o.MaxParallelism <= 0 {
		o.MaxParallelism = runtime.GOMAXPROCS(0)
	}
	if o.BatchSize <= 0 {
		o.BatchSize = o.MaxParallelism
	}
	return o
}

// Dispatcher fans collected events out to a Publisher batch by batch.
// Batches are delivered in order; events inside a batch run concurrently.
type Dispatcher struct {
	pub  Publisher
	opts DispatchOptions
}

func NewDispatcher(pub Publisher, opts DispatchOptions) *Dispatcher {
	if pub == nil {
		panic("events.NewDispatcher: publisher is nil")
	}
	return &Dispatcher{pub: pub, opts: opts.withDefaults()}
}

func (d *Dispatcher) Options() DispatchOptions {
	return d.opts
}

// Dispatch publishes evs and returns the first handler error. A failing batch
// stops every later batch; batches already published are not undone. Events
// of one aggregate keep their collection order, even inside a batch.
func (d *Dispatcher) Dispatch(ctx context.Context, evs []Event) error {
	for start, batch := 0, 0; start < len(evs); start, batch = start+d.opts.BatchSize, batch+1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+d.opts.BatchSize, len(evs))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.opts.MaxParallelism)
		for _, group := range byAggregate(evs[start:end]) {
			g.Go(func() error {
				for _, ev := range group {
					if err := d.pub.Publish(gctx, ev); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			log.WithError(err).WithFields(log.Fields{"batch": batch, "events": end - start}).Warn("event dispatch aborted")
			return fmt.Errorf("dispatch batch %d: %w", batch, err)
		}
	}
	return nil
}

// byAggregate splits a batch into per-aggregate groups, ordered by first
// appearance, each keeping the original event order.
func byAggregate(batch []Event) [][]Event {
	index := make(map[string]int, len(batch))
	var groups [][]Event
	for _, ev := range batch {
		id := ev.GetBase().AggregateID
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], ev)
	}
	return groups
}
