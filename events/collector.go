package events

import "sync"

// Source is implemented by anything that holds domain events waiting to be
// published. PendingEvents must return a copy.
type Source interface {
	PendingEvents() []Event
	ClearEvents()
}

// Collect harvests pending events from every tracked object that implements
// Source, in tracking order. Each source is cleared before Collect returns,
// so a later handler failure cannot cause the same events to be delivered
// again from the same in-memory aggregate.
func Collect(tracked ...any) []Event {
	var collected []Event
	for _, t := range tracked {
		src, ok := t.(Source)
		if !ok || src == nil {
			continue
		}
		pending := src.PendingEvents()
		if len(pending) == 0 {
			continue
		}
		collected = append(collected, pending...)
		src.ClearEvents()
	}
	return collected
}

// Recorder is an append-only pending events list. The zero value is ready to
// use and is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	pending []Event
}

func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	r.pending = append(r.pending, e)
	r.mu.Unlock()
}

func (r *Recorder) PendingEvents() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	out := make([]Event, len(r.pending))
	copy(out, r.pending)
	return out
}

func (r *Recorder) ClearEvents() {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
}
