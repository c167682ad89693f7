package recurring

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"personal-ledger/app"
	"personal-ledger/store"
)

// Creator is the slice of the ledger service a runner needs.
type Creator interface {
	CreateMovement(ctx context.Context, cmd app.CreateMovementCommand) (string, error)
	CreateTransfer(ctx context.Context, cmd app.CreateTransferCommand) (string, error)
}

type Runner struct {
	creator Creator

	mu        sync.Mutex
	schedules map[string]*Schedule
}

func NewRunner(creator Creator) *Runner {
	if creator == nil {
		panic("recurring.NewRunner: creator is nil")
	}
	return &Runner{creator: creator, schedules: make(map[string]*Schedule)}
}

func (r *Runner) Add(s Schedule) (string, error) {
	if err := s.validate(); err != nil {
		return "", fmt.Errorf("invalid schedule: %w", err)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schedules[s.ID]; exists {
		return "", fmt.Errorf("%w: schedule %s", store.ErrDuplicate, s.ID)
	}
	r.schedules[s.ID] = &s
	log.WithFields(log.Fields{"schedule": s.ID, "target": s.Target, "frequency": s.Frequency}).Info("schedule added")
	return s.ID, nil
}

func (r *Runner) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[id]; !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	delete(r.schedules, id)
	return nil
}

func (r *Runner) Get(id string) (Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return Schedule{}, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	return *s, nil
}

// List returns the schedules of one owner ordered by next run.
func (r *Runner) List(ownerID string) []Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Schedule
	for _, s := range r.schedules {
		if s.OwnerID == ownerID {
			out = append(out, *s)
		}
	}
	slices.SortFunc(out, func(a, b Schedule) int {
		if c := a.NextRun().Compare(b.NextRun()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// RunDue issues every occurrence due at or before now, oldest first. A
// failing schedule stops advancing and is retried on the next run; the
// others carry on. It returns how many commands were issued.
func (r *Runner) RunDue(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.schedules))
	for id := range r.schedules {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	issued := 0
	var errs []error
	for _, id := range ids {
		s := r.schedules[id]
		for !s.Finished() && !s.NextRun().After(now) {
			if err := ctx.Err(); err != nil {
				return issued, errors.Join(append(errs, err)...)
			}
			err := r.issue(ctx, s)
			if errors.Is(err, store.ErrDuplicate) {
				log.WithFields(log.Fields{"schedule": s.ID, "occurrence": s.Issued + 1}).Debug("occurrence already booked")
			} else if err != nil {
				log.WithError(err).WithField("schedule", s.ID).Warn("scheduled command failed")
				errs = append(errs, fmt.Errorf("schedule %s: %w", s.ID, err))
				break
			} else {
				issued++
			}
			s.Issued++
		}
	}
	return issued, errors.Join(errs...)
}

func (r *Runner) issue(ctx context.Context, s *Schedule) error {
	date := s.NextRun()
	id := s.occurrenceID()
	if s.Target == TransferTarget {
		_, err := r.creator.CreateTransfer(ctx, app.CreateTransferCommand{
			TransferID:           id,
			OwnerID:              s.OwnerID,
			OriginAccountID:      s.AccountID,
			DestinationAccountID: s.DestinationAccountID,
			Amount:               s.Amount,
			Date:                 date,
			Description:          s.Description,
		})
		return err
	}
	_, err := r.creator.CreateMovement(ctx, app.CreateMovementCommand{
		MovementID:  id,
		OwnerID:     s.OwnerID,
		Kind:        s.Target.movementKind(),
		AccountID:   s.AccountID,
		Amount:      s.Amount,
		Date:        date,
		Description: s.Description,
	})
	return err
}

// Start polls RunDue every interval until ctx is cancelled.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.WithField("interval", interval).Info("recurring runner started")
	for {
		if n, err := r.RunDue(ctx, time.Now()); err != nil {
			log.WithError(err).Warn("recurring run finished with errors")
		} else if n > 0 {
			log.WithField("issued", n).Info("recurring run issued commands")
		}
		select {
		case <-ctx.Done():
			log.Info("recurring runner stopped")
			return
		case <-ticker.C:
		}
	}
}

