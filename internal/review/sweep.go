package review

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"recordvault/internal/lifecycle/models"
)

// Sweep runs the recurring background pass: surface due reviews and
// retry promotion of approved records whose training gate or effective
// date has since been satisfied. It issues ordinary requests through the
// engine API with no special privilege.
type Sweep struct {
	scheduler *Scheduler
	interval  time.Duration
}

func NewSweep(scheduler *Scheduler, interval time.Duration) *Sweep {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweep{scheduler: scheduler, interval: interval}
}

// Run blocks until the context is cancelled.
func (w *Sweep) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.pass(ctx)
		}
	}
}

func (w *Sweep) pass(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.reportDue(ctx) })
	g.Go(func() error { return w.promotePending(ctx) })

	if err := g.Wait(); err != nil && w.scheduler.logger != nil {
		w.scheduler.logger.WarnContext(ctx, "review sweep pass failed", "error", err)
	}
}

func (w *Sweep) reportDue(ctx context.Context) error {
	due, err := w.scheduler.DueRecords(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(due) > 0 && w.scheduler.logger != nil {
		for _, d := range due {
			w.scheduler.logger.InfoContext(ctx, "periodic review due",
				"record_id", d.RecordID,
				"record_type", d.RecordType,
				"due_since", d.DueSince,
			)
		}
	}
	return nil
}

func (w *Sweep) promotePending(ctx context.Context) error {
	approved, err := w.scheduler.store.ListByState(ctx, models.StateApproved)
	if err != nil {
		return err
	}
	for _, record := range approved {
		promoted, ok, err := w.scheduler.engine.PromoteIfReady(ctx, record.VersionRef, record.OwnerID)
		if err != nil {
			return err
		}
		if ok && w.scheduler.logger != nil {
			w.scheduler.logger.InfoContext(ctx, "approved record promoted by sweep",
				"record_id", promoted.RecordID,
				"version", promoted.Version.String(),
			)
		}
	}
	return nil
}
