// Package review implements the periodic re-review of effective records.
// Due dates derive from the lifecycle definition's interval anchored to
// the last effective entry or review reset; the sweep worker surfaces due
// records and retries pending promotions, but holds no special privilege:
// outcomes flow through the same transition API as every other caller.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"recordvault/internal/audit"
	"recordvault/internal/lifecycle"
	"recordvault/internal/lifecycle/models"
	"recordvault/internal/platform/metrics"
	"recordvault/internal/registry"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// Outcome is the result of one periodic review.
type Outcome string

const (
	// OutcomeNoChange confirms the record and resets the due-date anchor.
	OutcomeNoChange Outcome = "no_change"
	// OutcomeMinorRevision opens a revision draft for small corrections.
	OutcomeMinorRevision Outcome = "minor_revision"
	// OutcomeMajorRevision opens a revision draft for a rework.
	OutcomeMajorRevision Outcome = "major_revision"
	// OutcomeObsolete retires the record from circulation.
	OutcomeObsolete Outcome = "obsolete"
)

func (o Outcome) valid() bool {
	switch o {
	case OutcomeNoChange, OutcomeMinorRevision, OutcomeMajorRevision, OutcomeObsolete:
		return true
	}
	return false
}

// DueRecord is one effective record whose review interval has elapsed.
type DueRecord struct {
	VersionRef domain.VersionRef
	RecordID   domain.RecordID
	RecordType domain.RecordType
	DueSince   time.Time
}

type Scheduler struct {
	engine   *lifecycle.Engine
	store    lifecycle.Store
	registry *registry.Registry
	trail    *audit.Trail
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func New(engine *lifecycle.Engine, store lifecycle.Store, reg *registry.Registry, trail *audit.Trail, opts ...Option) (*Scheduler, error) {
	if engine == nil {
		return nil, fmt.Errorf("lifecycle engine is required")
	}
	if store == nil {
		return nil, fmt.Errorf("lifecycle store is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if trail == nil {
		return nil, fmt.Errorf("audit trail is required")
	}

	s := &Scheduler{
		engine:   engine,
		store:    store,
		registry: reg,
		trail:    trail,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DueRecords lists every effective record whose review interval elapsed
// at now. Types with a zero interval never come due.
func (s *Scheduler) DueRecords(ctx context.Context, now time.Time) ([]DueRecord, error) {
	effective, err := s.store.ListByState(ctx, models.StateEffective)
	if err != nil {
		return nil, err
	}

	var due []DueRecord
	for _, record := range effective {
		def, err := s.registry.GraphFor(record.RecordType)
		if err != nil {
			return nil, err
		}
		if def.ReviewInterval <= 0 {
			continue
		}

		anchor := record.EffectiveAt
		if record.LastReviewedAt != nil {
			anchor = record.LastReviewedAt
		}
		if anchor == nil {
			continue
		}

		dueAt := anchor.Add(def.ReviewInterval)
		if !dueAt.After(now) {
			due = append(due, DueRecord{
				VersionRef: record.VersionRef,
				RecordID:   record.RecordID,
				RecordType: record.RecordType,
				DueSince:   dueAt,
			})
		}
	}
	return due, nil
}

// RecordOutcome applies one review verdict. Every outcome, including
// no_change, lands in the audit trail; silence is not an allowed result.
func (s *Scheduler) RecordOutcome(ctx context.Context, ref domain.VersionRef, outcome Outcome, actor domain.UserID, notes string) (*models.Record, error) {
	if !outcome.valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown review outcome %q", outcome)
	}
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "actor id is required")
	}

	record, err := s.store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if record.State != models.StateEffective {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"periodic review applies to effective records; %s is %s", record.RecordID, record.State)
	}

	var result *models.Record
	switch outcome {
	case OutcomeNoChange:
		// The engine owns the anchor reset: it re-reads under the
		// family lock so a retirement committed after our check above
		// cannot be overwritten back to effective.
		result, err = s.engine.ConfirmReview(ctx, ref, actor, notes)

	case OutcomeMinorRevision, OutcomeMajorRevision:
		result, err = s.engine.RequestTransition(ctx, lifecycle.TransitionRequest{
			VersionRef: ref,
			ToState:    models.StateDraft,
			ActorID:    actor,
			Rationale:  notes,
		})
		if err == nil {
			err = s.auditOutcome(ctx, record, outcome, actor, notes)
		}

	case OutcomeObsolete:
		result, err = s.engine.RequestTransition(ctx, lifecycle.TransitionRequest{
			VersionRef: ref,
			ToState:    models.StateObsolete,
			ActorID:    actor,
			Rationale:  notes,
		})
		if err == nil {
			err = s.auditOutcome(ctx, record, outcome, actor, notes)
		}
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ReviewOutcomes.WithLabelValues(string(outcome)).Inc()
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "review outcome recorded",
			"record_id", record.RecordID,
			"outcome", outcome,
		)
	}
	return result, nil
}

func (s *Scheduler) auditOutcome(ctx context.Context, record *models.Record, outcome Outcome, actor domain.UserID, notes string) error {
	return s.trail.Record(ctx, record.RecordID, record.VersionRef, actor,
		audit.EventReviewCompleted, map[string]string{
			"outcome": string(outcome),
			"notes":   notes,
		})
}
