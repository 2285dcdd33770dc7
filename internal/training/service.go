package training

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"recordvault/internal/platform/metrics"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// Store persists training assignments.
type Store interface {
	Put(ctx context.Context, assignments []Assignment) error
	List(ctx context.Context, ref domain.VersionRef) ([]Assignment, error)
	Acknowledge(ctx context.Context, ref domain.VersionRef, userID domain.UserID, at time.Time) error
}

// Gate tracks required trainees per record version and answers the two
// questions the engine asks: is the gate satisfied, and may this user
// read.
type Gate struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func New(store Store, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("training store is required")
	}

	g := &Gate{store: store, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Assign registers the required trainees for a version. Duplicate user
// IDs collapse to one assignment; assigning twice for the same version
// is a conflict because the trainee set is fixed at approval time.
func (g *Gate) Assign(ctx context.Context, ref domain.VersionRef, assignedBy domain.UserID, trainees []domain.UserID) error {
	if len(trainees) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "at least one trainee is required")
	}

	existing, err := g.store.List(ctx, ref)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return dErrors.New(dErrors.CodeConflict, "training already assigned for this version")
	}

	now := g.now().UTC()
	seen := make(map[domain.UserID]struct{}, len(trainees))
	assignments := make([]Assignment, 0, len(trainees))
	for _, userID := range trainees {
		if userID.IsNil() {
			return dErrors.New(dErrors.CodeBadRequest, "trainee id must not be nil")
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		assignments = append(assignments, Assignment{
			ID:         uuid.New(),
			VersionRef: ref,
			UserID:     userID,
			AssignedBy: assignedBy,
			AssignedAt: now,
		})
	}

	if err := g.store.Put(ctx, assignments); err != nil {
		return err
	}
	if g.logger != nil {
		g.logger.InfoContext(ctx, "training assigned",
			"version_ref", ref,
			"trainees", len(assignments),
		)
	}
	return nil
}

// Acknowledge records one trainee's sign-off. Unassigned users and
// repeat acknowledgements are rejected so every successful call maps to
// exactly one audit fact.
func (g *Gate) Acknowledge(ctx context.Context, ref domain.VersionRef, userID domain.UserID) error {
	if err := g.store.Acknowledge(ctx, ref, userID, g.now().UTC()); err != nil {
		return err
	}
	if g.metrics != nil {
		g.metrics.TrainingAcks.Inc()
	}
	if g.logger != nil {
		g.logger.InfoContext(ctx, "training acknowledged",
			"version_ref", ref,
			"user_id", userID,
		)
	}
	return nil
}

// RequiredTrainees returns the users who must acknowledge this version.
func (g *Gate) RequiredTrainees(ctx context.Context, ref domain.VersionRef) ([]domain.UserID, error) {
	assignments, err := g.store.List(ctx, ref)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserID, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, a.UserID)
	}
	return out, nil
}

// IsSatisfied reports whether every required trainee has acknowledged.
// A version with no assignments has nothing to wait for.
func (g *Gate) IsSatisfied(ctx context.Context, ref domain.VersionRef) (bool, error) {
	assignments, err := g.store.List(ctx, ref)
	if err != nil {
		return false, err
	}
	for _, a := range assignments {
		if !a.Acknowledged() {
			return false, nil
		}
	}
	return true, nil
}

// CanRead fails with training_required when the user is a required
// trainee who has not yet acknowledged. Everyone else passes; state
// based read rules are the engine's concern, not the gate's.
func (g *Gate) CanRead(ctx context.Context, ref domain.VersionRef, userID domain.UserID) error {
	assignments, err := g.store.List(ctx, ref)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		if a.UserID == userID && !a.Acknowledged() {
			return dErrors.New(dErrors.CodeTrainingRequired, "training must be acknowledged before reading this record")
		}
	}
	return nil
}
