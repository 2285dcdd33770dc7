// Package lifecycle implements the guarded state machine at the heart of
// the engine: validated transitions, version bumps, approval and training
// gates, supersession and archival, all committed atomically with their
// audit facts.
package lifecycle

import (
	"context"

	"recordvault/internal/lifecycle/models"
	"recordvault/pkg/domain"
)

// Store persists record versions and transition facts. Record rows for
// terminal and retired versions are never deleted; transitions are
// write-once.
type Store interface {
	Insert(ctx context.Context, record *models.Record) error
	Update(ctx context.Context, record *models.Record) error
	GetByRef(ctx context.Context, ref domain.VersionRef) (*models.Record, error)
	// Head returns the highest-versioned member of a family.
	Head(ctx context.Context, recordID domain.RecordID) (*models.Record, error)
	// Effective returns the family's current effective member, or nil.
	Effective(ctx context.Context, recordID domain.RecordID) (*models.Record, error)
	// Family returns every version of a family in ascending version order.
	Family(ctx context.Context, recordID domain.RecordID) ([]*models.Record, error)
	// ListByState returns all records currently in a state, any family.
	ListByState(ctx context.Context, state models.State) ([]*models.Record, error)

	InsertTransition(ctx context.Context, transition models.Transition) error
	TransitionsByFamily(ctx context.Context, recordID domain.RecordID) ([]models.Transition, error)
}

// TxRunner runs fn atomically. SQL deployments wrap everything in one
// database transaction; the in-memory runner relies on the engine's
// per-family serialization instead.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PassthroughRunner satisfies TxRunner without transactional storage.
type PassthroughRunner struct{}

func (PassthroughRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
