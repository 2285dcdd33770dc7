package lifecycle

import (
	"context"
	"time"

	"recordvault/internal/lifecycle/models"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

const timeDay = 24 * time.Hour

// Archive retires a superseded or obsolete version for good. Legal only
// after the type's retention period has elapsed since retirement; an
// archived row is read-only forever, including to the engine itself.
func (e *Engine) Archive(ctx context.Context, ref domain.VersionRef, actor domain.UserID) (*models.Record, error) {
	record, err := e.store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	if record.State != models.StateSuperseded && record.State != models.StateObsolete {
		return nil, dErrors.Newf(dErrors.CodeIllegalTransition,
			"archival is legal only from superseded or obsolete, not %s", record.State)
	}

	def, err := e.registry.GraphFor(record.RecordType)
	if err != nil {
		return nil, err
	}
	if record.RetiredAt == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "retired record is missing its retirement timestamp")
	}
	if remaining := record.RetiredAt.Add(def.Retention).Sub(e.now()); remaining > 0 {
		return nil, dErrors.Newf(dErrors.CodeRetentionActive,
			"retention holds for another %s", remaining.Round(timeDay))
	}

	return e.transition(ctx, TransitionRequest{
		VersionRef: ref,
		ToState:    models.StateArchived,
		ActorID:    actor,
	}, true)
}
