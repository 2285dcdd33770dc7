package lifecycle

import (
	"context"

	"recordvault/internal/lifecycle/models"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// supersede demotes the previously effective member of a family. Runs
// inside the transaction that promoted its successor, so a family is
// never observed with zero or two effective members.
func (e *Engine) supersede(ctx context.Context, prior *models.Record, actor domain.UserID) error {
	edge, ok := e.registry.Edge(prior.RecordType, models.StateEffective, models.StateSuperseded)
	if !ok {
		return dErrors.Newf(dErrors.CodeInternal,
			"the %s lifecycle has no supersession edge", prior.RecordType)
	}
	_, err := e.applyTransition(ctx, prior, edge, models.StateSuperseded, actor, "", nil)
	return err
}

// PromoteIfReady attempts the approved -> effective transition for one
// version. Gate failures are reported as nil, false: not yet ready is an
// expected answer, not an error.
func (e *Engine) PromoteIfReady(ctx context.Context, ref domain.VersionRef, actor domain.UserID) (*models.Record, bool, error) {
	record, err := e.transition(ctx, TransitionRequest{
		VersionRef: ref,
		ToState:    models.StateEffective,
		ActorID:    actor,
	}, true)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeTrainingRequired, dErrors.CodeConflict, dErrors.CodeIllegalTransition:
			return nil, false, nil
		}
		return nil, false, err
	}
	return record, true, nil
}
