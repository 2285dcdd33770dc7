package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"recordvault/internal/audit"
	"recordvault/internal/lifecycle/models"
	"recordvault/internal/registry"
	"recordvault/internal/version"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// TransitionRequest asks the engine to move one record version to a new
// state.
type TransitionRequest struct {
	VersionRef domain.VersionRef
	ToState    models.State
	ActorID    domain.UserID
	// Rationale is mandatory on rejection and obsoletion edges.
	Rationale string
}

// RequestTransition validates and commits a caller-requested transition.
// Engine-only edges (supersession, archival) are refused here; they are
// driven by the engine itself.
func (e *Engine) RequestTransition(ctx context.Context, req TransitionRequest) (*models.Record, error) {
	return e.transition(ctx, req, false)
}

func (e *Engine) transition(ctx context.Context, req TransitionRequest, engineDriven bool) (*models.Record, error) {
	ctx, span := e.tracer.Start(ctx, "lifecycle.RequestTransition",
		trace.WithAttributes(
			attribute.String("version_ref", req.VersionRef.String()),
			attribute.String("to_state", string(req.ToState)),
		))
	defer span.End()

	start := e.now()

	if req.VersionRef.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "version ref is required")
	}
	if req.ActorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "actor id is required")
	}
	if !req.ToState.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown target state %q", req.ToState)
	}

	// Resolve the family before locking; the ref never migrates between
	// families, so the lock taken from this read is the right one.
	record, err := e.store.GetByRef(ctx, req.VersionRef)
	if err != nil {
		return nil, err
	}
	unlock := e.lockFamily(record.RecordID)
	defer unlock()

	record, err = e.store.GetByRef(ctx, req.VersionRef)
	if err != nil {
		return nil, err
	}

	edge, sigRef, err := e.checkTransition(ctx, record, req, engineDriven)
	if err != nil {
		e.observeRefusal(ctx, record, req, err)
		return nil, err
	}

	var result *models.Record
	err = e.runner.RunInTx(ctx, func(ctx context.Context) error {
		result, err = e.applyTransition(ctx, record, edge, req.ToState, req.ActorID, req.Rationale, sigRef)
		return err
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.TransitionsCommitted.WithLabelValues(string(record.RecordType), string(req.ToState)).Inc()
		e.metrics.TransitionDuration.Observe(e.now().Sub(start).Seconds())
	}
	if e.logger != nil {
		e.logger.InfoContext(ctx, "transition committed",
			"record_id", record.RecordID,
			"from_state", record.State,
			"to_state", req.ToState,
			"version", result.Version.String(),
		)
	}
	return result, nil
}

// checkTransition enforces every guard ahead of the commit: legality,
// terminal states, head-of-family freshness, actor rules, rationale and
// the approval, training and effective-date gates. Returns the edge and,
// for satisfied gates, the committing signature.
func (e *Engine) checkTransition(ctx context.Context, record *models.Record, req TransitionRequest, engineDriven bool) (registry.Edge, *uuid.UUID, error) {
	if record.State.Terminal() {
		return registry.Edge{}, nil, dErrors.Newf(dErrors.CodeTerminalState,
			"record %s version %s is %s and accepts no transitions",
			record.RecordID, record.Version, record.State)
	}

	edge, ok := e.registry.Edge(record.RecordType, record.State, req.ToState)
	if !ok {
		return registry.Edge{}, nil, dErrors.Newf(dErrors.CodeIllegalTransition,
			"no %s -> %s edge in the %s lifecycle", record.State, req.ToState, record.RecordType)
	}
	if edge.EngineOnly && !engineDriven {
		return registry.Edge{}, nil, dErrors.Newf(dErrors.CodeIllegalTransition,
			"%s -> %s is engine-driven and cannot be requested directly", record.State, req.ToState)
	}
	if edge.RequireRationale && strings.TrimSpace(req.Rationale) == "" {
		return registry.Edge{}, nil, dErrors.Newf(dErrors.CodeBadRequest,
			"a rationale is required for %s -> %s", record.State, req.ToState)
	}

	// Version-bumping transitions must act on the family head; a stale
	// ref lost the race to a newer version.
	if transitionKind(record.State, req.ToState) != version.KindNone {
		head, err := e.store.Head(ctx, record.RecordID)
		if err != nil {
			return registry.Edge{}, nil, err
		}
		if head.VersionRef != record.VersionRef {
			return registry.Edge{}, nil, dErrors.Newf(dErrors.CodeNoLongerPending,
				"version %s is no longer the head of %s", record.Version, record.RecordID)
		}
	}

	if record.State == models.StateDraft && req.ToState == models.StateInReview && req.ActorID != record.OwnerID {
		return registry.Edge{}, nil, dErrors.New(dErrors.CodeForbidden,
			"only the record owner may submit a draft for review")
	}

	if record.State == models.StateInReview && req.ToState == models.StateDraft {
		if err := e.requireAssignedReviewer(ctx, record.VersionRef, req.ActorID); err != nil {
			return registry.Edge{}, nil, err
		}
	}

	var sigRef *uuid.UUID
	if len(edge.Roles) > 0 {
		status, err := e.approvals.Status(ctx, record.VersionRef)
		if err != nil {
			if dErrors.Is(err, dErrors.CodeNotFound) {
				return registry.Edge{}, nil, dErrors.New(dErrors.CodeApprovalPending,
					"no reviewers assigned; the approval gate is unsatisfied")
			}
			return registry.Edge{}, nil, err
		}
		if !status.Satisfied {
			return registry.Edge{}, nil, dErrors.Newf(dErrors.CodeApprovalPending,
				"approval gate unsatisfied; pending roles: %v", status.Pending)
		}
		sigs, err := e.approvals.Signatures(ctx, record.VersionRef)
		if err != nil {
			return registry.Edge{}, nil, err
		}
		if n := len(sigs); n > 0 {
			sigRef = &sigs[n-1].ID
		}
	}

	if record.State == models.StateApproved && req.ToState == models.StateEffective {
		if err := e.checkPromotion(ctx, record); err != nil {
			return registry.Edge{}, nil, err
		}
	}

	return edge, sigRef, nil
}

func (e *Engine) checkPromotion(ctx context.Context, record *models.Record) error {
	def, err := e.registry.GraphFor(record.RecordType)
	if err != nil {
		return err
	}
	if def.TrainingGate {
		satisfied, err := e.training.IsSatisfied(ctx, record.VersionRef)
		if err != nil {
			return err
		}
		if !satisfied {
			return dErrors.New(dErrors.CodeTrainingRequired,
				"required trainees have not all acknowledged")
		}
	}
	if record.ScheduledEffectiveAt != nil && e.now().Before(*record.ScheduledEffectiveAt) {
		return dErrors.Newf(dErrors.CodeConflict,
			"scheduled effective date %s has not arrived", record.ScheduledEffectiveAt.Format(time.RFC3339))
	}
	return nil
}

func (e *Engine) requireAssignedReviewer(ctx context.Context, ref domain.VersionRef, actor domain.UserID) error {
	assignments, err := e.approvals.Assignments(ctx, ref)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		if a.AssigneeID == actor {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "only an assigned reviewer may reject")
}

// applyTransition performs the committed mutation. The caller holds the
// family lock and has already validated the edge; this runs inside the
// enclosing transaction so record row, transition fact and audit entry
// land or vanish together.
func (e *Engine) applyTransition(ctx context.Context, record *models.Record, edge registry.Edge, toState models.State, actor domain.UserID, rationale string, sigRef *uuid.UUID) (*models.Record, error) {
	now := e.now().UTC()
	timeInState := now.Sub(record.UpdatedAt)
	kind := transitionKind(record.State, toState)

	nextLabel, err := version.Next(record.Version, kind)
	if err != nil {
		return nil, err
	}

	var target *models.Record
	if kind == version.KindNone {
		target = record.Clone()
		target.State = toState
		target.UpdatedAt = now
		switch toState {
		case models.StateEffective:
			target.EffectiveAt = &now
			target.LastReviewedAt = &now
		case models.StateSuperseded, models.StateObsolete:
			retired := now
			target.RetiredAt = &retired
		}

		// The prior effective member must be demoted before this row turns
		// effective; the schema holds a unique index on one effective
		// version per family, so the order matters even inside the
		// transaction.
		if toState == models.StateEffective {
			prior, err := e.store.Effective(ctx, record.RecordID)
			if err != nil {
				return nil, err
			}
			if prior != nil && prior.VersionRef != target.VersionRef {
				if err := e.supersede(ctx, prior, actor); err != nil {
					return nil, err
				}
			}
		}

		if err := e.store.Update(ctx, target); err != nil {
			return nil, err
		}
	} else {
		target = record.Clone()
		target.VersionRef = domain.NewVersionRef()
		target.Version = nextLabel
		target.State = toState
		target.EffectiveAt = nil
		target.LastReviewedAt = nil
		target.RetiredAt = nil
		target.CreatedAt = now
		target.UpdatedAt = now
		if err := e.store.Insert(ctx, target); err != nil {
			return nil, err
		}

		// A rejected version's open gate dies with it; the next draft is
		// a new version needing fresh signatures.
		if kind == version.KindReject {
			if err := e.approvals.DiscardPending(ctx, record.VersionRef); err != nil {
				return nil, err
			}
		}
	}

	transition := models.Transition{
		ID:           uuid.New(),
		RecordID:     record.RecordID,
		VersionRef:   target.VersionRef,
		FromState:    record.State,
		ToState:      toState,
		ActorID:      actor,
		Rationale:    rationale,
		SignatureRef: sigRef,
		TimeInState:  timeInState,
		Timestamp:    now,
	}
	if err := e.store.InsertTransition(ctx, transition); err != nil {
		return nil, err
	}

	eventType := audit.EventTransitionCommitted
	switch toState {
	case models.StateSuperseded:
		eventType = audit.EventRecordSuperseded
	case models.StateArchived:
		eventType = audit.EventRecordArchived
	}
	err = e.trail.Record(ctx, record.RecordID, target.VersionRef, actor, eventType, map[string]string{
		"from_state": string(record.State),
		"to_state":   string(toState),
		"version":    target.Version.String(),
		"rationale":  rationale,
	})
	if err != nil {
		return nil, err
	}

	return target, nil
}

// observeRefusal records the denial in metrics and, best effort, in the
// audit trail. It runs outside any transaction so the refusal fact
// survives the rollback of the attempted commit.
func (e *Engine) observeRefusal(ctx context.Context, record *models.Record, req TransitionRequest, cause error) {
	code := dErrors.CodeOf(cause)
	if e.metrics != nil {
		e.metrics.TransitionsRejected.WithLabelValues(string(code)).Inc()
	}

	eventType := audit.EventTransitionRefused
	if code == dErrors.CodeApprovalPending || code == dErrors.CodeTrainingRequired {
		eventType = audit.EventGateRejected
	}
	err := e.trail.Record(ctx, record.RecordID, record.VersionRef, req.ActorID, eventType, map[string]string{
		"from_state": string(record.State),
		"to_state":   string(req.ToState),
		"code":       string(code),
		"reason":     cause.Error(),
	})
	if err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "transition refusal not audited", "error", err)
	}
}

func transitionKind(from, to models.State) version.Kind {
	switch {
	case from == models.StateDraft && to == models.StateInReview:
		return version.KindSubmit
	case from == models.StateInReview && to == models.StateDraft:
		return version.KindReject
	case from == models.StateInReview && to == models.StateApproved:
		return version.KindApprove
	case from == models.StateEffective && to == models.StateDraft:
		return version.KindRevise
	default:
		return version.KindNone
	}
}
