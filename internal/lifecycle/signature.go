package lifecycle

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"recordvault/internal/approval"
	"recordvault/internal/audit"
	"recordvault/internal/lifecycle/models"
	"recordvault/internal/reauth"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// SignatureRequest carries one signing attempt against a version in
// review.
type SignatureRequest struct {
	VersionRef domain.VersionRef
	Signer     domain.UserID
	Meaning    string
	Proof      reauth.Proof
}

// SignatureResult reports the recorded signature and, when the gate
// closed, the approved record committed in the same transaction.
type SignatureResult struct {
	Signature approval.Signature
	// Approved is non-nil when this signature satisfied the gate and the
	// in_review version was promoted atomically.
	Approved *models.Record
}

// RecordSignature verifies and records a signature, and when it is the
// last one required, commits the in_review -> approved transition in the
// same transaction. There is never a window where the gate is satisfied
// but the record has not moved.
func (e *Engine) RecordSignature(ctx context.Context, req SignatureRequest) (*SignatureResult, error) {
	ctx, span := e.tracer.Start(ctx, "lifecycle.RecordSignature",
		trace.WithAttributes(attribute.String("version_ref", req.VersionRef.String())))
	defer span.End()

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
	if record.State != models.StateInReview {
		return nil, dErrors.Newf(dErrors.CodeNoLongerPending,
			"version %s of %s is %s, not pending approval", record.Version, record.RecordID, record.State)
	}
	head, err := e.store.Head(ctx, record.RecordID)
	if err != nil {
		return nil, err
	}
	if head.VersionRef != record.VersionRef {
		return nil, dErrors.Newf(dErrors.CodeNoLongerPending,
			"version %s is no longer the head of %s", record.Version, record.RecordID)
	}

	result := &SignatureResult{}
	err = e.runner.RunInTx(ctx, func(ctx context.Context) error {
		sig, err := e.approvals.RecordSignature(ctx, approval.SignRequest{
			VersionRef: record.VersionRef,
			RecordType: record.RecordType,
			Signer:     req.Signer,
			Meaning:    req.Meaning,
			ContentRef: record.ContentRef,
			Proof:      req.Proof,
		})
		if err != nil {
			return err
		}
		result.Signature = sig

		err = e.trail.Record(ctx, record.RecordID, record.VersionRef, req.Signer,
			audit.EventSignatureRecorded, map[string]string{
				"role":           string(sig.Role),
				"meaning":        sig.Meaning,
				"signature_hash": sig.SignatureHash,
			})
		if err != nil {
			return err
		}

		status, err := e.approvals.Status(ctx, record.VersionRef)
		if err != nil {
			return err
		}
		if !status.Satisfied {
			return nil
		}

		edge, ok := e.registry.Edge(record.RecordType, models.StateInReview, models.StateApproved)
		if !ok {
			return dErrors.Newf(dErrors.CodeInternal,
				"the %s lifecycle has no approval edge", record.RecordType)
		}
		approved, err := e.applyTransition(ctx, record, edge, models.StateApproved,
			req.Signer, "", &sig.ID)
		if err != nil {
			return err
		}
		result.Approved = approved
		return nil
	})
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeUnauthorized, dErrors.CodeSignatureRejected, dErrors.CodeOutOfOrder, dErrors.CodeForbidden:
			// The attempt itself is an auditable fact; append it outside
			// the rolled-back transaction.
			auditErr := e.trail.Record(ctx, record.RecordID, record.VersionRef, req.Signer,
				audit.EventSignatureRejected, map[string]string{"reason": err.Error()})
			if auditErr != nil && e.logger != nil {
				e.logger.WarnContext(ctx, "signature rejection not audited", "error", auditErr)
			}
		}
		return nil, err
	}

	if result.Approved != nil {
		if e.metrics != nil {
			e.metrics.TransitionsCommitted.WithLabelValues(
				string(record.RecordType), string(models.StateApproved)).Inc()
		}
		if e.logger != nil {
			e.logger.InfoContext(ctx, "approval gate satisfied",
				"record_id", record.RecordID,
				"version", result.Approved.Version.String(),
			)
		}
	}
	return result, nil
}

// AssignReviewers opens the approval gate on a version in review and
// audits the assignment.
func (e *Engine) AssignReviewers(ctx context.Context, ref domain.VersionRef, assignedBy domain.UserID, pairs []approval.ReviewerPair) error {
	record, err := e.store.GetByRef(ctx, ref)
	if err != nil {
		return err
	}
	unlock := e.lockFamily(record.RecordID)
	defer unlock()

	record, err = e.store.GetByRef(ctx, ref)
	if err != nil {
		return err
	}
	if record.State != models.StateInReview {
		return dErrors.Newf(dErrors.CodeConflict,
			"reviewers are assigned to versions in review; %s is %s", record.RecordID, record.State)
	}

	return e.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.approvals.AssignReviewers(ctx, ref, record.RecordType, assignedBy, pairs); err != nil {
			return err
		}
		roles := make([]string, 0, len(pairs))
		for _, p := range pairs {
			roles = append(roles, string(p.Role))
		}
		return e.trail.Record(ctx, record.RecordID, ref, assignedBy,
			audit.EventReviewersAssigned, map[string]any{"roles": roles})
	})
}

// AssignTraining fixes the required trainee set for an approved version.
func (e *Engine) AssignTraining(ctx context.Context, ref domain.VersionRef, assignedBy domain.UserID, trainees []domain.UserID) error {
	record, err := e.store.GetByRef(ctx, ref)
	if err != nil {
		return err
	}
	unlock := e.lockFamily(record.RecordID)
	defer unlock()

	record, err = e.store.GetByRef(ctx, ref)
	if err != nil {
		return err
	}
	if record.State != models.StateApproved {
		return dErrors.Newf(dErrors.CodeConflict,
			"training is assigned to approved versions; %s is %s", record.RecordID, record.State)
	}

	return e.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.training.Assign(ctx, ref, assignedBy, trainees); err != nil {
			return err
		}
		return e.trail.Record(ctx, record.RecordID, ref, assignedBy,
			audit.EventTrainingAssigned, map[string]int{"trainees": len(trainees)})
	})
}

// AcknowledgeTraining records one trainee's sign-off and, when that was
// the last gate on an approved version, attempts promotion to effective.
func (e *Engine) AcknowledgeTraining(ctx context.Context, ref domain.VersionRef, userID domain.UserID) (*models.Record, error) {
	record, err := e.store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	err = e.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.training.Acknowledge(ctx, ref, userID); err != nil {
			return err
		}
		return e.trail.Record(ctx, record.RecordID, ref, userID,
			audit.EventTrainingAcknowledged, nil)
	})
	if err != nil {
		return nil, err
	}

	if record.State != models.StateApproved {
		return record, nil
	}
	promoted, ok, err := e.PromoteIfReady(ctx, ref, userID)
	if err != nil {
		return nil, err
	}
	if ok {
		return promoted, nil
	}
	return e.store.GetByRef(ctx, ref)
}
