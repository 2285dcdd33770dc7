package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"recordvault/internal/approval"
	"recordvault/internal/audit"
	"recordvault/internal/identifier"
	"recordvault/internal/lifecycle/models"
	"recordvault/internal/platform/metrics"
	"recordvault/internal/registry"
	"recordvault/internal/training"
	"recordvault/internal/version"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// Engine is the state machine core. Every mutation of a record family
// funnels through it: creation, transitions, signatures, training
// acknowledgement, promotion, supersession and archival.
type Engine struct {
	store     Store
	registry  *registry.Registry
	allocator *identifier.Allocator
	approvals *approval.Service
	training  *training.Gate
	trail     *audit.Trail
	runner    TxRunner
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time

	// familyLocks serializes transitions per record family. Distinct
	// families never contend.
	familyLocks sync.Map
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTxRunner(runner TxRunner) Option {
	return func(e *Engine) {
		e.runner = runner
	}
}

func NewEngine(
	store Store,
	reg *registry.Registry,
	allocator *identifier.Allocator,
	approvals *approval.Service,
	trainingGate *training.Gate,
	trail *audit.Trail,
	opts ...Option,
) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("lifecycle store is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if allocator == nil {
		return nil, fmt.Errorf("identifier allocator is required")
	}
	if approvals == nil {
		return nil, fmt.Errorf("approval service is required")
	}
	if trainingGate == nil {
		return nil, fmt.Errorf("training gate is required")
	}
	if trail == nil {
		return nil, fmt.Errorf("audit trail is required")
	}

	e := &Engine{
		store:     store,
		registry:  reg,
		allocator: allocator,
		approvals: approvals,
		training:  trainingGate,
		trail:     trail,
		runner:    PassthroughRunner{},
		tracer:    otel.Tracer("recordvault/lifecycle"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) lockFamily(recordID domain.RecordID) func() {
	mu, _ := e.familyLocks.LoadOrStore(recordID, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

// CreateRequest opens a new record family.
type CreateRequest struct {
	RecordType domain.RecordType
	OwnerID    domain.UserID
	ContentRef domain.ContentRef
	// ScheduledEffectiveAt optionally defers release past approval.
	ScheduledEffectiveAt *time.Time
}

// Create allocates an identifier and inserts the first draft at 0.1.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*models.Record, error) {
	ctx, span := e.tracer.Start(ctx, "lifecycle.Create",
		trace.WithAttributes(attribute.String("record_type", string(req.RecordType))))
	defer span.End()

	if req.OwnerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner id is required")
	}
	if req.ContentRef == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "content ref is required")
	}
	if _, err := e.registry.GraphFor(req.RecordType); err != nil {
		return nil, err
	}

	var record *models.Record
	err := e.runner.RunInTx(ctx, func(ctx context.Context) error {
		recordID, err := e.allocator.Allocate(ctx, req.RecordType)
		if err != nil {
			if e.metrics != nil && dErrors.Is(err, dErrors.CodeAllocationConflict) {
				e.metrics.AllocationConflicts.Inc()
			}
			return err
		}

		now := e.now().UTC()
		record = &models.Record{
			VersionRef:           domain.NewVersionRef(),
			RecordID:             recordID,
			RecordType:           req.RecordType,
			Version:              version.Initial,
			State:                models.StateDraft,
			OwnerID:              req.OwnerID,
			ContentRef:           req.ContentRef,
			ScheduledEffectiveAt: req.ScheduledEffectiveAt,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := e.store.Insert(ctx, record); err != nil {
			return err
		}

		return e.trail.Record(ctx, record.RecordID, record.VersionRef, req.OwnerID,
			audit.EventRecordCreated, map[string]string{
				"record_type": string(req.RecordType),
				"version":     record.Version.String(),
				"content_ref": string(req.ContentRef),
			})
	})
	if err != nil {
		return nil, err
	}

	if e.logger != nil {
		e.logger.InfoContext(ctx, "record created",
			"record_id", record.RecordID,
			"record_type", record.RecordType,
			"version_ref", record.VersionRef,
		)
	}
	return record, nil
}

// Read returns one record version, enforcing the read gates: drafts and
// in-review versions are visible only to the owner and assigned
// reviewers; effective versions are withheld from required trainees who
// have not acknowledged.
func (e *Engine) Read(ctx context.Context, ref domain.VersionRef, reader domain.UserID) (*models.Record, error) {
	record, err := e.store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	switch record.State {
	case models.StateDraft, models.StateInReview:
		if record.OwnerID == reader {
			return record, nil
		}
		assignments, err := e.approvals.Assignments(ctx, ref)
		if err != nil {
			return nil, err
		}
		for _, a := range assignments {
			if a.AssigneeID == reader {
				return record, nil
			}
		}
		e.auditReadDenied(ctx, record, reader, "not owner or assigned reviewer")
		return nil, dErrors.New(dErrors.CodeForbidden, "drafts are readable by the owner and assigned reviewers only")

	case models.StateEffective:
		if err := e.training.CanRead(ctx, ref, reader); err != nil {
			if dErrors.Is(err, dErrors.CodeTrainingRequired) {
				e.auditReadDenied(ctx, record, reader, "training not acknowledged")
			}
			return nil, err
		}
		return record, nil

	case models.StateArchived:
		e.auditReadDenied(ctx, record, reader, "version archived")
		return nil, dErrors.New(dErrors.CodeForbidden, "archived versions are readable through the family history export only")

	default:
		return record, nil
	}
}

// ReadVersion resolves a family member by its version label and applies
// the same read gates as Read.
func (e *Engine) ReadVersion(ctx context.Context, recordID domain.RecordID, label version.Label, reader domain.UserID) (*models.Record, error) {
	family, err := e.store.Family(ctx, recordID)
	if err != nil {
		return nil, err
	}
	for _, member := range family {
		if member.Version.Compare(label) == 0 {
			return e.Read(ctx, member.VersionRef, reader)
		}
	}
	return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s has no version %s", recordID, label)
}

// ConfirmReview resets the periodic-review anchor of an effective
// version without a version change. The reload under the family lock
// refuses a confirmation that raced a retirement; without it a stale
// snapshot would write the record back to effective.
func (e *Engine) ConfirmReview(ctx context.Context, ref domain.VersionRef, actor domain.UserID, notes string) (*models.Record, error) {
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "actor id is required")
	}

	record, err := e.store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	unlock := e.lockFamily(record.RecordID)
	defer unlock()

	record, err = e.store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if record.State != models.StateEffective {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"periodic review applies to effective records; %s is %s", record.RecordID, record.State)
	}

	updated := record.Clone()
	now := e.now().UTC()
	updated.LastReviewedAt = &now
	updated.UpdatedAt = now

	err = e.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.store.Update(ctx, updated); err != nil {
			return err
		}
		return e.trail.Record(ctx, record.RecordID, record.VersionRef, actor,
			audit.EventReviewCompleted, map[string]string{
				"outcome": "no_change",
				"notes":   notes,
			})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (e *Engine) auditReadDenied(ctx context.Context, record *models.Record, reader domain.UserID, reason string) {
	err := e.trail.Record(ctx, record.RecordID, record.VersionRef, reader,
		audit.EventReadDenied, map[string]string{"reason": reason})
	if err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "read denial not audited", "error", err)
	}
}

// History is the ordered compliance export for one record family.
type History struct {
	Records      []*models.Record
	Transitions  []models.Transition
	Signatures   []approval.Signature
	AuditEntries []audit.Entry
}

// History returns every version, transition, signature and audit entry
// of a family. Read-only; this is the only sanctioned way to look at
// archived data.
func (e *Engine) History(ctx context.Context, recordID domain.RecordID) (*History, error) {
	records, err := e.store.Family(ctx, recordID)
	if err != nil {
		return nil, err
	}
	transitions, err := e.store.TransitionsByFamily(ctx, recordID)
	if err != nil {
		return nil, err
	}

	var signatures []approval.Signature
	for _, r := range records {
		sigs, err := e.approvals.Signatures(ctx, r.VersionRef)
		if err != nil {
			return nil, err
		}
		signatures = append(signatures, sigs...)
	}

	entries, err := e.trail.ByRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	return &History{
		Records:      records,
		Transitions:  transitions,
		Signatures:   signatures,
		AuditEntries: entries,
	}, nil
}
