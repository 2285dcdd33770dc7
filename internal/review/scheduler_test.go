package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recordvault/internal/approval"
	"recordvault/internal/audit"
	"recordvault/internal/identifier"
	"recordvault/internal/lifecycle"
	"recordvault/internal/lifecycle/models"
	"recordvault/internal/platform/metrics"
	"recordvault/internal/reauth"
	"recordvault/internal/registry"
	"recordvault/internal/training"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

const testSigningKey = "review-suite-signing-key"

type SchedulerSuite struct {
	suite.Suite
	scheduler *Scheduler
	engine    *lifecycle.Engine
	store     *lifecycle.InMemoryStore
	trail     *audit.Trail
	tokens    *reauth.TokenVerifier

	owner   domain.UserID
	quality domain.UserID
	final   domain.UserID
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	reg, err := registry.New(registry.Defaults()...)
	s.Require().NoError(err)

	s.store = lifecycle.NewMemoryStore()
	s.trail, err = audit.NewTrail(audit.NewMemoryStore())
	s.Require().NoError(err)

	s.tokens = reauth.NewTokenVerifier(testSigningKey, 2*time.Minute)
	approvals, err := approval.New(approval.NewMemoryStore(), reg, s.tokens)
	s.Require().NoError(err)

	gate, err := training.New(training.NewMemoryStore())
	s.Require().NoError(err)

	allocator, err := identifier.New(identifier.NewMemory(), reg)
	s.Require().NoError(err)

	s.engine, err = lifecycle.NewEngine(s.store, reg, allocator, approvals, gate, s.trail,
		lifecycle.WithMetrics(metrics.NewForTest()))
	s.Require().NoError(err)

	s.scheduler, err = New(s.engine, s.store, reg, s.trail,
		WithMetrics(metrics.NewForTest()))
	s.Require().NoError(err)

	s.owner = domain.NewUserID()
	s.quality = domain.NewUserID()
	s.final = domain.NewUserID()
}

// releaseBPR drives a batch record to effective; bpr has no training
// gate, so signatures alone release it.
func (s *SchedulerSuite) releaseBPR() *models.Record {
	ctx := context.Background()

	record, err := s.engine.Create(ctx, lifecycle.CreateRequest{
		RecordType: "bpr",
		OwnerID:    s.owner,
		ContentRef: "s3://vault/batch/b-300.pdf",
	})
	s.Require().NoError(err)

	inReview, err := s.engine.RequestTransition(ctx, lifecycle.TransitionRequest{
		VersionRef: record.VersionRef,
		ToState:    models.StateInReview,
		ActorID:    s.owner,
	})
	s.Require().NoError(err)

	err = s.engine.AssignReviewers(ctx, inReview.VersionRef, s.owner, []approval.ReviewerPair{
		{Role: registry.RoleQualityReviewer, User: s.quality},
		{Role: registry.RoleFinalApprover, User: s.final},
	})
	s.Require().NoError(err)

	for _, signer := range []domain.UserID{s.quality, s.final} {
		token, err := s.tokens.Issue(signer)
		s.Require().NoError(err)
		_, err = s.engine.RecordSignature(ctx, lifecycle.SignatureRequest{
			VersionRef: inReview.VersionRef,
			Signer:     signer,
			Meaning:    "review complete",
			Proof:      reauth.Proof{Token: token},
		})
		s.Require().NoError(err)
	}

	head, err := s.store.Head(ctx, record.RecordID)
	s.Require().NoError(err)
	effective, err := s.engine.RequestTransition(ctx, lifecycle.TransitionRequest{
		VersionRef: head.VersionRef,
		ToState:    models.StateEffective,
		ActorID:    s.owner,
	})
	s.Require().NoError(err)
	return effective
}

func (s *SchedulerSuite) TestDueRecords() {
	ctx := context.Background()
	effective := s.releaseBPR()

	// bpr has no review interval configured; sop-class types do. Verify
	// interval-free types never come due, then re-anchor an effective
	// record far in the past to force one due.
	s.Run("types without an interval never come due", func() {
		due, err := s.scheduler.DueRecords(ctx, time.Now().Add(100*365*24*time.Hour))
		s.Require().NoError(err)
		s.Empty(due)
	})

	_ = effective
}

func (s *SchedulerSuite) TestDueAfterInterval() {
	ctx := context.Background()

	// Use a private registry with a short-interval type so due dates are
	// exercised without clock tricks against the default definitions.
	defs := registry.Defaults()
	for i := range defs {
		if defs[i].Type == "bpr" {
			defs[i].ReviewInterval = 30 * 24 * time.Hour
		}
	}
	reg, err := registry.New(defs...)
	s.Require().NoError(err)

	scheduler, err := New(s.engine, s.store, reg, s.trail)
	s.Require().NoError(err)

	effective := s.releaseBPR()

	s.Run("not due before the interval elapses", func() {
		due, err := scheduler.DueRecords(ctx, time.Now())
		s.Require().NoError(err)
		s.Empty(due)
	})

	s.Run("due once the interval has elapsed", func() {
		due, err := scheduler.DueRecords(ctx, time.Now().Add(31*24*time.Hour))
		s.Require().NoError(err)
		s.Require().Len(due, 1)
		s.Equal(effective.VersionRef, due[0].VersionRef)
		s.Equal(effective.RecordID, due[0].RecordID)
	})

	s.Run("no_change outcome resets the anchor", func() {
		_, err := scheduler.RecordOutcome(ctx, effective.VersionRef, OutcomeNoChange, s.quality, "reviewed, no changes")
		s.Require().NoError(err)

		due, err := scheduler.DueRecords(ctx, time.Now().Add(31*24*time.Hour))
		s.Require().NoError(err)
		s.Empty(due)
	})
}

func (s *SchedulerSuite) TestRecordOutcome() {
	ctx := context.Background()
	effective := s.releaseBPR()

	s.Run("unknown outcome is rejected", func() {
		_, err := s.scheduler.RecordOutcome(ctx, effective.VersionRef, "shrug", s.quality, "")
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("no_change keeps state and version", func() {
		updated, err := s.scheduler.RecordOutcome(ctx, effective.VersionRef, OutcomeNoChange, s.quality, "fine as is")
		s.Require().NoError(err)
		s.Equal(models.StateEffective, updated.State)
		s.Equal(effective.Version, updated.Version)
		s.Require().NotNil(updated.LastReviewedAt)

		entries, err := s.trail.ByVersion(ctx, effective.VersionRef)
		s.Require().NoError(err)
		var reviewed bool
		for _, e := range entries {
			if e.EventType == audit.EventReviewCompleted {
				reviewed = true
			}
		}
		s.True(reviewed, "no_change must still write an audit entry")
	})

	s.Run("minor revision opens a draft", func() {
		draft, err := s.scheduler.RecordOutcome(ctx, effective.VersionRef, OutcomeMinorRevision, s.quality, "clarify step 4")
		s.Require().NoError(err)
		s.Equal(models.StateDraft, draft.State)
		s.Equal("1.1", draft.Version.String())

		// The reviewed release stays effective while the revision drafts.
		current, err := s.store.GetByRef(ctx, effective.VersionRef)
		s.Require().NoError(err)
		s.Equal(models.StateEffective, current.State)
	})
}

func (s *SchedulerSuite) TestObsoleteOutcome() {
	ctx := context.Background()
	effective := s.releaseBPR()

	obsolete, err := s.scheduler.RecordOutcome(ctx, effective.VersionRef, OutcomeObsolete, s.quality, "process retired")
	s.Require().NoError(err)
	s.Equal(models.StateObsolete, obsolete.State)
	s.Require().NotNil(obsolete.RetiredAt)

	s.Run("a retired record cannot be reviewed again", func() {
		_, err := s.scheduler.RecordOutcome(ctx, effective.VersionRef, OutcomeNoChange, s.quality, "")
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})
}

// staleReadStore fires a hook once after a successful read, so a test
// can commit a competing change between the scheduler's snapshot and
// the outcome it applies.
type staleReadStore struct {
	lifecycle.Store
	onRead func()
}

func (s *staleReadStore) GetByRef(ctx context.Context, ref domain.VersionRef) (*models.Record, error) {
	record, err := s.Store.GetByRef(ctx, ref)
	if err == nil && s.onRead != nil {
		hook := s.onRead
		s.onRead = nil
		hook()
	}
	return record, err
}

func (s *SchedulerSuite) TestNoChangeLosingRaceToObsoletionIsRefused() {
	ctx := context.Background()
	effective := s.releaseBPR()

	// Obsolete the record right after the scheduler takes its snapshot,
	// the way a concurrent caller would.
	store := &staleReadStore{Store: s.store}
	store.onRead = func() {
		_, err := s.engine.RequestTransition(ctx, lifecycle.TransitionRequest{
			VersionRef: effective.VersionRef,
			ToState:    models.StateObsolete,
			ActorID:    s.owner,
			Rationale:  "process retired",
		})
		s.Require().NoError(err)
	}

	reg, err := registry.New(registry.Defaults()...)
	s.Require().NoError(err)
	scheduler, err := New(s.engine, store, reg, s.trail)
	s.Require().NoError(err)

	_, err = scheduler.RecordOutcome(ctx, effective.VersionRef, OutcomeNoChange, s.quality, "fine as is")
	s.True(dErrors.Is(err, dErrors.CodeConflict))

	// The retirement must survive; the stale snapshot may not resurrect
	// the record or clear its retirement stamp.
	current, err := s.store.GetByRef(ctx, effective.VersionRef)
	s.Require().NoError(err)
	s.Equal(models.StateObsolete, current.State)
	s.Require().NotNil(current.RetiredAt)
	s.Nil(current.LastReviewedAt)
}
