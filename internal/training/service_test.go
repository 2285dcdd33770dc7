package training

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

type TrainingSuite struct {
	suite.Suite
	gate     *Gate
	ref      domain.VersionRef
	assigner domain.UserID
	trainees []domain.UserID
}

func TestTrainingSuite(t *testing.T) {
	suite.Run(t, new(TrainingSuite))
}

func (s *TrainingSuite) SetupTest() {
	gate, err := New(NewMemoryStore())
	s.Require().NoError(err)
	s.gate = gate

	s.ref = domain.NewVersionRef()
	s.assigner = domain.NewUserID()
	s.trainees = []domain.UserID{domain.NewUserID(), domain.NewUserID(), domain.NewUserID()}
}

func (s *TrainingSuite) TestAssign() {
	ctx := context.Background()

	s.Run("assignment registers every trainee once", func() {
		withDup := append(append([]domain.UserID(nil), s.trainees...), s.trainees[0])
		s.Require().NoError(s.gate.Assign(ctx, s.ref, s.assigner, withDup))

		required, err := s.gate.RequiredTrainees(ctx, s.ref)
		s.Require().NoError(err)
		s.Len(required, 3)
	})

	s.Run("second assignment conflicts", func() {
		err := s.gate.Assign(ctx, s.ref, s.assigner, s.trainees)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})

	s.Run("empty trainee list is rejected", func() {
		err := s.gate.Assign(ctx, domain.NewVersionRef(), s.assigner, nil)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func (s *TrainingSuite) TestAcknowledge() {
	ctx := context.Background()
	s.Require().NoError(s.gate.Assign(ctx, s.ref, s.assigner, s.trainees))

	s.Run("assigned trainee acknowledges once", func() {
		s.NoError(s.gate.Acknowledge(ctx, s.ref, s.trainees[0]))

		err := s.gate.Acknowledge(ctx, s.ref, s.trainees[0])
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})

	s.Run("unassigned user cannot acknowledge", func() {
		err := s.gate.Acknowledge(ctx, s.ref, domain.NewUserID())
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *TrainingSuite) TestIsSatisfied() {
	ctx := context.Background()
	s.Require().NoError(s.gate.Assign(ctx, s.ref, s.assigner, s.trainees))

	s.Run("partial acknowledgement is not enough", func() {
		s.Require().NoError(s.gate.Acknowledge(ctx, s.ref, s.trainees[0]))
		s.Require().NoError(s.gate.Acknowledge(ctx, s.ref, s.trainees[1]))

		ok, err := s.gate.IsSatisfied(ctx, s.ref)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("last acknowledgement satisfies the gate", func() {
		s.Require().NoError(s.gate.Acknowledge(ctx, s.ref, s.trainees[2]))

		ok, err := s.gate.IsSatisfied(ctx, s.ref)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("version with no assignments has nothing to wait for", func() {
		ok, err := s.gate.IsSatisfied(ctx, domain.NewVersionRef())
		s.Require().NoError(err)
		s.True(ok)
	})
}

func (s *TrainingSuite) TestCanRead() {
	ctx := context.Background()
	s.Require().NoError(s.gate.Assign(ctx, s.ref, s.assigner, s.trainees))

	s.Run("unacknowledged trainee is blocked with training_required", func() {
		err := s.gate.CanRead(ctx, s.ref, s.trainees[0])
		s.True(dErrors.Is(err, dErrors.CodeTrainingRequired))
	})

	s.Run("acknowledging unblocks the same user", func() {
		s.Require().NoError(s.gate.Acknowledge(ctx, s.ref, s.trainees[0]))
		s.NoError(s.gate.CanRead(ctx, s.ref, s.trainees[0]))
	})

	s.Run("non-trainees read freely", func() {
		s.NoError(s.gate.CanRead(ctx, s.ref, domain.NewUserID()))
	})
}
