//go:build integration

package training

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
	"recordvault/pkg/testutil/containers"
)

type PostgresTrainingSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
}

func TestPostgresTrainingSuite(t *testing.T) {
	suite.Run(t, new(PostgresTrainingSuite))
}

func (s *PostgresTrainingSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgresStore(s.pg.DB)
	s.ctx = context.Background()
}

// insertRecord satisfies the foreign key from training_assignments.
func (s *PostgresTrainingSuite) insertRecord(ref domain.VersionRef) {
	now := time.Now().UTC()
	_, err := s.pg.DB.ExecContext(s.ctx, `
		INSERT INTO records (
			version_ref, record_id, record_type, version_major, version_minor,
			state, owner_id, content_ref, created_at, updated_at
		) VALUES ($1, $2, 'sop', 1, 0, 'approved', $3, 'ref', $4, $4)
	`, ref.String(), "SOP-"+ref.String()[:8], domain.NewUserID().String(), now)
	s.Require().NoError(err)
}

func (s *PostgresTrainingSuite) TestAcknowledgeOnce() {
	ref := domain.NewVersionRef()
	s.insertRecord(ref)
	trainee := domain.NewUserID()

	now := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Put(s.ctx, []Assignment{{
		ID:         uuid.New(),
		VersionRef: ref,
		UserID:     trainee,
		AssignedBy: domain.NewUserID(),
		AssignedAt: now,
	}}))

	s.Require().NoError(s.store.Acknowledge(s.ctx, ref, trainee, now.Add(time.Minute)))

	err := s.store.Acknowledge(s.ctx, ref, trainee, now.Add(2*time.Minute))
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeConflict))

	list, err := s.store.List(s.ctx, ref)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Require().NotNil(list[0].AcknowledgedAt)
	s.WithinDuration(now.Add(time.Minute), *list[0].AcknowledgedAt, time.Millisecond)
}

func (s *PostgresTrainingSuite) TestAcknowledgeUnassigned() {
	ref := domain.NewVersionRef()
	s.insertRecord(ref)

	err := s.store.Acknowledge(s.ctx, ref, domain.NewUserID(), time.Now())
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *PostgresTrainingSuite) TestRowsResistTampering() {
	ref := domain.NewVersionRef()
	s.insertRecord(ref)
	trainee := domain.NewUserID()

	s.Require().NoError(s.store.Put(s.ctx, []Assignment{{
		ID:         uuid.New(),
		VersionRef: ref,
		UserID:     trainee,
		AssignedBy: domain.NewUserID(),
		AssignedAt: time.Now().UTC(),
	}}))

	_, err := s.pg.DB.ExecContext(s.ctx,
		`UPDATE training_assignments SET user_id = $1 WHERE version_ref = $2`,
		domain.NewUserID().String(), ref.String())
	s.Require().Error(err, "reassigning a training row must be rejected")

	_, err = s.pg.DB.ExecContext(s.ctx,
		`DELETE FROM training_assignments WHERE version_ref = $1`, ref.String())
	s.Require().Error(err, "training rows must not be deletable")
}
