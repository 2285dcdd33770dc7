package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recordvault/pkg/domain"
)

type TrailSuite struct {
	suite.Suite
	store *InMemoryStore
	trail *Trail
}

func TestTrailSuite(t *testing.T) {
	suite.Run(t, new(TrailSuite))
}

func (s *TrailSuite) SetupTest() {
	s.store = NewMemoryStore()

	trail, err := NewTrail(s.store)
	s.Require().NoError(err)
	s.trail = trail
}

func (s *TrailSuite) TestNewTrail() {
	_, err := NewTrail(nil)
	s.Error(err)
}

func (s *TrailSuite) TestRecord() {
	ctx := context.Background()
	ref := domain.NewVersionRef()
	actor := domain.NewUserID()
	recordID := domain.RecordID("SOP-0001")

	payload := map[string]string{"from": "draft", "to": "in_review"}
	s.Require().NoError(s.trail.Record(ctx, recordID, ref, actor, EventTransitionCommitted, payload))

	entries, err := s.trail.ByVersion(ctx, ref)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)

	entry := entries[0]
	s.Equal(recordID, entry.RecordID)
	s.Equal(actor, entry.ActorID)
	s.Equal(EventTransitionCommitted, entry.EventType)
	s.NotZero(entry.ID)
	s.False(entry.Timestamp.IsZero())

	s.Run("digest matches payload", func() {
		body, err := json.Marshal(payload)
		s.Require().NoError(err)
		sum := sha256.Sum256(body)
		s.Equal(hex.EncodeToString(sum[:]), entry.PayloadDigest)
		s.JSONEq(string(body), string(entry.Payload))
	})
}

func (s *TrailSuite) TestByRecord() {
	ctx := context.Background()
	recordID := domain.RecordID("VP-0007")
	refA := domain.NewVersionRef()
	refB := domain.NewVersionRef()
	actor := domain.NewUserID()

	s.Require().NoError(s.trail.Record(ctx, recordID, refA, actor, EventRecordCreated, nil))
	s.Require().NoError(s.trail.Record(ctx, recordID, refB, actor, EventTransitionCommitted, nil))
	s.Require().NoError(s.trail.Record(ctx, "VP-0008", domain.NewVersionRef(), actor, EventRecordCreated, nil))

	s.Run("trail spans every version of the family", func() {
		entries, err := s.trail.ByRecord(ctx, recordID)
		s.Require().NoError(err)
		s.Len(entries, 2)
		s.Equal(EventRecordCreated, entries[0].EventType)
		s.Equal(EventTransitionCommitted, entries[1].EventType)
	})

	s.Run("per-version query filters", func() {
		entries, err := s.trail.ByVersion(ctx, refB)
		s.Require().NoError(err)
		s.Len(entries, 1)
	})
}

func (s *TrailSuite) TestListSince() {
	ctx := context.Background()
	actor := domain.NewUserID()

	for i := 0; i < 5; i++ {
		s.Require().NoError(s.trail.Record(ctx, "SOP-0002", domain.NewVersionRef(), actor, EventSignatureRecorded, nil))
	}

	all, err := s.store.ListSince(ctx, time.Time{}, 0)
	s.Require().NoError(err)
	s.Len(all, 5)

	s.Run("limit caps the batch", func() {
		batch, err := s.store.ListSince(ctx, time.Time{}, 2)
		s.Require().NoError(err)
		s.Len(batch, 2)
	})

	s.Run("cursor excludes already-seen entries", func() {
		rest, err := s.store.ListSince(ctx, all[2].Timestamp, 0)
		s.Require().NoError(err)
		for _, e := range rest {
			s.True(e.Timestamp.After(all[2].Timestamp))
		}
	})
}

func (s *TrailSuite) TestStoreIsolation() {
	ctx := context.Background()
	ref := domain.NewVersionRef()

	s.Require().NoError(s.trail.Record(ctx, "BPR-0001", ref, domain.NewUserID(), EventRecordCreated, map[string]int{"n": 1}))

	entries, err := s.trail.ByVersion(ctx, ref)
	s.Require().NoError(err)
	entries[0].Payload[0] = 'X'

	again, err := s.trail.ByVersion(ctx, ref)
	s.Require().NoError(err)
	s.EqualValues('{', again[0].Payload[0])
}
