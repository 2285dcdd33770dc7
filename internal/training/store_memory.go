package training

import (
	"context"
	"sync"
	"time"

	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// InMemoryStore keeps assignments per version under a mutex.
type InMemoryStore struct {
	mu          sync.RWMutex
	assignments map[domain.VersionRef][]Assignment
}

func NewMemoryStore() *InMemoryStore {
	return &InMemoryStore{assignments: make(map[domain.VersionRef][]Assignment)}
}

func (s *InMemoryStore) Put(_ context.Context, assignments []Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range assignments {
		s.assignments[a.VersionRef] = append(s.assignments[a.VersionRef], cloneAssignment(a))
	}
	return nil
}

func (s *InMemoryStore) List(_ context.Context, ref domain.VersionRef) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Assignment, 0, len(s.assignments[ref]))
	for _, a := range s.assignments[ref] {
		out = append(out, cloneAssignment(a))
	}
	return out, nil
}

func (s *InMemoryStore) Acknowledge(_ context.Context, ref domain.VersionRef, userID domain.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.assignments[ref] {
		if a.UserID != userID {
			continue
		}
		if a.AcknowledgedAt != nil {
			return dErrors.New(dErrors.CodeConflict, "training already acknowledged")
		}
		ack := at
		s.assignments[ref][i].AcknowledgedAt = &ack
		return nil
	}
	return dErrors.New(dErrors.CodeNotFound, "user is not a required trainee for this version")
}

func cloneAssignment(a Assignment) Assignment {
	c := a
	if a.AcknowledgedAt != nil {
		ack := *a.AcknowledgedAt
		c.AcknowledgedAt = &ack
	}
	return c
}
