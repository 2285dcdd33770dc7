package approval

import (
	"context"
	"sync"

	"recordvault/pkg/domain"
)

// InMemoryStore keeps assignments and signatures under one mutex.
// Signatures survive DiscardAssignments; they are write-once facts.
type InMemoryStore struct {
	mu          sync.RWMutex
	assignments map[domain.VersionRef][]Assignment
	signatures  map[domain.VersionRef][]Signature
}

func NewMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		assignments: make(map[domain.VersionRef][]Assignment),
		signatures:  make(map[domain.VersionRef][]Signature),
	}
}

func (s *InMemoryStore) PutAssignments(_ context.Context, ref domain.VersionRef, assignments []Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[ref] = append([]Assignment(nil), assignments...)
	return nil
}

func (s *InMemoryStore) Assignments(_ context.Context, ref domain.VersionRef) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Assignment(nil), s.assignments[ref]...), nil
}

func (s *InMemoryStore) DiscardAssignments(_ context.Context, ref domain.VersionRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, ref)
	return nil
}

func (s *InMemoryStore) AddSignature(_ context.Context, sig Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signatures[sig.VersionRef] = append(s.signatures[sig.VersionRef], sig)
	return nil
}

func (s *InMemoryStore) Signatures(_ context.Context, ref domain.VersionRef) ([]Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Signature(nil), s.signatures[ref]...), nil
}
