package identifier

import (
	"context"
	"sync"

	"recordvault/pkg/domain"
)

// InMemoryCounterStore keeps per-type sequences under a mutex. Suitable
// for tests and single-process deployments.
type InMemoryCounterStore struct {
	mu       sync.Mutex
	counters map[domain.RecordType]uint64
}

func NewMemory() *InMemoryCounterStore {
	return &InMemoryCounterStore{counters: make(map[domain.RecordType]uint64)}
}

func (s *InMemoryCounterStore) Next(_ context.Context, recordType domain.RecordType) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[recordType]++
	return s.counters[recordType], nil
}
