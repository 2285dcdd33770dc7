package audit

import (
	"context"
	"sync"
	"time"

	"recordvault/pkg/domain"
)

// InMemoryStore keeps entries in append order under a mutex. Reads return
// copies so callers cannot reach back into the ledger.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, cloneEntry(entry))
	return nil
}

func (s *InMemoryStore) ListByVersion(_ context.Context, ref domain.VersionRef) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.VersionRef == ref {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByRecord(_ context.Context, recordID domain.RecordID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.RecordID == recordID {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListSince(_ context.Context, after time.Time, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.Timestamp.After(after) {
			out = append(out, cloneEntry(e))
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func cloneEntry(e Entry) Entry {
	c := e
	c.Payload = append([]byte(nil), e.Payload...)
	return c
}
