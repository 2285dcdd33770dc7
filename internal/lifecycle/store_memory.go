package lifecycle

import (
	"context"
	"sort"
	"sync"

	"recordvault/internal/lifecycle/models"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// InMemoryStore keeps record versions and transitions under one RWMutex.
// All reads and writes go through Clone so callers never alias stored
// state.
type InMemoryStore struct {
	mu          sync.RWMutex
	records     map[domain.VersionRef]*models.Record
	families    map[domain.RecordID][]domain.VersionRef
	transitions []models.Transition
}

func NewMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:  make(map[domain.VersionRef]*models.Record),
		families: make(map[domain.RecordID][]domain.VersionRef),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.VersionRef]; exists {
		return dErrors.Newf(dErrors.CodeConflict, "version ref %s already exists", record.VersionRef)
	}
	s.records[record.VersionRef] = record.Clone()
	s.families[record.RecordID] = append(s.families[record.RecordID], record.VersionRef)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.VersionRef]; !exists {
		return dErrors.Newf(dErrors.CodeNotFound, "version ref %s not found", record.VersionRef)
	}
	s.records[record.VersionRef] = record.Clone()
	return nil
}

func (s *InMemoryStore) GetByRef(_ context.Context, ref domain.VersionRef) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[ref]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "version ref %s not found", ref)
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) Head(_ context.Context, recordID domain.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs, ok := s.families[recordID]
	if !ok || len(refs) == 0 {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "record family %s not found", recordID)
	}

	var head *models.Record
	for _, ref := range refs {
		r := s.records[ref]
		if head == nil || r.Version.Compare(head.Version) > 0 {
			head = r
		}
	}
	return head.Clone(), nil
}

func (s *InMemoryStore) Effective(_ context.Context, recordID domain.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ref := range s.families[recordID] {
		r := s.records[ref]
		if r.State == models.StateEffective {
			return r.Clone(), nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) Family(_ context.Context, recordID domain.RecordID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs, ok := s.families[recordID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "record family %s not found", recordID)
	}

	out := make([]*models.Record, 0, len(refs))
	for _, ref := range refs {
		out = append(out, s.records[ref].Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Version.Compare(out[j].Version) < 0
	})
	return out, nil
}

func (s *InMemoryStore) ListByState(_ context.Context, state models.State) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Record
	for _, r := range s.records {
		if r.State == state {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RecordID != out[j].RecordID {
			return out[i].RecordID < out[j].RecordID
		}
		return out[i].Version.Compare(out[j].Version) < 0
	})
	return out, nil
}

func (s *InMemoryStore) InsertTransition(_ context.Context, transition models.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, transition)
	return nil
}

func (s *InMemoryStore) TransitionsByFamily(_ context.Context, recordID domain.RecordID) ([]models.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Transition
	for _, t := range s.transitions {
		if t.RecordID == recordID {
			out = append(out, t)
		}
	}
	return out, nil
}
