package identifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"recordvault/internal/registry"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

type AllocatorSuite struct {
	suite.Suite
	registry  *registry.Registry
	allocator *Allocator
}

func TestAllocatorSuite(t *testing.T) {
	suite.Run(t, new(AllocatorSuite))
}

func (s *AllocatorSuite) SetupTest() {
	reg, err := registry.New(registry.Defaults()...)
	s.Require().NoError(err)
	s.registry = reg

	s.allocator, err = New(NewMemory(), reg)
	s.Require().NoError(err)
}

func (s *AllocatorSuite) TestNew() {
	s.Run("nil counter store returns error", func() {
		_, err := New(nil, s.registry)
		s.Error(err)
	})

	s.Run("nil prefix source returns error", func() {
		_, err := New(NewMemory(), nil)
		s.Error(err)
	})
}

func (s *AllocatorSuite) TestAllocate() {
	ctx := context.Background()

	s.Run("produces prefixed zero-padded sequence", func() {
		id, err := s.allocator.Allocate(ctx, "sop")
		s.NoError(err)
		s.EqualValues("SOP-0001", id)

		id, err = s.allocator.Allocate(ctx, "sop")
		s.NoError(err)
		s.EqualValues("SOP-0002", id)
	})

	s.Run("sequences are independent per type", func() {
		id, err := s.allocator.Allocate(ctx, "vp")
		s.NoError(err)
		s.EqualValues("VP-0001", id)
	})

	s.Run("unknown record type fails", func() {
		_, err := s.allocator.Allocate(ctx, "bogus")
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

type failingCounter struct{}

func (failingCounter) Next(context.Context, domain.RecordType) (uint64, error) {
	return 0, errors.New("counter store down")
}

func (s *AllocatorSuite) TestAllocateConflict() {
	alloc, err := New(failingCounter{}, s.registry)
	s.Require().NoError(err)

	_, err = alloc.Allocate(context.Background(), "sop")
	s.Error(err)
	s.True(dErrors.Is(err, dErrors.CodeAllocationConflict))
}

// TestConcurrentAllocation verifies strict monotonicity with no gaps or
// duplicates under concurrent callers.
func (s *AllocatorSuite) TestConcurrentAllocation() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[domain.RecordID]struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.allocator.Allocate(ctx, "bpr")
			s.NoError(err)
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Len(seen, goroutines)
	s.Contains(seen, domain.RecordID("BPR-0001"))
	s.Contains(seen, domain.RecordID("BPR-0050"))
}
