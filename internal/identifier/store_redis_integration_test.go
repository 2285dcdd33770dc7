//go:build integration

package identifier

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"recordvault/pkg/domain"
	"recordvault/pkg/testutil/containers"
)

func TestRedisCounterStore(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := NewRedis(rc.Client)
	ctx := context.Background()

	t.Run("sequences are monotonic per type", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		for want := uint64(1); want <= 5; want++ {
			got, err := store.Next(ctx, domain.RecordType("sop"))
			require.NoError(t, err)
			require.Equal(t, want, got)
		}

		got, err := store.Next(ctx, domain.RecordType("bpr"))
		require.NoError(t, err)
		require.Equal(t, uint64(1), got, "types must not share a sequence")
	})

	t.Run("concurrent allocation never repeats", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		const workers = 20
		const perWorker = 25

		var mu sync.Mutex
		seen := make(map[uint64]bool, workers*perWorker)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					seq, err := store.Next(ctx, domain.RecordType("sop"))
					if err != nil {
						t.Error(err)
						return
					}
					mu.Lock()
					if seen[seq] {
						t.Errorf("sequence %d allocated twice", seq)
					}
					seen[seq] = true
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Len(t, seen, workers*perWorker)
	})
}
