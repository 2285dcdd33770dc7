package identifier

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"recordvault/pkg/domain"
)

// RedisCounterStore allocates sequences with INCR, which is atomic on the
// server side. Used when several engine instances share one counter space.
type RedisCounterStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func counterKey(recordType domain.RecordType) string {
	return "recordvault:counter:" + string(recordType)
}

func (s *RedisCounterStore) Next(ctx context.Context, recordType domain.RecordType) (uint64, error) {
	seq, err := s.client.Incr(ctx, counterKey(recordType)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment identifier counter: %w", err)
	}
	return uint64(seq), nil
}
