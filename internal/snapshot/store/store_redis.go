package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lexaudit/pkg/platform/sentinel"
)

const snapshotKeyPrefix = "lexaudit:snapshot:"

// RedisStore keeps snapshots in Redis so a restarted or replacement instance
// can restore attestation state.
type RedisStore struct {
	client *redis.Client
}

// NewRedis wraps an existing client; the caller owns its lifecycle.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save writes all parts in one MULTI/EXEC transaction.
func (s *RedisStore) Save(ctx context.Context, parts map[string][]byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for name, data := range parts {
			pipe.Set(ctx, snapshotKeyPrefix+name, data, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, snapshotKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, errors.Join(sentinel.ErrUnavailable, err))
	}
	return data, nil
}
