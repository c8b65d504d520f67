package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	accessKey  = "accessToken"
	refreshKey = "refreshToken"
)

// RedisStore keeps the two tokens under separate keys in Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store using client. Keys are prefix+"accessToken"
// and prefix+"refreshToken".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keys() (string, string) {
	return s.prefix + accessKey, s.prefix + refreshKey
}

// Load fetches both keys. Either key missing counts as absent.
func (s *RedisStore) Load(ctx context.Context) (*Credential, error) {
	ak, rk := s.keys()
	vals, err := s.client.MGet(ctx, ak, rk).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	c := Credential{}
	if len(vals) == 2 {
		c.AccessToken, _ = vals[0].(string)
		c.RefreshToken, _ = vals[1].(string)
	}
	if !c.Complete() {
		return nil, nil
	}
	return &c, nil
}

// Save writes both keys in one transaction.
func (s *RedisStore) Save(ctx context.Context, c Credential) error {
	ak, rk := s.keys()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ak, c.AccessToken, 0)
		pipe.Set(ctx, rk, c.RefreshToken, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Close closes the Redis client the store was created with.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Clear deletes both keys.
func (s *RedisStore) Clear(ctx context.Context) error {
	ak, rk := s.keys()
	if err := s.client.Del(ctx, ak, rk).Err(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
