package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a shared ReplayStore backed by Redis, for teams replaying
// fixtures across multiple processes or CI runners without a shared disk.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces every key this store writes, so one Redis
// instance can back multiple clients.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithTTL expires recorded exchanges after d. Zero (the default) keeps
// them forever.
func WithTTL(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.ttl = d }
}

// NewRedisStore wraps an existing *redis.Client.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "gracy:replay:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(fp string) string {
	return s.prefix + fp
}

func (s *RedisStore) Record(ctx context.Context, fp string, exchange Exchange) error {
	payload, err := json.Marshal(exchange)
	if err != nil {
		return fmt.Errorf("replay: marshal exchange: %w", err)
	}
	if err := s.client.Set(ctx, s.key(fp), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("replay: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, fp string, isSuccess func(status int) bool) (*Exchange, error) {
	payload, err := s.client.Get(ctx, s.key(fp)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("replay: redis get: %w", err)
	}

	var exchange Exchange
	if err := json.Unmarshal(payload, &exchange); err != nil {
		return nil, fmt.Errorf("replay: unmarshal exchange: %w", err)
	}
	if exchange.DiscardOnBadStatus && isSuccess != nil && !isSuccess(exchange.Status) {
		return nil, ErrNotFound
	}
	return &exchange, nil
}
