package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/escrow/pkg/session"
	"github.com/redis/go-redis/v9"
)

// RedisSessionStore implements session.Store using Redis string keys.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisSessionStore creates a RedisSessionStore over an existing client.
func NewRedisSessionStore(
	client redis.UniversalClient,
	prefix string,
	ttl time.Duration,
	logger *slog.Logger,
) *RedisSessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSessionStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With("component", "redis-session-store"),
	}
}

func (c *RedisSessionStore) key(userID string) string {
	return c.prefix + "session:" + userID
}

// Get implements session.Store.
func (c *RedisSessionStore) Get(ctx context.Context, userID string) (*session.State, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis session get: %w", err)
	}
	var state session.State
	if err := json.Unmarshal(raw, &state); err != nil {
		c.logger.Warn("discarding corrupt session", "user_id", userID, "error", err)
		_ = c.client.Del(ctx, c.key(userID)).Err()
		return nil, session.ErrNotFound
	}
	return &state, nil
}

// Set implements session.Store.
func (c *RedisSessionStore) Set(ctx context.Context, userID string, state *session.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis session marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.key(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis session set: %w", err)
	}
	return nil
}

// Delete implements session.Store.
func (c *RedisSessionStore) Delete(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis session delete: %w", err)
	}
	return nil
}

var _ session.Store = (*RedisSessionStore)(nil)
