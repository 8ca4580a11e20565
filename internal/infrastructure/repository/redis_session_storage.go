package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/ports"

	"github.com/redis/go-redis/v9"
)

const redisSessionPrefix = "fpp:session:"

// RedisSessionStorage implements SessionStorage using Redis.
// Sessions with an expiry get a matching key TTL.
type RedisSessionStorage struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisSessionStorage creates a new Redis session storage
func NewRedisSessionStorage(client redis.UniversalClient) *RedisSessionStorage {
	return &RedisSessionStorage{
		client: client,
		prefix: redisSessionPrefix,
		now:    time.Now,
	}
}

var _ ports.SessionStorage = (*RedisSessionStorage)(nil)

func (r *RedisSessionStorage) key(id string) string {
	return r.prefix + id
}

// StoreSession saves or replaces a session
func (r *RedisSessionStorage) StoreSession(ctx context.Context, session *domain.Session) (bool, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return false, fmt.Errorf("failed to encode session: %w", err)
	}

	var ttl time.Duration
	if session.Expires != nil {
		ttl = session.Expires.Sub(r.now())
		if ttl <= 0 {
			// already expired; keep it briefly so callers can still observe it
			ttl = time.Second
		}
	}

	if err := r.client.Set(ctx, r.key(session.ID), payload, ttl).Err(); err != nil {
		return false, fmt.Errorf("failed to store session: %w", err)
	}
	return true, nil
}

// LoadSession retrieves a session by id
func (r *RedisSessionStorage) LoadSession(ctx context.Context, id string) (*domain.Session, error) {
	payload, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// DeleteSession deletes a session by id
func (r *RedisSessionStorage) DeleteSession(ctx context.Context, id string) (bool, error) {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return true, nil
}
