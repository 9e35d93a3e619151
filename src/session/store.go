package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps one Step per user. Get returns Idle{} for a user with no
// session.
type Store interface {
	Get(ctx context.Context, userID int64) (Step, error)
	Set(ctx context.Context, userID int64, s Step) error
	Clear(ctx context.Context, userID int64) error
}

type MemoryStore struct {
	mu    sync.Mutex
	steps map[int64]Step
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{steps: make(map[int64]Step)}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.steps[userID]; ok {
		return s, nil
	}
	return Idle{}, nil
}

func (m *MemoryStore) Set(_ context.Context, userID int64, s Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, idle := s.(Idle); idle || s == nil {
		delete(m.steps, userID)
		return nil
	}
	m.steps[userID] = s
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.steps, userID)
	return nil
}

const (
	DefaultTTL = 24 * time.Hour
	keyPrefix  = "gymlog:session:"
)

// RedisStore keeps sessions as JSON strings that expire after ttl of
// inactivity.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (Step, error) {
	raw, err := r.rdb.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Idle{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", userID, err)
	}
	return Unmarshal(raw)
}

func (r *RedisStore) Set(ctx context.Context, userID int64, s Step) error {
	raw, err := Marshal(s)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, key(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set session %d: %w", userID, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("clear session %d: %w", userID, err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
