package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is the durable home of one serialized cart. Load returns nil data
// and no error when nothing has been stored yet.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// RedisStorage keeps the cart under a single key with a sliding TTL.
type RedisStorage struct {
	store kvStore
	key   string
	ttl   time.Duration
}

func NewRedisStorage(store kvStore, key string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{store: store, key: key, ttl: ttl}
}

func (s *RedisStorage) Load(ctx context.Context) ([]byte, error) {
	raw, err := s.store.Get(ctx, s.key)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func (s *RedisStorage) Save(ctx context.Context, data []byte) error {
	return s.store.Set(ctx, s.key, string(data), s.ttl)
}

// MemoryStorage is used by tests and single-process tooling.
type MemoryStorage struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func NewMemoryStorage(initial []byte) *MemoryStorage {
	return &MemoryStorage{data: initial}
}

func (m *MemoryStorage) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryStorage) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Bytes returns the last saved payload.
func (m *MemoryStorage) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Saves counts writes, used to assert that loads do not rewrite current data.
func (m *MemoryStorage) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
