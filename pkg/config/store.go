package config

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// PersistKey is the fixed key under which preferences are stored.
const PersistKey = "crm:cache-config"

// PreferenceStore is a persistent key-value store holding the serialized
// preferences.
type PreferenceStore interface {
	// Load returns the stored blob. found is false when nothing is stored.
	Load(ctx context.Context) (data []byte, found bool, err error)

	// Save replaces the stored blob.
	Save(ctx context.Context, data []byte) error

	// Remove deletes the stored blob.
	Remove(ctx context.Context) error
}

// MemoryStore is an in-process PreferenceStore.
type MemoryStore struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements PreferenceStore.
func (m *MemoryStore) Load(_ context.Context) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, false, nil
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, true, nil
}

// Save implements PreferenceStore.
func (m *MemoryStore) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

// Remove implements PreferenceStore.
func (m *MemoryStore) Remove(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

// RedisStore keeps preferences in Redis under a single key.
type RedisStore struct {
	redis *redis.Client
	key   string
}

// NewRedisStore creates a RedisStore using PersistKey.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient, key: PersistKey}
}

// Load implements PreferenceStore.
func (s *RedisStore) Load(ctx context.Context) ([]byte, bool, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Save implements PreferenceStore. Preferences never expire.
func (s *RedisStore) Save(ctx context.Context, data []byte) error {
	return s.redis.Set(ctx, s.key, data, 0).Err()
}

// Remove implements PreferenceStore.
func (s *RedisStore) Remove(ctx context.Context) error {
	return s.redis.Del(ctx, s.key).Err()
}

var (
	_ PreferenceStore = (*MemoryStore)(nil)
	_ PreferenceStore = (*RedisStore)(nil)
)
