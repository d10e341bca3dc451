package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyStore tracks processed reward keys. Both implementations are safe for
// concurrent batch workers; the store is injected into the bridge rather
// than held as package-level state.
type KeyStore interface {
	// Get returns the transaction id recorded for the key, if any
	Get(ctx context.Context, key ProcessedRewardKey) (string, bool, error)

	// Put records the key atomically. Returns false when another worker
	// recorded the key first; the stored value is left untouched.
	Put(ctx context.Context, key ProcessedRewardKey, txID string) (bool, error)

	// Delete releases a reservation whose submission failed so the pair
	// can be retried
	Delete(ctx context.Context, key ProcessedRewardKey) error
}

// MemoryKeyStore is an in-process key store behind a mutex
type MemoryKeyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemoryKeyStore creates an empty in-memory key store
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]string)}
}

// Get implements KeyStore
func (s *MemoryKeyStore) Get(ctx context.Context, key ProcessedRewardKey) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txID, ok := s.keys[key.String()]
	return txID, ok, nil
}

// Put implements KeyStore
func (s *MemoryKeyStore) Put(ctx context.Context, key ProcessedRewardKey, txID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	if _, exists := s.keys[k]; exists {
		return false, nil
	}
	s.keys[k] = txID
	return true, nil
}

// Delete implements KeyStore
func (s *MemoryKeyStore) Delete(ctx context.Context, key ProcessedRewardKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key.String())
	return nil
}

// RedisKeyStore shares processed keys across engine instances
type RedisKeyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisKeyStore creates a Redis-backed key store. A zero ttl keeps keys
// forever.
func NewRedisKeyStore(client *redis.Client, ttl time.Duration) *RedisKeyStore {
	return &RedisKeyStore{client: client, ttl: ttl}
}

// Get implements KeyStore
func (s *RedisKeyStore) Get(ctx context.Context, key ProcessedRewardKey) (string, bool, error) {
	txID, err := s.client.Get(ctx, key.String()).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read processed key: %w", err)
	}
	return txID, true, nil
}

// Put implements KeyStore using SETNX so concurrent workers cannot both win
func (s *RedisKeyStore) Put(ctx context.Context, key ProcessedRewardKey, txID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, key.String(), txID, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record processed key: %w", err)
	}
	return ok, nil
}

// Delete implements KeyStore
func (s *RedisKeyStore) Delete(ctx context.Context, key ProcessedRewardKey) error {
	if err := s.client.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("failed to release processed key: %w", err)
	}
	return nil
}
