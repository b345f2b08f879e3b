// Package mirror keeps the latest monitor status in a key-value store so
// other services can read it without an MQTT subscription.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/sweeney/co2-monitor/internal/status"
)

// ErrCacheMiss is returned when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// KVStore is the storage the mirror writes to. Redis in production, an
// in-memory map in tests.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisKVStore implements KVStore with go-redis.
type RedisKVStore struct {
	client *redis.Client
}

// NewRedisKVStore wraps an existing client.
func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

// DialRedis creates a client for addr and verifies it with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Mirror writes status snapshots under a single key.
type Mirror struct {
	store   KVStore
	key     string
	ttl     time.Duration
	timeout time.Duration
	log     *zap.Logger

	mu       sync.Mutex
	failures int
}

// New creates a Mirror. A ttl of zero keeps the key until overwritten.
func New(store KVStore, key string, ttl time.Duration, log *zap.Logger) *Mirror {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mirror{
		store:   store,
		key:     key,
		ttl:     ttl,
		timeout: 500 * time.Millisecond,
		log:     log.With(zap.String("component", "mirror"), zap.String("key", key)),
	}
}

// Write stores the snapshot. Errors are logged on the first failure after a
// success and returned every time.
func (m *Mirror) Write(ctx context.Context, snap status.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.store.Set(ctx, m.key, string(status.FormatStatusEvent(snap, "", "")), m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if m.failures == 0 {
			m.log.Warn("mirror write failed", zap.Error(err))
		}
		m.failures++
		return fmt.Errorf("mirror write: %w", err)
	}
	if m.failures > 0 {
		m.log.Info("mirror write recovered", zap.Int("failed_writes", m.failures))
		m.failures = 0
	}
	return nil
}

// Latest reads back the stored status JSON.
func (m *Mirror) Latest(ctx context.Context) (status.StatusJSON, error) {
	var sj status.StatusJSON
	raw, err := m.store.Get(ctx, m.key)
	if err != nil {
		return sj, err
	}
	if err := json.Unmarshal([]byte(raw), &sj); err != nil {
		return sj, fmt.Errorf("decode mirrored status: %w", err)
	}
	return sj, nil
}

// Failures returns the number of consecutive failed writes.
func (m *Mirror) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}
