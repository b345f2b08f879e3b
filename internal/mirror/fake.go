package mirror

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory KVStore for tests. TTLs are recorded but
// never expire entries.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration

	// SetError, if set, is returned by Set.
	SetError error

	// Sets counts successful Set calls.
	Sets int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetError != nil {
		return s.SetError
	}
	s.values[key] = value
	s.ttls[key] = ttl
	s.Sets++
	return nil
}

// TTL returns the ttl passed with the last Set for key.
func (s *MemoryStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}
