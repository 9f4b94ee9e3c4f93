package kv

import (
	"context"
	"sync"
)

type MemStore struct {
	mu    sync.RWMutex
	m     map[string]string
	quota int
}

type MemOption func(*MemStore)

// WithQuota rejects values longer than n bytes, the way browser storage
// refuses writes past its quota.
func WithQuota(n int) MemOption {
	return func(s *MemStore) { s.quota = n }
}

func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{m: map[string]string{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemStore) Set(_ context.Context, key, value string) error {
	if s.quota > 0 && len(value) > s.quota {
		return ErrQuotaExceeded
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
