// Package memory implements an in-process key/value store.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/kart-storefront/internal/domain/kv"
)

var _ kv.Store = (*Store)(nil)

// Store is a kv.Store held in a map. State is lost on restart.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

// New creates an empty Store.
func New() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return "", kv.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}
