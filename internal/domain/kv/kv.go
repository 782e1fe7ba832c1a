// Package kv defines the string key/value store the storefront persists
// client state in.
package kv

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// Store is a string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Scoped prefixes every key with scope and a colon, giving each storefront
// session its own key space in a shared store.
func Scoped(s Store, scope string) Store {
	return &scoped{store: s, prefix: scope + ":"}
}

type scoped struct {
	store  Store
	prefix string
}

func (s *scoped) Get(ctx context.Context, key string) (string, error) {
	return s.store.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.prefix+key, value)
}
