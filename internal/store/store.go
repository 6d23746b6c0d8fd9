// Package store provides the durable key-value collaborator backing the
// response cache. Backends are interchangeable; any of them may fail at any
// time and the cache layer treats that as a miss, never as a fatal error.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("store: key not found")

// Store is the durable key-value collaborator contract.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	// Keys lists every stored key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
	Health() error
}
