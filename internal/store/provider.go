package store

import "errors"

// Provider is the persistence hook consumed by the content cache. Values are
// opaque bytes; the cache owns all serialization.
type Provider interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Close() error
}

// ErrNotFound signals that a key is absent from the store.
var ErrNotFound = errors.New("store: key not found")

// NoopProvider implements Provider but never retains data. Used when a
// deployment opts out of cache durability.
type NoopProvider struct{}

// Get always returns ErrNotFound.
func (NoopProvider) Get(string) ([]byte, error) { return nil, ErrNotFound }

// Set discards the value.
func (NoopProvider) Set(string, []byte) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
