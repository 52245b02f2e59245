package types

import "context"

// KVStore is a durable key-value store that survives process restarts.
// It has no expiry primitive; callers embed timestamps in the values.
type KVStore interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// Scan calls fn for every key with the given prefix, in key order.
	// Scan stops at the first error fn returns.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error

	// Close releases the store.
	Close() error
}
