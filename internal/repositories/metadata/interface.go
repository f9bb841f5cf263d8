// Package metadata is the key/value table behind the key store: the salt,
// the master key verifier and the registered key aliases.
package metadata

import "context"

type Repository interface {
	// Get returns (nil, nil) when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set inserts key or replaces its value.
	Set(ctx context.Context, key string, value []byte) error
}
