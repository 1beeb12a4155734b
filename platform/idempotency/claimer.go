// Package idempotency provides atomic "insert if absent" claim stores.
// This is part of the platform layer and contains no business logic: callers
// derive keys and pick TTLs, a Claimer only answers "was this key free?".
package idempotency

import (
	"context"
	"time"
)

// Claimer atomically claims a key for ttl. claimed is true for exactly one
// caller among concurrent racers on a free (absent or expired) key.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (claimed bool, err error)
}

// ClaimerFunc adapts a function to the Claimer interface.
type ClaimerFunc func(ctx context.Context, key string, ttl time.Duration) (bool, error)

// Claim calls the underlying function.
func (f ClaimerFunc) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return f(ctx, key, ttl)
}
