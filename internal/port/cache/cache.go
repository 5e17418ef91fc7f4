// Package cache defines the key-value port backing outcome deduplication.
package cache

import (
	"context"
	"time"
)

// Cache stores small values with a time to live. A missing key is reported
// through the bool result, never as an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
