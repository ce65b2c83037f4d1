// Package dedup records keys that have already been processed, such as
// whale trade hashes, so background jobs notify at most once per key.
package dedup

import (
	"context"
	"time"
)

// Store remembers keys for a bounded time.
type Store interface {
	// MarkIfNew records key and reports whether it was absent.
	MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Seen reports whether key is currently recorded.
	Seen(ctx context.Context, key string) (bool, error)
}
