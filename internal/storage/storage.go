// Package storage holds the write-path client for the external key-value
// store. The store's contract is an atomic counter increment plus key expiry;
// everything else (prefix scans, reads) happens on the read path through the
// resolver, never here.
package storage

import (
	"context"
	"time"
)

// Store is the write-path store interface.
type Store interface {
	// IncrementWithTTL atomically increments key's counter and
	// sets/refreshes its expiry.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	Close() error
}
