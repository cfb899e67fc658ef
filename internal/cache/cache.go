// Package cache stores raw upstream documents for a bounded time so page
// renders within a device's freshness window do not refetch.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-valued store with per-entry expiry.
type Cache interface {
	// Get reports ok=false for missing and expired keys.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Backend is a Cache owned by the application lifecycle.
type Backend interface {
	Cache
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

// None never stores anything.
type None struct{}

func (None) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (None) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (None) Delete(context.Context, string) error { return nil }

func (None) Name() string { return "none" }

func (None) Ping(context.Context) error { return nil }

func (None) Close() error { return nil }

// Key returns the cache key of a device document.
func Key(class string) string {
	return "device:" + class
}
