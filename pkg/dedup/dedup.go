// Package dedup remembers recently seen message ids so that redelivered
// webhook events are processed once.
package dedup

import (
	"context"
	"fmt"
	"time"
)

// Backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// DefaultTTL is how long an id is remembered when no TTL is configured.
const DefaultTTL = 10 * time.Minute

// Store records message ids.
type Store interface {
	// Mark records id and reports whether it had already been recorded
	// within the TTL.
	Mark(ctx context.Context, id string) (duplicate bool, err error)
	Close() error
}

// Options configures New.
type Options struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// New builds the store named by opts.Backend.
func New(ctx context.Context, opts Options) (Store, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(opts.TTL), nil
	case BackendRedis:
		return DialRedis(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported dedup backend: %s", opts.Backend)
	}
}
