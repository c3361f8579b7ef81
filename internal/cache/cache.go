// Package cache stores encoded store responses in Redis or in memory.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is implemented by every cache backend
type Cache interface {
	// Get returns the stored bytes, or ErrMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key; a zero ttl uses the configured default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Incr increments the integer stored under key and returns the new value
	Incr(ctx context.Context, key string) (int64, error)

	// Delete removes keys
	Delete(ctx context.Context, keys ...string) error

	// Clear removes every key under the configured prefix
	Clear(ctx context.Context) error

	Close() error
}

// Config holds the settings shared by backends
type Config struct {
	// DefaultTTL applies when Set is called without a ttl
	DefaultTTL time.Duration
	// Prefix is prepended to all keys
	Prefix string
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "trident:",
	}
}

// ErrMiss is returned when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// IsMiss reports whether err is a cache miss
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
