package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// ErrBackendUnavailable is returned when the backend storage is unavailable
var ErrBackendUnavailable = errors.New("backend unavailable")

// Store is the subset of Redis semantics the settlement service relies on:
// expiring values and capped lists.
type Store interface {
	// Value operations
	Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)

	// Key operations
	Del(ctx context.Context, keys ...string) (int64, error)

	// List operations. Indexes follow Redis: negative values count from the
	// tail and stop is inclusive.
	LPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	// Health check
	Ping(ctx context.Context) error

	// Cleanup
	Close() error
}

// ErrWrongType is returned when a list operation targets a plain value or
// the other way around.
var ErrWrongType = errors.New("wrong type")

// Span converts Redis-style inclusive list indexes into a half-open slice
// range over a list of length n. ok is false when the range is empty.
func Span(n, start, stop int64) (lo, hi int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}
