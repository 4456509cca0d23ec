// Package msgcache deduplicates large or repeated server messages by content
// hash. Entry age is counted in completed runs, never in wall time.
package msgcache

import (
	"errors"
	"fmt"
)

// DefaultMaxAge is the number of completed runs an unused entry survives.
const DefaultMaxAge = 2

// ErrCacheMiss is returned when a hash reference names no stored payload.
var ErrCacheMiss = errors.New("cache miss")

type entry[T any] struct {
	payload T
	age     int
}

// Cache maps content hashes to decoded payloads. It is not safe for
// concurrent use; the session engine owns it on a single goroutine.
type Cache[T any] struct {
	maxAge  int
	entries map[string]*entry[T]
}

// New creates an empty cache that evicts entries older than maxAge runs.
// A negative maxAge is treated as zero.
func New[T any](maxAge int) *Cache[T] {
	c := &Cache[T]{entries: make(map[string]*entry[T])}
	c.SetMaxAge(maxAge)
	return c
}

// SetMaxAge changes the eviction threshold used by later calls to
// IncrementRunCount.
func (c *Cache[T]) SetMaxAge(maxAge int) {
	if maxAge < 0 {
		maxAge = 0
	}
	c.maxAge = maxAge
}

// MaxAge returns the current eviction threshold.
func (c *Cache[T]) MaxAge() int {
	return c.maxAge
}

// Store records payload under hash, overwriting any previous entry, and
// resets its age.
func (c *Cache[T]) Store(hash string, payload T) {
	c.entries[hash] = &entry[T]{payload: payload}
}

// Resolve returns the payload stored under hash and refreshes its age to zero.
func (c *Cache[T]) Resolve(hash string) (T, error) {
	e, ok := c.entries[hash]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrCacheMiss, hash)
	}
	e.age = 0
	return e.payload, nil
}

// Contains reports whether hash is stored, without touching its age.
func (c *Cache[T]) Contains(hash string) bool {
	_, ok := c.entries[hash]
	return ok
}

// Age returns the age of the entry for hash in completed runs.
func (c *Cache[T]) Age(hash string) (int, bool) {
	e, ok := c.entries[hash]
	if !ok {
		return 0, false
	}
	return e.age, true
}

// IncrementRunCount ages every entry by one run and drops those whose age
// now exceeds the maximum. It returns the number of evicted entries.
func (c *Cache[T]) IncrementRunCount() int {
	evicted := 0
	for hash, e := range c.entries {
		e.age++
		if e.age > c.maxAge {
			delete(c.entries, hash)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of stored entries.
func (c *Cache[T]) Len() int {
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache[T]) Clear() {
	clear(c.entries)
}
