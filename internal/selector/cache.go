// Package selector memoizes compiled record and field locators.
//
// A Cache is owned by one run. It is bounded, explicitly resettable and
// reports its hit and miss counters so a reporting layer can show them.
package selector

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of compiled selectors kept per cache.
const DefaultCapacity = 256

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Resets   uint64
	Len      int
	Capacity int
}

// Add sums two snapshots.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Hits:     s.Hits + o.Hits,
		Misses:   s.Misses + o.Misses,
		Resets:   s.Resets + o.Resets,
		Len:      s.Len + o.Len,
		Capacity: s.Capacity + o.Capacity,
	}
}

// Cache is a bounded LRU of compiled selectors keyed by their literal text.
// It is not safe for concurrent use; a run is single-threaded.
type Cache[T any] struct {
	entries  *lru.Cache[string, T]
	compile  func(string) (T, error)
	capacity int

	hits, misses, resets uint64
}

// New creates a cache holding at most capacity compiled values.
// A non-positive capacity selects DefaultCapacity.
func New[T any](capacity int, compile func(string) (T, error)) (*Cache[T], error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[string, T](capacity)
	if err != nil {
		return nil, fmt.Errorf("create selector cache: %w", err)
	}
	return &Cache[T]{entries: entries, compile: compile, capacity: capacity}, nil
}

// Get returns the compiled form of expr, compiling it on a miss.
// Compile errors are returned and not cached.
func (c *Cache[T]) Get(expr string) (T, error) {
	if v, ok := c.entries.Get(expr); ok {
		c.hits++
		return v, nil
	}
	c.misses++
	v, err := c.compile(expr)
	if err != nil {
		var zero T
		return zero, err
	}
	c.entries.Add(expr, v)
	return v, nil
}

// Reset drops every compiled entry. Counters other than Resets keep running.
func (c *Cache[T]) Reset() {
	c.entries.Purge()
	c.resets++
}

// Stats returns the current counters.
func (c *Cache[T]) Stats() Stats {
	return Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		Resets:   c.resets,
		Len:      c.entries.Len(),
		Capacity: c.capacity,
	}
}
