// Package atomiccowcache provides a read-mostly memoizing cache.  Lookups of
// keys which have already been generated take no locks.
package atomiccowcache

import (
	"sync"

	"go.uber.org/atomic"
)

type Cache[K comparable, V any] struct {
	gen func(K) V

	// snapshot is replaced wholesale, never mutated once published
	snapshot atomic.Pointer[map[K]V]

	lock    sync.Mutex
	entries map[K]V
}

func NewCache[K comparable, V any](gen func(K) V) *Cache[K, V] {
	c := &Cache[K, V]{
		gen:     gen,
		entries: make(map[K]V),
	}
	c.publishLocked()
	return c
}

func (c *Cache[K, V]) publishLocked() {
	snapshot := make(map[K]V, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.snapshot.Store(&snapshot)
}

// Get returns the value for k, generating it on first use.  gen is called at
// most once per key.
func (c *Cache[K, V]) Get(k K) V {
	if v, ok := (*c.snapshot.Load())[k]; ok {
		return v
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if v, ok := c.entries[k]; ok {
		return v
	}

	v := c.gen(k)
	c.entries[k] = v
	c.publishLocked()

	return v
}

func (c *Cache[K, V]) Len() int {
	return len(*c.snapshot.Load())
}
