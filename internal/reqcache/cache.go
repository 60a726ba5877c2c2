// Package reqcache implements the per-request object cache: a coalescing
// map where at most one generator runs per key, meant to live no longer
// than one HTTP request or one worker action batch (no eviction).
package reqcache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache is a coalescing map from K to V. It is meant to be created fresh
// per request/batch and discarded afterward; it never evicts.
type Cache[K comparable, V any] struct {
	group singleflight.Group

	mu   sync.Mutex
	done map[K]result[V]
}

type result[V any] struct {
	val V
	err error
}

// New creates an empty Cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{done: make(map[K]result[V])}
}

// Get returns the cached value for key, running gen at most once across
// all concurrent callers for that key. Generators already observed
// (success or failure) are not re-run.
func (c *Cache[K, V]) Get(ctx context.Context, key K, gen func(context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	if r, ok := c.done[key]; ok {
		c.mu.Unlock()
		return r.val, r.err
	}
	c.mu.Unlock()

	// singleflight.Group.Do keys are strings; Cache is generic over K, so
	// stringify defensively. Callers in this codebase use string keys
	// (RecordCache) so this is exact, not approximate, in practice.
	skey := anyToString(key)
	v, err, _ := c.group.Do(skey, func() (interface{}, error) {
		// A flight that finished (or a Put) between the check above and
		// this Do call has already filled the cell; don't run gen again.
		c.mu.Lock()
		if r, ok := c.done[key]; ok {
			c.mu.Unlock()
			return r.val, r.err
		}
		c.mu.Unlock()
		val, genErr := gen(ctx)
		c.mu.Lock()
		defer c.mu.Unlock()
		if r, ok := c.done[key]; ok {
			// A Put landed while gen ran; it wins.
			return r.val, r.err
		}
		c.done[key] = result[V]{val: val, err: genErr}
		return val, genErr
	})
	out, _ := v.(V)
	return out, err
}

// Put authoritatively stores value for key, replacing any pending or
// completed cell.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	c.done[key] = result[V]{val: value}
	c.mu.Unlock()
}

func anyToString(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", k)
}
