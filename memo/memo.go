// Package memo implements the async memoization cache from spec §4.A: at
// most one in-flight loader per key, with the result shared to every
// waiter. It wraps golang.org/x/sync/singleflight, which already gives the
// "one call in flight, broadcast to all callers" contract, and adds
// generics plus permanent (not just in-flight) memoization of the result.
package memo

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache maps keys of type K to values of type V, running the loader at
// most once per key for the cache's lifetime.
type Cache[K comparable, V any] struct {
	group singleflight.Group

	mu    sync.RWMutex
	done  map[K]V
	errs  map[K]error
	known map[K]bool
}

// New creates an empty Cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		done:  make(map[K]V),
		errs:  make(map[K]error),
		known: make(map[K]bool),
	}
}

// keyString converts K to the string key singleflight.Group requires. K is
// comparable but singleflight wants a string; callers supply key types that
// already have a stable, unique string form (DepReq.String(),
// PinnedDependency.String(), a bare name, ...), so we ask for that via the
// Keyed interface when available, and fall back to fmt.Sprint otherwise.
type Keyed interface {
	String() string
}

func keyString[K comparable](k K) string {
	if kd, ok := any(k).(Keyed); ok {
		return kd.String()
	}
	return fmt.Sprint(k)
}

// Get returns the memoized value for key, invoking loader at most once for
// the lifetime of the cache. Concurrent callers for the same key observe
// the identical value (or error).
func (c *Cache[K, V]) Get(key K, loader func() (V, error)) (V, error) {
	ks := keyString(key)

	c.mu.RLock()
	if c.known[key] {
		v, err := c.done[key], c.errs[key]
		c.mu.RUnlock()
		return v, err
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(ks, func() (interface{}, error) {
		// Re-check under the singleflight call: another goroutine may have
		// completed the load for this key between our RUnlock above and
		// entering Do (a new call would only collide via ks anyway, but
		// this also protects Forget-then-immediate-reload races).
		c.mu.RLock()
		if c.known[key] {
			v, err := c.done[key], c.errs[key]
			c.mu.RUnlock()
			return v, err
		}
		c.mu.RUnlock()

		val, loadErr := loader()

		c.mu.Lock()
		c.done[key] = val
		c.errs[key] = loadErr
		c.known[key] = true
		c.mu.Unlock()

		return val, loadErr
	})
	if v == nil {
		var zero V
		return zero, err
	}
	return v.(V), err
}

// Forget removes a memoized entry so a subsequent Get re-runs the loader.
// Used between independent commands within one process (e.g. `update`
// shouldn't reuse a resolution that a prior `--immutable install` failed
// to extend).
func (c *Cache[K, V]) Forget(key K) {
	c.mu.Lock()
	delete(c.done, key)
	delete(c.errs, key)
	delete(c.known, key)
	c.mu.Unlock()
	c.group.Forget(keyString(key))
}

// Len reports the number of memoized (completed) entries. Mostly useful
// for tests asserting the loader ran exactly once.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.known)
}
