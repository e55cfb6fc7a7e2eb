package cacheutil

import (
	"sync"
)

// ReadThrough implements a thread-safe read-through cache with
// double-checked locking: the fast path checks under RLock, a miss
// re-checks under the write lock before fetching, so concurrent misses
// trigger a single fetch.
//
// Usage:
//
//	func (c *StatusCache) Get(ctx context.Context, id string) (Status, error) {
//	    return cacheutil.ReadThrough(
//	        &c.mu,
//	        func() (Status, bool) { s, ok := c.entries[id]; return s, ok },
//	        func() (Status, error) {
//	            s, err := c.fetch(ctx, id)
//	            if err != nil {
//	                return "", err
//	            }
//	            c.entries[id] = s
//	            return s, nil
//	        },
//	    )
//	}
func ReadThrough[T any](
	mu *sync.RWMutex,
	checkCache func() (T, bool),
	fetchAndCache func() (T, error),
) (T, error) {
	mu.RLock()
	if value, ok := checkCache(); ok {
		mu.RUnlock()
		return value, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// Another goroutine may have populated the cache between RUnlock and
	// Lock; re-check before fetching.
	if value, ok := checkCache(); ok {
		return value, nil
	}

	return fetchAndCache()
}
