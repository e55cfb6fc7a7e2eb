package payment

import (
	"context"
	"sync"

	"github.com/gatewaycore/server/internal/cacheutil"
	"github.com/gatewaycore/server/internal/storage"
)

// statusCache holds the last committed status per payment id. Entries are
// written only under the per-payment lock, so a cached value always equals
// the store's value as of the last completed transition.
type statusCache struct {
	mu      sync.RWMutex
	entries map[string]storage.Status
}

func newStatusCache() *statusCache {
	return &statusCache{entries: make(map[string]storage.Status)}
}

// Resolve returns the authoritative status: cache-first, falling back to
// the store and promoting its value on a miss.
func (c *statusCache) Resolve(ctx context.Context, store storage.Store, paymentID string) (storage.Status, error) {
	return cacheutil.ReadThrough(
		&c.mu,
		func() (storage.Status, bool) {
			status, ok := c.entries[paymentID]
			return status, ok
		},
		func() (storage.Status, error) {
			p, err := store.GetPayment(ctx, paymentID)
			if err != nil {
				return "", err
			}
			c.entries[paymentID] = p.Status
			return p.Status, nil
		},
	)
}

// Put records a committed status.
func (c *statusCache) Put(paymentID string, status storage.Status) {
	c.mu.Lock()
	c.entries[paymentID] = status
	c.mu.Unlock()
}

// Peek returns the cached status without touching the store.
func (c *statusCache) Peek(paymentID string) (storage.Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status, ok := c.entries[paymentID]
	return status, ok
}

// Forget drops a payment from the cache (used when a store write fails
// mid-protocol and the cached value can no longer be trusted).
func (c *statusCache) Forget(paymentID string) {
	c.mu.Lock()
	delete(c.entries, paymentID)
	c.mu.Unlock()
}

// Len reports the number of cached payments.
func (c *statusCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
