package auth

import (
	"container/list"
	"sync"
	"time"
)

// ReplayCache remembers request material (nonces, fingerprints) for a
// validity window. It is a TTL cache with LRU eviction so an attacker
// cannot grow it without bound.
type ReplayCache struct {
	mu      sync.Mutex
	entries map[string]*replayEntry
	lru     *list.List
	maxSize int

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

type replayEntry struct {
	key     string
	expires time.Time
	element *list.Element
}

// NewReplayCache creates a replay cache holding at most maxSize keys and
// starts its background expiry sweep.
func NewReplayCache(maxSize int) *ReplayCache {
	if maxSize <= 0 {
		maxSize = 100000
	}
	c := &ReplayCache{
		entries:     make(map[string]*replayEntry),
		lru:         list.New(),
		maxSize:     maxSize,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// CheckAndSet records the key for the given window and reports whether it
// had already been seen. The check and the insert are one atomic step so
// two concurrent replays cannot both pass.
func (c *ReplayCache) CheckAndSet(key string, window time.Duration) (seen bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		if now.Before(entry.expires) {
			return true
		}
		// Expired entry: reuse it for the fresh window.
		entry.expires = now.Add(window)
		c.lru.MoveToFront(entry.element)
		return false
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	entry := &replayEntry{key: key, expires: now.Add(window)}
	entry.element = c.lru.PushFront(entry)
	c.entries[key] = entry
	return false
}

// evictLRU removes the least recently used entry (caller must hold lock).
func (c *ReplayCache) evictLRU() {
	element := c.lru.Back()
	if element == nil {
		return
	}
	entry := element.Value.(*replayEntry)
	c.lru.Remove(element)
	delete(c.entries, entry.key)
}

// Len reports the number of live keys.
func (c *ReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cleanup periodically removes expired entries.
func (c *ReplayCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	defer close(c.cleanupDone)

	for {
		select {
		case <-c.stopCleanup:
			return
		case <-ticker.C:
			now := time.Now()

			c.mu.Lock()
			var expired []*replayEntry
			for _, entry := range c.entries {
				if now.After(entry.expires) {
					expired = append(expired, entry)
				}
			}
			for _, entry := range expired {
				c.lru.Remove(entry.element)
				delete(c.entries, entry.key)
			}
			c.mu.Unlock()
		}
	}
}

// Stop gracefully shuts down the expiry sweep.
func (c *ReplayCache) Stop() {
	close(c.stopCleanup)
	<-c.cleanupDone
}
