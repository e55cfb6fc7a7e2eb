package auth

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestReplayCache_FirstUseThenReplay(t *testing.T) {
	cache := NewReplayCache(10)
	defer cache.Stop()

	if cache.CheckAndSet("nonce:shop:n1", time.Minute) {
		t.Fatal("first use must not be flagged as seen")
	}
	if !cache.CheckAndSet("nonce:shop:n1", time.Minute) {
		t.Fatal("second use within the window must be flagged")
	}
}

func TestReplayCache_ExpiredKeyIsFreshAgain(t *testing.T) {
	cache := NewReplayCache(10)
	defer cache.Stop()

	cache.CheckAndSet("fp:abc", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if cache.CheckAndSet("fp:abc", time.Minute) {
		t.Fatal("expired key must be usable again")
	}
	if !cache.CheckAndSet("fp:abc", time.Minute) {
		t.Fatal("re-inserted key must be flagged within its new window")
	}
}

func TestReplayCache_LRUEvictionBound(t *testing.T) {
	cache := NewReplayCache(5)
	defer cache.Stop()

	for i := 0; i < 20; i++ {
		cache.CheckAndSet(fmt.Sprintf("key-%d", i), time.Minute)
	}
	if got := cache.Len(); got > 5 {
		t.Fatalf("cache size = %d, want at most 5", got)
	}

	// The oldest keys were evicted, so they pass the check again.
	if cache.CheckAndSet("key-0", time.Minute) {
		t.Fatal("evicted key should not be flagged as seen")
	}
}

func TestReplayCache_ConcurrentSingleWinner(t *testing.T) {
	cache := NewReplayCache(100)
	defer cache.Stop()

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.CheckAndSet("contested", time.Minute) {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fresh != 1 {
		t.Fatalf("exactly one goroutine must see a fresh key, got %d", fresh)
	}
}
