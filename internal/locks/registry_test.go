package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	gwerrors "github.com/gatewaycore/server/internal/errors"
)

func TestRegistry_SerializesHolders(t *testing.T) {
	r := NewRegistry()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Acquire(context.Background(), "holder", "pay-1"); err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			r.Release("holder", "pay-1")
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("observed %d concurrent holders of one payment, want 1", maxSeen)
	}
}

func TestRegistry_AcquireTimeout(t *testing.T) {
	r := NewRegistry(WithAcquireTimeout(30 * time.Millisecond))

	if err := r.Acquire(context.Background(), "first", "pay-1"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer r.Release("first", "pay-1")

	err := r.Acquire(context.Background(), "second", "pay-1")
	if !gwerrors.IsKind(err, gwerrors.KindLockTimeout) {
		t.Fatalf("kind = %v, want lock_timeout", gwerrors.KindOf(err))
	}
}

func TestRegistry_ContextCancelsWait(t *testing.T) {
	r := NewRegistry(WithAcquireTimeout(time.Minute))

	if err := r.Acquire(context.Background(), "first", "pay-1"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer r.Release("first", "pay-1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Acquire(ctx, "second", "pay-1")
	if err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancellation took %v, want prompt abort", elapsed)
	}
}

func TestRegistry_IndependentPaymentsDoNotContend(t *testing.T) {
	r := NewRegistry(WithAcquireTimeout(50 * time.Millisecond))

	if err := r.Acquire(context.Background(), "a", "pay-1"); err != nil {
		t.Fatalf("acquire pay-1 failed: %v", err)
	}
	defer r.Release("a", "pay-1")

	if err := r.Acquire(context.Background(), "b", "pay-2"); err != nil {
		t.Fatalf("acquire pay-2 must not block on pay-1, got %v", err)
	}
	r.Release("b", "pay-2")
}

func TestRegistry_SlotsGarbageCollected(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 10; i++ {
		if err := r.Acquire(context.Background(), "holder", "pay-gc"); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		r.Release("holder", "pay-gc")
	}

	if got := r.ActiveSlots(); got != 0 {
		t.Fatalf("active slots = %d, want 0 after all releases", got)
	}
}

func TestRegistry_ReleaseWithoutAcquireIsNoop(t *testing.T) {
	r := NewRegistry()

	r.Release("ghost", "pay-none")

	if err := r.Acquire(context.Background(), "holder", "pay-none"); err != nil {
		t.Fatalf("acquire after spurious release failed: %v", err)
	}
	r.Release("holder", "pay-none")
}
