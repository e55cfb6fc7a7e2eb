package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	gwerrors "github.com/gatewaycore/server/internal/errors"
	"github.com/gatewaycore/server/internal/storage"
)

// fastPolicy compresses every category into millisecond delays so retry
// behavior is testable without waiting.
func fastPolicy(Category) Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
}

func newFastEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(WithPolicyFunc(fastPolicy))
	t.Cleanup(func() { e.Close() })
	return e
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	e := newFastEngine(t)

	calls := 0
	err := e.Do(context.Background(), "op-recover", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDo_PermanentErrorBypassesRetry(t *testing.T) {
	e := newFastEngine(t)

	calls := 0
	err := e.Do(context.Background(), "op-permanent", func(context.Context) error {
		calls++
		return storage.ErrStatusConflict
	})
	if !errors.Is(err, storage.ErrStatusConflict) {
		t.Fatalf("err = %v, want ErrStatusConflict", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want exactly 1 for a permanent error", calls)
	}
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	e := newFastEngine(t)

	calls := 0
	last := errors.New("connection refused (final)")
	err := e.Do(context.Background(), "op-exhaust", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return last
	})
	if !errors.Is(err, last) {
		t.Fatalf("err = %v, want the final attempt's error", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want MaxAttempts = 3", calls)
	}
}

func TestDo_CancellationAbortsBackoff(t *testing.T) {
	e := NewEngine(WithPolicyFunc(func(Category) Policy {
		return Policy{MaxAttempts: 5, BaseDelay: time.Minute, MaxDelay: time.Minute, Multiplier: 1.0}
	}))
	t.Cleanup(func() { e.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := e.Do(ctx, "op-cancel", func(context.Context) error {
		return errors.New("network unreachable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancellation took %v, want prompt abort mid-delay", elapsed)
	}
}

func TestDo_RecordsAttemptHistory(t *testing.T) {
	e := newFastEngine(t)

	calls := 0
	if err := e.Do(context.Background(), "op-history", func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("request timeout")
		}
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recs := e.History().Attempts("op-history")
	if len(recs) != 2 {
		t.Fatalf("recorded %d attempts, want 2", len(recs))
	}
	if recs[0].Success || recs[0].Category != CategoryTemporary {
		t.Fatalf("first record = %+v, want failed Temporary attempt", recs[0])
	}
	if !recs[1].Success {
		t.Fatalf("second record = %+v, want success", recs[1])
	}
}

func TestHistory_PurgeDropsOldRecords(t *testing.T) {
	h := NewHistory(time.Hour)
	t.Cleanup(h.Stop)

	now := time.Now().UTC()
	h.Record(AttemptRecord{OperationID: "op", Attempt: 1, Timestamp: now.Add(-2 * time.Hour)})
	h.Record(AttemptRecord{OperationID: "op", Attempt: 2, Timestamp: now})

	if purged := h.Purge(now.Add(-time.Hour)); purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if recs := h.Attempts("op"); len(recs) != 1 || recs[0].Attempt != 2 {
		t.Fatalf("remaining records = %+v, want only attempt 2", recs)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryPermanent},
		{"cancelled", context.Canceled, CategoryPermanent},
		{"deadline", context.DeadlineExceeded, CategoryPermanent},
		{"status conflict", storage.ErrStatusConflict, CategoryPermanent},
		{"not found", storage.ErrNotFound, CategoryPermanent},
		{"already exists", storage.ErrAlreadyExists, CategoryPermanent},
		{"external kind", gwerrors.New(gwerrors.KindExternalUnavailable, "upstream down"), CategoryExternal},
		{"persistence kind", gwerrors.New(gwerrors.KindPersistenceFailed, "write failed"), CategoryTemporary},
		{"lock timeout kind", gwerrors.New(gwerrors.KindLockTimeout, "lock busy"), CategoryTemporary},
		{"transient text", errors.New("dial tcp: connection refused"), CategoryTemporary},
		{"rate limited text", errors.New("429 too many requests"), CategoryTemporary},
		{"unknown", errors.New("segment checksum mismatch"), CategorySystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
