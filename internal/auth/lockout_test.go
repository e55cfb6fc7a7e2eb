package auth

import (
	"testing"
	"time"
)

// testClock is a manually advanced time source.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Window:           15 * time.Minute,
		FailureThreshold: 5,
		IPMax:            20,
		Steps: []time.Duration{
			5 * time.Minute,
			15 * time.Minute,
			30 * time.Minute,
			time.Hour,
			2 * time.Hour,
		},
	}
}

func TestLockout_BlocksAtThreshold(t *testing.T) {
	clock := newTestClock()
	l := NewLockout(testLockoutConfig(), WithClock(clock.Now))

	for i := 0; i < 4; i++ {
		if blocked, _ := l.Record("shop", "10.0.0.1", false); blocked {
			t.Fatalf("failure %d must not block yet", i+1)
		}
	}

	blocked, duration := l.Record("shop", "10.0.0.1", false)
	if !blocked {
		t.Fatal("fifth failure within the window must block the team")
	}
	if duration != 5*time.Minute {
		t.Fatalf("first block duration = %v, want 5m", duration)
	}

	if isBlocked, until := l.Blocked("shop", "10.0.0.1"); !isBlocked {
		t.Fatal("team must report blocked")
	} else if want := clock.Now().Add(5 * time.Minute); !until.Equal(want) {
		t.Fatalf("blocked until %v, want %v", until, want)
	}
}

func TestLockout_EscalationFollowsStepTable(t *testing.T) {
	clock := newTestClock()
	l := NewLockout(testLockoutConfig(), WithClock(clock.Now))

	wantSteps := []time.Duration{
		5 * time.Minute, 15 * time.Minute, 30 * time.Minute, time.Hour,
		2 * time.Hour, 2 * time.Hour, // past the table reuses the last entry
	}

	for level, want := range wantSteps {
		var duration time.Duration
		var blocked bool
		for !blocked {
			blocked, duration = l.Record("shop", "", false)
		}
		if duration != want {
			t.Fatalf("block %d duration = %v, want %v", level+1, duration, want)
		}
		// Let the block lapse; the expiry check clears the window.
		clock.Advance(duration + time.Second)
		if isBlocked, _ := l.Blocked("shop", ""); isBlocked {
			t.Fatalf("block %d should have expired", level+1)
		}
	}
}

func TestLockout_WindowForgetsOldFailures(t *testing.T) {
	clock := newTestClock()
	l := NewLockout(testLockoutConfig(), WithClock(clock.Now))

	for i := 0; i < 4; i++ {
		l.Record("shop", "", false)
	}
	clock.Advance(16 * time.Minute)

	// Old failures fell out of the window; this one starts a new count.
	if blocked, _ := l.Record("shop", "", false); blocked {
		t.Fatal("failure outside the window must not complete the threshold")
	}
	if got := len(l.RecentAttempts("shop")); got != 1 {
		t.Fatalf("window should hold 1 attempt, got %d", got)
	}
}

func TestLockout_SuccessDoesNotBlock(t *testing.T) {
	clock := newTestClock()
	l := NewLockout(testLockoutConfig(), WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		if blocked, _ := l.Record("shop", "", true); blocked {
			t.Fatal("successes must never block")
		}
	}
	if isBlocked, _ := l.Blocked("shop", ""); isBlocked {
		t.Fatal("team with only successes must not be blocked")
	}
}

func TestLockout_AutoUnblockClearsWindow(t *testing.T) {
	clock := newTestClock()
	l := NewLockout(testLockoutConfig(), WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		l.Record("shop", "", false)
	}
	if isBlocked, _ := l.Blocked("shop", ""); !isBlocked {
		t.Fatal("team must be blocked")
	}

	clock.Advance(5*time.Minute + time.Second)
	if isBlocked, _ := l.Blocked("shop", ""); isBlocked {
		t.Fatal("expired block must clear on the next check")
	}

	// The cleared window means four fresh failures do not re-block.
	for i := 0; i < 4; i++ {
		if blocked, _ := l.Record("shop", "", false); blocked {
			t.Fatal("cleared window must restart the failure count")
		}
	}
}

func TestLockout_IPWindowCap(t *testing.T) {
	clock := newTestClock()
	l := NewLockout(testLockoutConfig(), WithClock(clock.Now))

	// Spread attempts across teams so no team blocks, but one IP does.
	for i := 0; i < 20; i++ {
		slug := "team-a"
		if i%2 == 0 {
			slug = "team-b"
		}
		l.Record(slug, "198.51.100.7", true)
	}

	if isBlocked, _ := l.Blocked("team-c", "198.51.100.7"); !isBlocked {
		t.Fatal("IP at the window cap must be refused")
	}
	if isBlocked, _ := l.Blocked("team-c", "198.51.100.8"); isBlocked {
		t.Fatal("a different IP must not be refused")
	}

	clock.Advance(16 * time.Minute)
	if isBlocked, _ := l.Blocked("team-c", "198.51.100.7"); isBlocked {
		t.Fatal("IP stamps outside the window must not count")
	}
}

func TestLockout_RefusedAttemptsDoNotEscalate(t *testing.T) {
	clock := newTestClock()
	l := NewLockout(testLockoutConfig(), WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		l.Record("shop", "10.0.0.1", false)
	}
	if l.BlockLevel("shop") != 1 {
		t.Fatalf("block level = %d, want 1", l.BlockLevel("shop"))
	}

	for i := 0; i < 3; i++ {
		l.Observe("shop", "10.0.0.1")
	}

	trail := l.RecentAttempts("shop")
	if len(trail) != 8 {
		t.Fatalf("trail holds %d attempts, want the 3 refused ones included", len(trail))
	}
	last := trail[len(trail)-1]
	if !last.Refused || last.Success {
		t.Fatalf("last attempt = %+v, want a refused non-success entry", last)
	}
	if l.BlockLevel("shop") != 1 {
		t.Fatalf("block level = %d, refused attempts must not escalate", l.BlockLevel("shop"))
	}

	// Refused attempts never count toward the failure threshold either.
	clock.Advance(5*time.Minute + time.Second)
	l.Blocked("shop", "")
	for i := 0; i < 4; i++ {
		l.Observe("shop", "")
	}
	if blocked, _ := l.Record("shop", "", false); blocked {
		t.Fatal("one failure among refused attempts must not complete the threshold")
	}
}

func TestLockout_BlockLevelTracksEscalation(t *testing.T) {
	clock := newTestClock()
	l := NewLockout(testLockoutConfig(), WithClock(clock.Now))

	if l.BlockLevel("shop") != 0 {
		t.Fatal("fresh team has block level 0")
	}
	for i := 0; i < 5; i++ {
		l.Record("shop", "", false)
	}
	if l.BlockLevel("shop") != 1 {
		t.Fatalf("block level = %d, want 1", l.BlockLevel("shop"))
	}
}
