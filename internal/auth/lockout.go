package auth

import (
	"sync"
	"time"
)

// LockoutConfig tunes the progressive lockout tracker.
type LockoutConfig struct {
	Window           time.Duration   // sliding attempt window (default 15m)
	FailureThreshold int             // rolling failures that trigger a block (default 5)
	IPMax            int             // attempts allowed per client IP per window (default 20)
	Steps            []time.Duration // block duration by escalation level
}

// DefaultLockoutConfig returns the documented defaults. The step table is
// keyed on how many times the team has been blocked: the fifth and every
// later block lasts two hours.
func DefaultLockoutConfig() LockoutConfig {
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

// Attempt is one authentication outcome, retained inside the sliding window.
type Attempt struct {
	TeamSlug       string
	Timestamp      time.Time
	Success        bool
	Refused        bool // turned away before credential validation
	ClientIP       string
	RecentFailures int
	BlockDuration  time.Duration // nonzero when this attempt triggered a block
}

type teamLockState struct {
	attempts     []Attempt
	blockedUntil time.Time
	blockCount   int
}

// Lockout is the progressive lockout tracker: a per-team sliding window of
// attempts with an escalating block-duration table, plus a parallel per-IP
// attempt counter.
type Lockout struct {
	mu    sync.Mutex
	cfg   LockoutConfig
	teams map[string]*teamLockState
	ips   map[string][]time.Time
	now   func() time.Time
}

// LockoutOption customizes the tracker.
type LockoutOption func(*Lockout)

// WithClock injects the time source; tests compress the window.
func WithClock(now func() time.Time) LockoutOption {
	return func(l *Lockout) { l.now = now }
}

// NewLockout creates a tracker with the given configuration.
func NewLockout(cfg LockoutConfig, opts ...LockoutOption) *Lockout {
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.IPMax <= 0 {
		cfg.IPMax = 20
	}
	if len(cfg.Steps) == 0 {
		cfg.Steps = DefaultLockoutConfig().Steps
	}
	l := &Lockout{
		cfg:   cfg,
		teams: make(map[string]*teamLockState),
		ips:   make(map[string][]time.Time),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// stepDuration returns the block duration for the nth block (1-based);
// levels past the table reuse its last entry.
func (l *Lockout) stepDuration(blockCount int) time.Duration {
	if blockCount < 1 {
		blockCount = 1
	}
	if blockCount > len(l.cfg.Steps) {
		blockCount = len(l.cfg.Steps)
	}
	return l.cfg.Steps[blockCount-1]
}

// Blocked reports whether the team (or client IP) is currently refused.
// An expired block is cleared on the way through, so the team is
// automatically unblocked on its next attempt.
func (l *Lockout) Blocked(slug, clientIP string) (bool, time.Time) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if state, ok := l.teams[slug]; ok {
		if now.Before(state.blockedUntil) {
			return true, state.blockedUntil
		}
		if !state.blockedUntil.IsZero() {
			// Block expired: clear the window so the attempt proceeds clean.
			state.blockedUntil = time.Time{}
			state.attempts = nil
		}
	}

	if clientIP != "" {
		stamps := pruneStamps(l.ips[clientIP], now.Add(-l.cfg.Window))
		l.ips[clientIP] = stamps
		if len(stamps) >= l.cfg.IPMax {
			return true, now.Add(l.cfg.Window)
		}
	}

	return false, time.Time{}
}

// Record appends one authentication outcome. A failure that pushes the
// rolling failure count to the threshold blocks the team for the duration
// given by the escalation table; the applied duration is returned.
func (l *Lockout) Record(slug, clientIP string, success bool) (blocked bool, duration time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.teams[slug]
	if !ok {
		state = &teamLockState{}
		l.teams[slug] = state
	}

	cutoff := now.Add(-l.cfg.Window)
	state.attempts = pruneAttempts(state.attempts, cutoff)

	failures := 0
	for _, a := range state.attempts {
		if !a.Success && !a.Refused {
			failures++
		}
	}
	if !success {
		failures++
	}

	attempt := Attempt{
		TeamSlug:       slug,
		Timestamp:      now,
		Success:        success,
		ClientIP:       clientIP,
		RecentFailures: failures,
	}

	if !success && failures >= l.cfg.FailureThreshold && !now.Before(state.blockedUntil) {
		state.blockCount++
		duration = l.stepDuration(state.blockCount)
		state.blockedUntil = now.Add(duration)
		attempt.BlockDuration = duration
		blocked = true
	}

	state.attempts = append(state.attempts, attempt)

	if clientIP != "" {
		l.ips[clientIP] = append(pruneStamps(l.ips[clientIP], cutoff), now)
	}

	return blocked, duration
}

// Observe appends an attempt that was turned away before its credentials
// were checked: the team was blocked, or the request was malformed. Refused
// attempts appear in the trail but never count toward the failure threshold,
// so traffic arriving during a block cannot escalate it.
func (l *Lockout) Observe(slug, clientIP string) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.teams[slug]
	if !ok {
		state = &teamLockState{}
		l.teams[slug] = state
	}

	state.attempts = pruneAttempts(state.attempts, now.Add(-l.cfg.Window))
	state.attempts = append(state.attempts, Attempt{
		TeamSlug:  slug,
		Timestamp: now,
		Refused:   true,
		ClientIP:  clientIP,
	})
}

// RecentAttempts returns a copy of the team's attempt trail inside the
// current window.
func (l *Lockout) RecentAttempts(slug string) []Attempt {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.teams[slug]
	if !ok {
		return nil
	}
	state.attempts = pruneAttempts(state.attempts, now.Add(-l.cfg.Window))

	out := make([]Attempt, len(state.attempts))
	copy(out, state.attempts)
	return out
}

// BlockLevel reports how many times the team has been blocked.
func (l *Lockout) BlockLevel(slug string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if state, ok := l.teams[slug]; ok {
		return state.blockCount
	}
	return 0
}

func pruneAttempts(attempts []Attempt, cutoff time.Time) []Attempt {
	kept := attempts[:0]
	for _, a := range attempts {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	return kept
}

func pruneStamps(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
