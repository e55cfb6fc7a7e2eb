package retry

import (
	"math"
	"math/rand"
	"time"
)

// Category is the closed set of error categories the engine understands.
type Category string

const (
	CategoryTemporary Category = "TemporaryIssues"
	CategoryExternal  Category = "External"
	CategorySystem    Category = "System"
	CategoryPermanent Category = "Permanent"
)

// jitterFraction is the uniform noise applied around a computed delay.
const jitterFraction = 0.25

// Policy describes the retry schedule selected for an error category.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// PolicyFor maps an error category to its retry policy. Permanent errors
// have no policy; callers must check the category before scheduling.
func PolicyFor(category Category) Policy {
	switch category {
	case CategoryTemporary:
		return Policy{MaxAttempts: 5, BaseDelay: 30 * time.Second, MaxDelay: 5 * time.Minute, Multiplier: 1.5, Jitter: true}
	case CategoryExternal:
		return Policy{MaxAttempts: 3, BaseDelay: time.Minute, MaxDelay: 10 * time.Minute, Multiplier: 2.0, Jitter: true}
	case CategorySystem:
		return Policy{MaxAttempts: 2, BaseDelay: 5 * time.Minute, MaxDelay: 15 * time.Minute, Multiplier: 3.0, Jitter: false}
	default:
		return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Minute, Multiplier: 2.0, Jitter: true}
	}
}

// Delay computes the backoff before attempt n+1, n being the 1-based number
// of the attempt that just failed: min(base * multiplier^(n-1), max), plus
// uniform jitter when enabled, clamped to non-negative.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter {
		noise := (rand.Float64()*2 - 1) * jitterFraction * delay
		delay += noise
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
