package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one audit record. Entries never carry secret material.
type Entry struct {
	Kind      string    `json:"kind"` // "auth" or "transition"
	TeamSlug  string    `json:"teamSlug,omitempty"`
	PaymentID string    `json:"paymentId,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Recorder receives audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Nop discards all entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

// Trail keeps a bounded in-memory ring of audit entries and mirrors each
// one to the structured log.
type Trail struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	logger  zerolog.Logger
}

// NewTrail creates a trail holding the last size entries.
func NewTrail(size int, logger zerolog.Logger) *Trail {
	if size <= 0 {
		size = 1000
	}
	return &Trail{
		entries: make([]Entry, size),
		logger:  logger,
	}
}

// Record appends an entry to the ring and logs it.
func (t *Trail) Record(ctx context.Context, entry Entry) {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	t.mu.Lock()
	t.entries[t.next] = entry
	t.next = (t.next + 1) % len(t.entries)
	if t.next == 0 {
		t.full = true
	}
	t.mu.Unlock()

	t.logger.Info().
		Str("kind", entry.Kind).
		Str("team_slug", entry.TeamSlug).
		Str("payment_id", entry.PaymentID).
		Str("outcome", entry.Outcome).
		Str("detail", entry.Detail).
		Msg("audit.entry")
}

// Recent returns up to n entries, newest last.
func (t *Trail) Recent(n int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ordered []Entry
	if t.full {
		ordered = append(ordered, t.entries[t.next:]...)
	}
	ordered = append(ordered, t.entries[:t.next]...)

	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	out := make([]Entry, len(ordered))
	copy(out, ordered)
	return out
}
