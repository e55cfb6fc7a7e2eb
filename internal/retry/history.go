package retry

import (
	"sync"
	"time"
)

// AttemptRecord captures one attempt of one retried operation.
type AttemptRecord struct {
	OperationID string
	Attempt     int
	Category    Category
	Err         string
	Delay       time.Duration
	Success     bool
	Timestamp   time.Time
}

// DefaultRetention is how long attempt records are kept before the GC
// sweep purges them.
const DefaultRetention = 24 * time.Hour

// History is the attempt-accounting ledger, keyed by per-operation id.
// Records older than the retention window are purged by a background sweep.
type History struct {
	mu        sync.RWMutex
	records   map[string][]AttemptRecord
	retention time.Duration

	stopGC   chan struct{}
	gcDone   chan struct{}
	stopOnce sync.Once
}

// NewHistory creates an attempt ledger and starts its retention sweep.
func NewHistory(retention time.Duration) *History {
	if retention <= 0 {
		retention = DefaultRetention
	}
	h := &History{
		records:   make(map[string][]AttemptRecord),
		retention: retention,
		stopGC:    make(chan struct{}),
		gcDone:    make(chan struct{}),
	}
	go h.gcLoop()
	return h
}

// Record appends one attempt record.
func (h *History) Record(rec AttemptRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[rec.OperationID] = append(h.records[rec.OperationID], rec)
}

// Attempts returns a copy of the records for one operation id.
func (h *History) Attempts(operationID string) []AttemptRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	recs := h.records[operationID]
	out := make([]AttemptRecord, len(recs))
	copy(out, recs)
	return out
}

// Purge drops every record older than the cutoff and returns the count.
func (h *History) Purge(olderThan time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	purged := 0
	for opID, recs := range h.records {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.Timestamp.After(olderThan) {
				kept = append(kept, rec)
			} else {
				purged++
			}
		}
		if len(kept) == 0 {
			delete(h.records, opID)
		} else {
			h.records[opID] = kept
		}
	}
	return purged
}

// gcLoop periodically purges expired records until Stop is called.
func (h *History) gcLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	defer close(h.gcDone)

	for {
		select {
		case <-h.stopGC:
			return
		case <-ticker.C:
			h.Purge(time.Now().Add(-h.retention))
		}
	}
}

// Stop shuts down the retention sweep. Safe to call more than once.
func (h *History) Stop() {
	h.stopOnce.Do(func() { close(h.stopGC) })
	<-h.gcDone
}
