package locks

import (
	"context"
	"sync"
	"time"

	gwerrors "github.com/gatewaycore/server/internal/errors"
	"github.com/gatewaycore/server/internal/metrics"
)

// DefaultAcquireTimeout bounds every lock acquisition.
const DefaultAcquireTimeout = 30 * time.Second

// slot is the serialization primitive for one payment id: a binary
// semaphore plus a reference count used for garbage collection.
type slot struct {
	sem  chan struct{}
	refs int
}

// Registry keeps one binary mutex per active payment id. Slots are created
// lazily on first acquisition and garbage-collected once no holder or
// waiter references them. Every request, acquisition, and release is
// reported to the observer sink.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*slot

	timeout time.Duration
	sink    EventSink
	metrics *metrics.Metrics
}

// RegistryOption customizes the registry.
type RegistryOption func(*Registry)

// WithAcquireTimeout overrides the default acquisition timeout.
func WithAcquireTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.timeout = d }
}

// WithEventSink installs the lock observer.
func WithEventSink(sink EventSink) RegistryOption {
	return func(r *Registry) { r.sink = sink }
}

// WithRegistryMetrics sets the metrics collector.
func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty lock registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		slots:   make(map[string]*slot),
		timeout: DefaultAcquireTimeout,
		sink:    NopSink{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// checkout resolves (lazily creating) the slot for a payment id and takes a
// reference on it.
func (r *Registry) checkout(paymentID string) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[paymentID]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		r.slots[paymentID] = s
	}
	s.refs++
	return s
}

// checkin drops a reference and garbage-collects the slot when unused.
func (r *Registry) checkin(paymentID string, s *slot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.refs--
	if s.refs == 0 && len(s.sem) == 0 {
		delete(r.slots, paymentID)
	}
}

// Acquire takes the per-payment lock for holder, waiting at most the
// configured timeout. Failure to acquire within the timeout is a transient
// lock_timeout failure, not a transition rejection. The context cancels the
// wait promptly.
func (r *Registry) Acquire(ctx context.Context, holder, paymentID string) error {
	s := r.checkout(paymentID)
	r.sink.Request(holder, paymentID)
	start := time.Now()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case s.sem <- struct{}{}:
		wait := time.Since(start)
		r.sink.Acquired(holder, paymentID)
		if r.metrics != nil {
			r.metrics.ObserveLockWait(wait, false)
			r.metrics.LocksActive.Inc()
		}
		return nil

	case <-timer.C:
		r.sink.Cancelled(holder, paymentID)
		r.checkin(paymentID, s)
		if r.metrics != nil {
			r.metrics.ObserveLockWait(time.Since(start), true)
		}
		return gwerrors.Newf(gwerrors.KindLockTimeout,
			"could not acquire payment lock within %s", r.timeout)

	case <-ctx.Done():
		r.sink.Cancelled(holder, paymentID)
		r.checkin(paymentID, s)
		return ctx.Err()
	}
}

// Release returns the per-payment lock and garbage-collects the slot when
// no holder or waiter remains.
func (r *Registry) Release(holder, paymentID string) {
	r.mu.Lock()
	s, ok := r.slots[paymentID]
	r.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-s.sem:
	default:
		// Release without a matching acquire; nothing to undo.
		return
	}

	r.sink.Released(holder, paymentID)
	if r.metrics != nil {
		r.metrics.LocksActive.Dec()
	}
	r.checkin(paymentID, s)
}

// ActiveSlots reports the number of live serialization primitives.
func (r *Registry) ActiveSlots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
