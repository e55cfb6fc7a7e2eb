package locks

import (
	"sync"
	"time"

	"github.com/gatewaycore/server/internal/metrics"
	"github.com/rs/zerolog"
)

// EventSink receives lock lifecycle events from the registry.
type EventSink interface {
	Request(holder, resource string)
	Acquired(holder, resource string)
	Released(holder, resource string)
	Cancelled(holder, resource string)
}

// NopSink ignores all events.
type NopSink struct{}

func (NopSink) Request(string, string)   {}
func (NopSink) Acquired(string, string)  {}
func (NopSink) Released(string, string)  {}
func (NopSink) Cancelled(string, string) {}

// DeadlockChain is an immutable record of a detected cycle.
type DeadlockChain struct {
	Holders    []string
	Resources  []string
	DetectedAt time.Time
}

// ObserverConfig tunes the deadlock observer.
type ObserverConfig struct {
	SweepInterval time.Duration // periodic cycle scan (default 30s)
	MaxLockWait   time.Duration // long-wait surveillance threshold (default 2m)
	HistorySize   int           // bounded deadlock history (default 100)
	AutoResolve   bool          // advisory victim selection when true
}

// DefaultObserverConfig returns the documented defaults.
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		SweepInterval: 30 * time.Second,
		MaxLockWait:   2 * time.Minute,
		HistorySize:   100,
		AutoResolve:   false,
	}
}

type holderState struct {
	held      map[string]bool
	waitingOn string
	waitSince time.Time
	firstSeen time.Time
}

type resourceState struct {
	holders map[string]bool
	waiters map[string]time.Time
}

// Observer passively builds a wait-for graph over the per-payment locks.
// It never owns a payment lock itself; cycle scans run on snapshots taken
// under the observer mutex, and resolution is advisory only.
type Observer struct {
	cfg     ObserverConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	holders   map[string]*holderState
	resources map[string]*resourceState
	history   []DeadlockChain

	stopSweep chan struct{}
	sweepDone chan struct{}
	started   bool
}

// NewObserver creates a deadlock observer. Call Start to enable the
// periodic sweep.
func NewObserver(cfg ObserverConfig, logger zerolog.Logger, m *metrics.Metrics) *Observer {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.MaxLockWait <= 0 {
		cfg.MaxLockWait = 2 * time.Minute
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	return &Observer{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		holders:   make(map[string]*holderState),
		resources: make(map[string]*resourceState),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
}

// Start launches the periodic sweep goroutine.
func (o *Observer) Start() {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	go o.sweepLoop()
}

// Stop shuts down the periodic sweep.
func (o *Observer) Stop() {
	o.mu.Lock()
	started := o.started
	o.started = false
	o.mu.Unlock()

	if started {
		close(o.stopSweep)
		<-o.sweepDone
	}
}

func (o *Observer) holder(name string, now time.Time) *holderState {
	h, ok := o.holders[name]
	if !ok {
		h = &holderState{held: make(map[string]bool), firstSeen: now}
		o.holders[name] = h
	}
	return h
}

func (o *Observer) resource(name string) *resourceState {
	r, ok := o.resources[name]
	if !ok {
		r = &resourceState{holders: make(map[string]bool), waiters: make(map[string]time.Time)}
		o.resources[name] = r
	}
	return r
}

// Request records that holder awaits resource and scans for a cycle
// containing the requesting holder.
func (o *Observer) Request(holder, resource string) {
	now := time.Now()

	o.mu.Lock()
	h := o.holder(holder, now)
	h.waitingOn = resource
	h.waitSince = now
	o.resource(resource).waiters[holder] = now
	snap := o.snapshotLocked()
	o.mu.Unlock()

	if chain, found := snap.findCycle(holder); found {
		o.recordDeadlock(chain)
	}
}

// Acquired promotes a pending request into a held resource.
func (o *Observer) Acquired(holder, resource string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	h := o.holder(holder, time.Now())
	h.held[resource] = true
	if h.waitingOn == resource {
		h.waitingOn = ""
	}
	r := o.resource(resource)
	delete(r.waiters, holder)
	r.holders[holder] = true
}

// Released destroys the {holder, resource} pair and garbage-collects empty
// entries.
func (o *Observer) Released(holder, resource string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if h, ok := o.holders[holder]; ok {
		delete(h.held, resource)
		if len(h.held) == 0 && h.waitingOn == "" {
			delete(o.holders, holder)
		}
	}
	if r, ok := o.resources[resource]; ok {
		delete(r.holders, holder)
		if len(r.holders) == 0 && len(r.waiters) == 0 {
			delete(o.resources, resource)
		}
	}
}

// Cancelled removes a pending request that gave up (timeout or context).
func (o *Observer) Cancelled(holder, resource string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if h, ok := o.holders[holder]; ok {
		if h.waitingOn == resource {
			h.waitingOn = ""
		}
		if len(h.held) == 0 && h.waitingOn == "" {
			delete(o.holders, holder)
		}
	}
	if r, ok := o.resources[resource]; ok {
		delete(r.waiters, holder)
		if len(r.holders) == 0 && len(r.waiters) == 0 {
			delete(o.resources, resource)
		}
	}
}

// History returns a copy of the bounded deadlock history, oldest first.
func (o *Observer) History() []DeadlockChain {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]DeadlockChain, len(o.history))
	for i, chain := range o.history {
		out[i] = DeadlockChain{
			Holders:    append([]string(nil), chain.Holders...),
			Resources:  append([]string(nil), chain.Resources...),
			DetectedAt: chain.DetectedAt,
		}
	}
	return out
}

// graphSnapshot is a consistent copy of the wait-for graph, scanned without
// holding the observer mutex.
type graphSnapshot struct {
	waitingOn map[string]string    // holder -> resource it awaits
	holdsOf   map[string][]string  // resource -> holders currently holding it
	heldBy    map[string][]string  // holder -> resources it holds
	firstSeen map[string]time.Time // holder -> first activity
	waitSince map[string]time.Time // holder -> wait start
}

func (o *Observer) snapshotLocked() graphSnapshot {
	snap := graphSnapshot{
		waitingOn: make(map[string]string, len(o.holders)),
		holdsOf:   make(map[string][]string, len(o.resources)),
		heldBy:    make(map[string][]string, len(o.holders)),
		firstSeen: make(map[string]time.Time, len(o.holders)),
		waitSince: make(map[string]time.Time, len(o.holders)),
	}
	for name, h := range o.holders {
		if h.waitingOn != "" {
			snap.waitingOn[name] = h.waitingOn
			snap.waitSince[name] = h.waitSince
		}
		for res := range h.held {
			snap.heldBy[name] = append(snap.heldBy[name], res)
		}
		snap.firstSeen[name] = h.firstSeen
	}
	for name, r := range o.resources {
		for holder := range r.holders {
			snap.holdsOf[name] = append(snap.holdsOf[name], holder)
		}
	}
	return snap
}

// findCycle runs DFS from origin across holder→awaited-resource and
// resource→current-holder edges. A cycle containing the origin holder is a
// deadlock.
func (s graphSnapshot) findCycle(origin string) (DeadlockChain, bool) {
	var (
		holderPath   []string
		resourcePath []string
		visited      = make(map[string]bool)
	)

	var visit func(holder string) bool
	visit = func(holder string) bool {
		if visited[holder] {
			return false
		}
		visited[holder] = true
		holderPath = append(holderPath, holder)

		awaited, waiting := s.waitingOn[holder]
		if !waiting {
			holderPath = holderPath[:len(holderPath)-1]
			return false
		}
		resourcePath = append(resourcePath, awaited)

		for _, next := range s.holdsOf[awaited] {
			if next == origin && len(holderPath) > 0 {
				return true
			}
			if visit(next) {
				return true
			}
		}

		holderPath = holderPath[:len(holderPath)-1]
		resourcePath = resourcePath[:len(resourcePath)-1]
		return false
	}

	if !visit(origin) {
		return DeadlockChain{}, false
	}

	chain := DeadlockChain{
		Holders:    append([]string(nil), holderPath...),
		Resources:  append([]string(nil), resourcePath...),
		DetectedAt: time.Now().UTC(),
	}
	return chain, true
}

// recordDeadlock appends the chain to the bounded history, evicting the
// oldest entry, and optionally resolves by simulating the victim's releases.
func (o *Observer) recordDeadlock(chain DeadlockChain) {
	o.mu.Lock()
	o.history = append(o.history, chain)
	if len(o.history) > o.cfg.HistorySize {
		o.history = o.history[len(o.history)-o.cfg.HistorySize:]
	}
	var victim string
	if o.cfg.AutoResolve {
		victim = o.oldestHolderLocked(chain.Holders)
	}
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.DeadlocksTotal.Inc()
	}
	o.logger.Warn().
		Strs("holders", chain.Holders).
		Strs("resources", chain.Resources).
		Msg("locks.deadlock_detected")

	if victim != "" {
		o.resolve(victim)
	}
}

// oldestHolderLocked picks the holder with the earliest first activity.
func (o *Observer) oldestHolderLocked(holders []string) string {
	victim := ""
	var oldest time.Time
	for _, name := range holders {
		h, ok := o.holders[name]
		if !ok {
			continue
		}
		if victim == "" || h.firstSeen.Before(oldest) {
			victim = name
			oldest = h.firstSeen
		}
	}
	return victim
}

// resolve simulates the release of every resource the victim holds. The
// observer structures are updated; the actual payment lock is untouched,
// resolution is advisory.
func (o *Observer) resolve(victim string) {
	o.mu.Lock()
	h, ok := o.holders[victim]
	var released []string
	if ok {
		for res := range h.held {
			released = append(released, res)
		}
	}
	o.mu.Unlock()

	for _, res := range released {
		o.Released(victim, res)
	}

	o.logger.Warn().
		Str("victim", victim).
		Strs("released", released).
		Msg("locks.deadlock_victim_selected")
}

// sweepLoop runs the periodic cycle scan and long-wait surveillance.
func (o *Observer) sweepLoop() {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	defer close(o.sweepDone)

	for {
		select {
		case <-o.stopSweep:
			return
		case <-ticker.C:
			o.sweep()
		}
	}
}

// sweep scans every waiting holder for cycles and flags long waits.
func (o *Observer) sweep() {
	o.mu.Lock()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	seen := make(map[string]bool)
	for holder := range snap.waitingOn {
		if seen[holder] {
			continue
		}
		if chain, found := snap.findCycle(holder); found {
			for _, h := range chain.Holders {
				seen[h] = true
			}
			o.recordDeadlock(chain)
		}
	}

	now := time.Now()
	for holder, since := range snap.waitSince {
		if wait := now.Sub(since); wait > o.cfg.MaxLockWait {
			if o.metrics != nil {
				o.metrics.LongWaitsTotal.Inc()
			}
			o.logger.Warn().
				Str("holder", holder).
				Str("resource", snap.waitingOn[holder]).
				Dur("waiting_for", wait).
				Msg("locks.long_wait")
		}
	}
}
