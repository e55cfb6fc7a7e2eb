package payment

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/gatewaycore/server/internal/audit"
	gwerrors "github.com/gatewaycore/server/internal/errors"
	"github.com/gatewaycore/server/internal/locks"
	"github.com/gatewaycore/server/internal/metrics"
	"github.com/gatewaycore/server/internal/retry"
	"github.com/gatewaycore/server/internal/storage"
	"github.com/gatewaycore/server/internal/webhooks"
	"github.com/rs/zerolog"
)

// Result is the outcome of a transition attempt. OK distinguishes committed
// transitions from rejections; rejections carry the reason and, for a state
// mismatch, the authoritative status that was observed.
type Result struct {
	OK       bool
	Reason   gwerrors.Kind
	Observed storage.Status
}

// InitRequest describes a payment to initialize.
type InitRequest struct {
	PaymentID   string // generated when empty
	TeamSlug    string
	Amount      int64 // integer minor units
	Currency    string
	NotifyURL   string
	Fingerprint string // idempotency fingerprint; empty disables dedup
}

// Manager owns the payment lifecycle: it serializes transitions per payment
// id, keeps the status cache coherent with the store, and hands committed
// transitions off to the notifier.
type Manager struct {
	store    storage.Store
	locks    *locks.Registry
	cache    *statusCache
	engine   *retry.Engine
	notifier webhooks.Notifier
	metrics  *metrics.Metrics
	audit    audit.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

// ManagerOption customizes the manager.
type ManagerOption func(*Manager)

// WithLocks installs a shared lock registry (so the deadlock observer sees
// the manager's lock traffic).
func WithLocks(r *locks.Registry) ManagerOption {
	return func(m *Manager) { m.locks = r }
}

// WithRetryEngine replaces the store-write retry engine.
func WithRetryEngine(e *retry.Engine) ManagerOption {
	return func(m *Manager) { m.engine = e }
}

// WithNotifier installs the webhook notifier.
func WithNotifier(n webhooks.Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithMetrics sets the metrics collector.
func WithMetrics(mx *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mx }
}

// WithAudit sets the audit recorder.
func WithAudit(rec audit.Recorder) ManagerOption {
	return func(m *Manager) { m.audit = rec }
}

// WithLogger sets the manager logger.
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithNow injects the time source.
func WithNow(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a payment manager over the given store.
func NewManager(store storage.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		cache:    newStatusCache(),
		notifier: webhooks.Noop{},
		audit:    audit.Nop{},
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.locks == nil {
		m.locks = locks.NewRegistry()
	}
	if m.engine == nil {
		m.engine = retry.NewEngine(retry.WithLogger(m.logger))
	}
	return m
}

// InitPayment creates a payment in status INIT. A non-empty fingerprint
// makes the operation idempotent within the team: a repeat init returns the
// previously created payment. The second return value reports whether a new
// payment was created.
func (m *Manager) InitPayment(ctx context.Context, req InitRequest) (storage.Payment, bool, error) {
	if req.TeamSlug == "" {
		return storage.Payment{}, false, gwerrors.New(gwerrors.KindMissingParameters, "team slug is required")
	}
	if req.Amount <= 0 {
		return storage.Payment{}, false, gwerrors.New(gwerrors.KindMissingParameters, "amount must be positive")
	}
	if req.Currency == "" {
		return storage.Payment{}, false, gwerrors.New(gwerrors.KindMissingParameters, "currency is required")
	}

	if req.Fingerprint != "" {
		existing, err := m.store.GetPaymentByFingerprint(ctx, req.TeamSlug, req.Fingerprint)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return storage.Payment{}, false, gwerrors.Wrap(gwerrors.KindPersistenceFailed, "idempotency lookup failed", err)
		}
	}

	now := m.now().UTC()
	p := storage.Payment{
		PaymentID:   req.PaymentID,
		TeamSlug:    req.TeamSlug,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Status:      storage.StatusInit,
		Fingerprint: req.Fingerprint,
		NotifyURL:   req.NotifyURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.PaymentID == "" {
		p.PaymentID = newID("pay")
	}

	err := m.engine.Do(ctx, "init:"+p.PaymentID, func(ctx context.Context) error {
		return m.store.CreatePayment(ctx, p)
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Concurrent duplicate init: the fingerprint index caught what
			// the pre-check raced past.
			if req.Fingerprint != "" {
				if existing, lookupErr := m.store.GetPaymentByFingerprint(ctx, req.TeamSlug, req.Fingerprint); lookupErr == nil {
					return existing, false, nil
				}
			}
			return storage.Payment{}, false, gwerrors.New(gwerrors.KindReplayDetected, "payment id already exists")
		}
		if ctx.Err() != nil {
			return storage.Payment{}, false, ctx.Err()
		}
		return storage.Payment{}, false, gwerrors.Wrap(gwerrors.KindPersistenceFailed, "payment create failed", err)
	}

	m.cache.Put(p.PaymentID, storage.StatusInit)
	if m.metrics != nil {
		m.metrics.ObservePaymentCreated(p.Currency, p.Amount)
	}
	m.audit.Record(ctx, audit.Entry{
		Kind:      "init",
		TeamSlug:  p.TeamSlug,
		PaymentID: p.PaymentID,
		Outcome:   "created",
	})
	m.logger.Info().
		Str("payment_id", p.PaymentID).
		Str("team_slug", p.TeamSlug).
		Str("currency", p.Currency).
		Int64("amount", p.Amount).
		Msg("payment.initialized")

	return p, true, nil
}

// GetPayment reads a payment, preferring the coherent cached status over
// the stored row's.
func (m *Manager) GetPayment(ctx context.Context, paymentID string) (storage.Payment, error) {
	p, err := m.store.GetPayment(ctx, paymentID)
	if err != nil {
		return storage.Payment{}, err
	}
	if status, ok := m.cache.Peek(paymentID); ok {
		p.Status = status
	}
	return p, nil
}

// TryTransition attempts to move a payment from one status to another.
//
// Rejections (invalid transition, state mismatch) come back as a Result
// with OK false and a nil error; the store is untouched. Transient failures
// (lock timeout, exhausted store retries) come back as a non-nil error and
// the caller may retry the whole call.
func (m *Manager) TryTransition(ctx context.Context, paymentID string, from, to storage.Status, teamSlug string) (Result, error) {
	if paymentID == "" || teamSlug == "" {
		return Result{}, gwerrors.New(gwerrors.KindMissingParameters, "payment id and team slug are required")
	}

	start := m.now()
	holder := newID("txn")

	if err := m.locks.Acquire(ctx, holder, paymentID); err != nil {
		m.observe(ctx, paymentID, teamSlug, from, to, gwerrors.KindOf(err), start)
		return Result{}, err
	}
	defer m.locks.Release(holder, paymentID)

	result, err := m.transition(ctx, paymentID, from, to, teamSlug)

	outcome := gwerrors.Kind("")
	switch {
	case err != nil:
		outcome = gwerrors.KindOf(err)
	case !result.OK:
		outcome = result.Reason
	}
	m.observe(ctx, paymentID, teamSlug, from, to, outcome, start)
	return result, err
}

// transition runs steps 2-6 of the protocol under the per-payment lock.
func (m *Manager) transition(ctx context.Context, paymentID string, from, to storage.Status, teamSlug string) (Result, error) {
	if !Allowed(from, to) {
		return Result{Reason: gwerrors.KindInvalidTransition}, nil
	}

	observed, err := m.cache.Resolve(ctx, m.store, paymentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// An unknown payment can never be in the requested state.
			return Result{Reason: gwerrors.KindStateMismatch}, nil
		}
		return Result{}, gwerrors.Wrap(gwerrors.KindPersistenceFailed, "status read failed", err)
	}
	if observed != from {
		return Result{Reason: gwerrors.KindStateMismatch, Observed: observed}, nil
	}

	writeErr := m.engine.Do(ctx, "transition:"+paymentID, func(ctx context.Context) error {
		return m.store.UpdatePaymentStatus(ctx, paymentID, from, to, m.now().UTC())
	})
	if writeErr != nil {
		switch {
		case errors.Is(writeErr, storage.ErrStatusConflict), errors.Is(writeErr, storage.ErrNotFound):
			// The store is the authority; our cached view was stale.
			m.cache.Forget(paymentID)
			observed, _ := m.cache.Resolve(ctx, m.store, paymentID)
			return Result{Reason: gwerrors.KindStateMismatch, Observed: observed}, nil
		case ctx.Err() != nil:
			return Result{}, ctx.Err()
		default:
			m.cache.Forget(paymentID)
			return Result{}, gwerrors.Wrap(gwerrors.KindPersistenceFailed, "status write failed", writeErr)
		}
	}

	m.cache.Put(paymentID, to)
	m.notify(ctx, paymentID, to, teamSlug)
	return Result{OK: true}, nil
}

// notify hands the committed transition to the notifier. Failures here
// never reach the transition result.
func (m *Manager) notify(ctx context.Context, paymentID string, status storage.Status, teamSlug string) {
	url := m.notifyURL(ctx, paymentID, teamSlug)
	m.notifier.Submit(webhooks.Job{
		PaymentID: paymentID,
		Status:    status,
		TeamSlug:  teamSlug,
		NotifyURL: url,
	})
}

// notifyURL resolves the delivery endpoint: the payment-level URL wins,
// then the team-level one. Lookup failures silence the notification.
func (m *Manager) notifyURL(ctx context.Context, paymentID, teamSlug string) string {
	if p, err := m.store.GetPayment(ctx, paymentID); err == nil && p.NotifyURL != "" {
		return p.NotifyURL
	}
	team, err := m.store.GetTeam(ctx, teamSlug)
	if err != nil {
		m.logger.Debug().Err(err).Str("team_slug", teamSlug).Msg("payment.notify_url_lookup_failed")
		return ""
	}
	return team.NotifyURL
}

func (m *Manager) observe(ctx context.Context, paymentID, teamSlug string, from, to storage.Status, failure gwerrors.Kind, start time.Time) {
	outcome := "success"
	if failure != "" {
		outcome = string(failure)
	}
	if m.metrics != nil {
		m.metrics.ObserveTransition(string(from), string(to), outcome, m.now().Sub(start))
	}
	m.audit.Record(ctx, audit.Entry{
		Kind:      "transition",
		TeamSlug:  teamSlug,
		PaymentID: paymentID,
		Outcome:   outcome,
		Detail:    string(from) + "->" + string(to),
	})
	if failure != "" {
		m.logger.Warn().
			Str("payment_id", paymentID).
			Str("team_slug", teamSlug).
			Str("from", string(from)).
			Str("to", string(to)).
			Str("outcome", outcome).
			Msg("payment.transition_rejected")
	}
}

// newID returns a prefixed random identifier.
func newID(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		binary.BigEndian.PutUint64(buf, uint64(time.Now().UnixNano()))
	}
	return prefix + "_" + hex.EncodeToString(buf)
}
