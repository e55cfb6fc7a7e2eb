package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway core.
type Metrics struct {
	// Authentication metrics
	AuthAttemptsTotal *prometheus.CounterVec
	AuthDuration      *prometheus.HistogramVec
	AuthLockoutsTotal *prometheus.CounterVec
	ReplayHitsTotal   prometheus.Counter

	// Transition metrics
	TransitionsTotal   *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	PaymentsCreated    prometheus.Counter
	PaymentAmountTotal *prometheus.CounterVec

	// Lock metrics
	LockWaitDuration  prometheus.Histogram
	LockTimeoutsTotal prometheus.Counter
	LocksActive       prometheus.Gauge
	DeadlocksTotal    prometheus.Counter
	LongWaitsTotal    prometheus.Counter

	// Retry metrics
	RetryAttemptsTotal  *prometheus.CounterVec
	RetryExhaustedTotal *prometheus.CounterVec

	// Webhook metrics
	WebhooksTotal       *prometheus.CounterVec
	WebhookRetriesTotal *prometheus.CounterVec
	WebhookDuration     *prometheus.HistogramVec
	WebhookQueueDepth   prometheus.Gauge

	// Store metrics
	StoreQueryDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		AuthAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_auth_attempts_total",
				Help: "Total number of authentication attempts",
			},
			[]string{"outcome"},
		),
		AuthDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_auth_duration_seconds",
				Help:    "Time taken to authenticate a request",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"outcome"},
		),
		AuthLockoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_auth_lockouts_total",
				Help: "Total number of progressive lockouts applied",
			},
			[]string{"level"},
		),
		ReplayHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_auth_replay_hits_total",
				Help: "Total number of requests rejected as replays",
			},
		),

		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_transitions_total",
				Help: "Total number of payment status transition attempts",
			},
			[]string{"from", "to", "outcome"},
		),
		TransitionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_transition_duration_seconds",
				Help:    "Time taken to complete a transition attempt",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"outcome"},
		),
		PaymentsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_payments_created_total",
				Help: "Total number of payments initialized",
			},
		),
		PaymentAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_payment_amount_total",
				Help: "Total initialized payment amount in minor units",
			},
			[]string{"currency"},
		),

		LockWaitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_lock_wait_duration_seconds",
				Help:    "Time spent waiting to acquire a per-payment lock",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 5, 10, 30},
			},
		),
		LockTimeoutsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_lock_timeouts_total",
				Help: "Total number of lock acquisitions that timed out",
			},
		),
		LocksActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_locks_active",
				Help: "Number of per-payment locks currently held",
			},
		),
		DeadlocksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_deadlocks_detected_total",
				Help: "Total number of deadlock cycles detected by the observer",
			},
		),
		LongWaitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_lock_long_waits_total",
				Help: "Total number of lock waits flagged by the long-wait sweep",
			},
		),

		RetryAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_retry_attempts_total",
				Help: "Total number of retry attempts by error category",
			},
			[]string{"category", "outcome"},
		),
		RetryExhaustedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_retry_exhausted_total",
				Help: "Total number of operations that exhausted their retry policy",
			},
			[]string{"category"},
		),

		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_webhooks_total",
				Help: "Total number of webhook deliveries",
			},
			[]string{"event_type", "status"},
		),
		WebhookRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_webhook_retries_total",
				Help: "Total number of webhook retry attempts",
			},
			[]string{"event_type"},
		),
		WebhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_webhook_duration_seconds",
				Help:    "Time taken for webhook delivery",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"event_type"},
		),
		WebhookQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_webhook_queue_depth",
				Help: "Number of notification jobs waiting for delivery",
			},
		),

		StoreQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_store_query_duration_seconds",
				Help:    "Store operation duration",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),
	}
}

// ObserveAuth records an authentication attempt and its processing time.
func (m *Metrics) ObserveAuth(outcome string, duration time.Duration) {
	m.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
	m.AuthDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveLockout records a progressive lockout at the given escalation level.
func (m *Metrics) ObserveLockout(level string) {
	m.AuthLockoutsTotal.WithLabelValues(level).Inc()
}

// ObserveTransition records a transition attempt and its outcome.
func (m *Metrics) ObserveTransition(from, to, outcome string, duration time.Duration) {
	m.TransitionsTotal.WithLabelValues(from, to, outcome).Inc()
	m.TransitionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObservePaymentCreated records an initialized payment.
func (m *Metrics) ObservePaymentCreated(currency string, amountMinor int64) {
	m.PaymentsCreated.Inc()
	m.PaymentAmountTotal.WithLabelValues(currency).Add(float64(amountMinor))
}

// ObserveLockWait records a completed lock acquisition.
func (m *Metrics) ObserveLockWait(wait time.Duration, timedOut bool) {
	m.LockWaitDuration.Observe(wait.Seconds())
	if timedOut {
		m.LockTimeoutsTotal.Inc()
	}
}

// ObserveRetryAttempt records one retry-engine attempt.
func (m *Metrics) ObserveRetryAttempt(category string, success bool) {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	m.RetryAttemptsTotal.WithLabelValues(category, outcome).Inc()
}

// ObserveWebhook records a webhook delivery outcome.
func (m *Metrics) ObserveWebhook(eventType, status string, duration time.Duration, attempts int) {
	m.WebhooksTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDuration.WithLabelValues(eventType).Observe(duration.Seconds())
	if attempts > 1 {
		m.WebhookRetriesTotal.WithLabelValues(eventType).Add(float64(attempts - 1))
	}
}

// ObserveStoreQuery records a store operation.
func (m *Metrics) ObserveStoreQuery(operation, backend string, duration time.Duration) {
	m.StoreQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}
