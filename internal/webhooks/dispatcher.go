package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gatewaycore/server/internal/metrics"
	"github.com/gatewaycore/server/internal/retry"
	"github.com/gatewaycore/server/internal/storage"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Config tunes the dispatcher.
type Config struct {
	QueueSize      int           // bounded hand-off queue (default 256)
	Workers        int           // delivery workers (default 4)
	AttemptTimeout time.Duration // per-attempt HTTP deadline (default 10s)

	// StatusPaths optionally maps terminal statuses to a dedicated path
	// appended to the team's notification URL.
	StatusPaths map[storage.Status]string

	// Breaker configures the delivery circuit breaker.
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
	BreakerFailures    uint32
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:          256,
		Workers:            4,
		AttemptTimeout:     10 * time.Second,
		BreakerMaxRequests: 5,
		BreakerInterval:    time.Minute,
		BreakerTimeout:     time.Minute,
		BreakerFailures:    10,
	}
}

// Dispatcher composes status notifications and delivers them to merchant
// endpoints through a bounded queue of workers. Delivery runs under the
// External retry policy behind a circuit breaker; final failure is logged
// and metered, never propagated.
type Dispatcher struct {
	cfg        Config
	httpClient *http.Client
	engine     *retry.Engine
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	queue  chan Job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// DispatcherOption customizes the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithRetryEngine replaces the delivery retry engine (tests compress the
// schedule).
func WithRetryEngine(e *retry.Engine) DispatcherOption {
	return func(d *Dispatcher) { d.engine = e }
}

// WithHTTPClient replaces the delivery client.
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.httpClient = c }
}

// NewDispatcher constructs the dispatcher and starts its workers.
func NewDispatcher(cfg Config, opts ...DispatcherOption) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}

	d := &Dispatcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.AttemptTimeout},
		logger:     zerolog.Nop(),
		queue:      make(chan Job, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if d.engine == nil {
		// Every delivery failure is an External-category error.
		d.engine = retry.NewEngine(
			retry.WithLogger(d.logger),
			retry.WithClassifier(func(error) retry.Category { return retry.CategoryExternal }),
		)
	}

	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.BreakerFailures > 0 && counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("webhooks.breaker_state_changed")
		},
	})

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Submit enqueues a notification job. A full queue drops the job: delivery
// is best-effort by contract and the state manager must never block on it.
func (d *Dispatcher) Submit(job Job) {
	if job.NotifyURL == "" {
		return
	}

	select {
	case d.queue <- job:
		if d.metrics != nil {
			d.metrics.WebhookQueueDepth.Set(float64(len(d.queue)))
		}
	default:
		if d.metrics != nil {
			d.metrics.ObserveWebhook(EventType(job.Status), "dropped", 0, 0)
		}
		d.logger.Error().
			Str("payment_id", job.PaymentID).
			Str("status", string(job.Status)).
			Msg("webhooks.queue_full_job_dropped")
	}
}

// Close stops accepting jobs, cancels in-flight delivery schedules, and
// waits for the workers to wind down. A delivery sitting in its retry
// backoff aborts immediately; delivery is best-effort by contract, so the
// abandoned jobs are swallowed the same way exhausted retries are.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		close(d.queue)
	})
	d.wg.Wait()
	return d.engine.Close()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		if d.metrics != nil {
			d.metrics.WebhookQueueDepth.Set(float64(len(d.queue)))
		}
		d.deliver(job)
	}
}

// deliver runs one job to completion. The job carries no payment lock; the
// state manager released it before hand-off.
func (d *Dispatcher) deliver(job Job) {
	eventType := EventType(job.Status)
	payload, err := json.Marshal(Event{
		PaymentID: job.PaymentID,
		Status:    string(job.Status),
		TeamSlug:  job.TeamSlug,
		Timestamp: time.Now().UTC(),
		Extras:    job.Extras,
	})
	if err != nil {
		d.logger.Error().Err(err).Str("payment_id", job.PaymentID).Msg("webhooks.serialize_failed")
		return
	}

	url := job.NotifyURL
	if path, ok := d.cfg.StatusPaths[job.Status]; ok {
		url += path
	}

	start := time.Now()
	attempts := 0
	opID := fmt.Sprintf("webhook:%s:%s", job.PaymentID, job.Status)

	err = d.engine.Do(d.ctx, opID, func(ctx context.Context) error {
		attempts++
		_, sendErr := d.breaker.Execute(func() (any, error) {
			return nil, d.send(ctx, url, payload)
		})
		return sendErr
	})

	duration := time.Since(start)
	if err != nil {
		if d.metrics != nil {
			d.metrics.ObserveWebhook(eventType, "failed", duration, attempts)
		}
		d.logger.Error().
			Err(err).
			Str("payment_id", job.PaymentID).
			Str("event_type", eventType).
			Int("attempts", attempts).
			Msg("webhooks.delivery_failed")
		return
	}

	if d.metrics != nil {
		d.metrics.ObserveWebhook(eventType, "success", duration, attempts)
	}
	if attempts > 1 {
		d.logger.Info().
			Str("payment_id", job.PaymentID).
			Int("attempts", attempts).
			Msg("webhooks.delivered_after_retry")
	}
}

// send performs one HTTP POST attempt. Any non-2xx status is a failure.
func (d *Dispatcher) send(ctx context.Context, url string, payload []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("received status %d from %s", resp.StatusCode, url)
	}
	return nil
}
