package retry

import (
	"context"
	"time"

	"github.com/gatewaycore/server/internal/metrics"
	"github.com/rs/zerolog"
)

// Engine wraps operations with category-driven exponential backoff.
// Between attempts the caller's cancellation signal is observed promptly.
type Engine struct {
	classify  Classifier
	policyFor func(Category) Policy
	history   *History
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// Option customizes the engine.
type Option func(*Engine)

// WithClassifier replaces the default categorization service.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classify = c }
}

// WithPolicyFunc replaces the policy table. Tests use this to compress
// delays into milliseconds.
func WithPolicyFunc(fn func(Category) Policy) Option {
	return func(e *Engine) { e.policyFor = fn }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithHistory installs a shared attempt ledger.
func WithHistory(h *History) Option {
	return func(e *Engine) { e.history = h }
}

// NewEngine constructs a retry engine with the default policy table and
// classifier.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		classify:  Classify,
		policyFor: PolicyFor,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.history == nil {
		e.history = NewHistory(DefaultRetention)
	}
	return e
}

// History exposes the attempt ledger.
func (e *Engine) History() *History {
	return e.history
}

// Close stops the attempt ledger's retention sweep.
func (e *Engine) Close() error {
	e.history.Stop()
	return nil
}

// Do runs the operation, retrying per the policy selected by each failure's
// category. Permanent errors bypass retry entirely. A cancelled context
// aborts the remaining schedule and surfaces the cancellation upward.
func (e *Engine) Do(ctx context.Context, operationID string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			e.record(operationID, attempt, "", nil, 0, true)
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			e.record(operationID, attempt, "", err, 0, false)
			return ctx.Err()
		}

		category := e.classify(err)
		if category == CategoryPermanent {
			e.record(operationID, attempt, category, err, 0, false)
			return err
		}

		policy := e.policyFor(category)
		if attempt >= policy.MaxAttempts {
			e.record(operationID, attempt, category, err, 0, false)
			if e.metrics != nil {
				e.metrics.RetryExhaustedTotal.WithLabelValues(string(category)).Inc()
			}
			e.logger.Warn().
				Err(err).
				Str("operation_id", operationID).
				Str("category", string(category)).
				Int("attempts", attempt).
				Msg("retry.exhausted")
			return lastErr
		}

		delay := policy.Delay(attempt)
		e.record(operationID, attempt, category, err, delay, false)
		e.logger.Warn().
			Err(err).
			Str("operation_id", operationID).
			Str("category", string(category)).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Dur("retry_delay", delay).
			Msg("retry.attempt_failed")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (e *Engine) record(operationID string, attempt int, category Category, err error, delay time.Duration, success bool) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	e.history.Record(AttemptRecord{
		OperationID: operationID,
		Attempt:     attempt,
		Category:    category,
		Err:         errMsg,
		Delay:       delay,
		Success:     success,
		Timestamp:   time.Now().UTC(),
	})
	if e.metrics != nil {
		e.metrics.ObserveRetryAttempt(string(category), success)
	}
}
