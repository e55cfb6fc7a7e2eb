package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/gatewaycore/server/internal/audit"
	"github.com/gatewaycore/server/internal/auth"
	"github.com/gatewaycore/server/internal/config"
	"github.com/gatewaycore/server/internal/httpserver"
	"github.com/gatewaycore/server/internal/lifecycle"
	"github.com/gatewaycore/server/internal/locks"
	"github.com/gatewaycore/server/internal/logger"
	"github.com/gatewaycore/server/internal/metrics"
	"github.com/gatewaycore/server/internal/payment"
	"github.com/gatewaycore/server/internal/retry"
	"github.com/gatewaycore/server/internal/storage"
	"github.com/gatewaycore/server/internal/webhooks"
)

// App wires the gateway's transactional core for standalone serving or
// embedding.
type App struct {
	Config        *config.Config
	Store         storage.Store
	Authenticator *auth.Authenticator
	Payments      *payment.Manager
	Observer      *locks.Observer
	Trail         *audit.Trail
	Logger        zerolog.Logger

	server          *httpserver.Server
	resourceManager *lifecycle.Manager
	metrics         *metrics.Metrics
}

// Option configures App construction.
type Option func(*options)

type options struct {
	store      storage.Store
	notifier   webhooks.Notifier
	registerer prometheus.Registerer
}

// WithStore sets a custom storage backend. The app does not close injected
// stores.
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// WithNotifier replaces the webhook dispatcher (tests capture jobs).
func WithNotifier(notifier webhooks.Notifier) Option {
	return func(o *options) { o.notifier = notifier }
}

// WithRegisterer overrides the Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// NewApp assembles the gateway services.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("gateway: config required")
	}

	optState := options{}
	for _, opt := range opts {
		opt(&optState)
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "gateway-core",
		Environment: cfg.Logging.Environment,
	})

	app := &App{
		Config:          cfg,
		Logger:          appLogger,
		resourceManager: lifecycle.NewManager(),
	}

	registerer := optState.registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	app.metrics = metrics.New(registerer)

	if optState.store != nil {
		app.Store = optState.store
	} else {
		store, err := storage.NewStore(storage.StoreConfig{
			Backend:      cfg.Storage.Backend,
			PostgresURL:  cfg.Storage.PostgresURL,
			MongoURL:     cfg.Storage.MongoDBURL,
			MongoDB:      cfg.Storage.MongoDBDatabase,
			QueryTimeout: cfg.Storage.QueryTimeout.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		app.Store = store
		app.resourceManager.Register("storage", store)
		if cfg.Storage.Backend == "" || cfg.Storage.Backend == "memory" {
			if cfg.Storage.PostgresURL == "" && cfg.Storage.MongoDBURL == "" {
				appLogger.Warn().Msg("gateway: using the in-memory store, payments and replay state are lost on restart")
			}
		}
	}

	app.Trail = audit.NewTrail(cfg.Audit.Size, appLogger)

	app.Observer = locks.NewObserver(locks.ObserverConfig{
		SweepInterval: cfg.Locks.SweepInterval.Duration,
		MaxLockWait:   cfg.Locks.MaxLockWait.Duration,
		HistorySize:   cfg.Locks.HistorySize,
		AutoResolve:   cfg.Locks.AutoResolve,
	}, appLogger, app.metrics)
	app.Observer.Start()
	app.resourceManager.RegisterFunc("deadlock-observer", func() error {
		app.Observer.Stop()
		return nil
	})

	registry := locks.NewRegistry(
		locks.WithAcquireTimeout(cfg.Locks.AcquireTimeout.Duration),
		locks.WithEventSink(app.Observer),
		locks.WithRegistryMetrics(app.metrics),
	)

	engine := retry.NewEngine(
		retry.WithLogger(appLogger),
		retry.WithMetrics(app.metrics),
		retry.WithHistory(retry.NewHistory(cfg.Retry.HistoryRetention.Duration)),
	)
	app.resourceManager.Register("retry-engine", engine)

	notifier := optState.notifier
	if notifier == nil {
		statusPaths := make(map[storage.Status]string, len(cfg.Webhooks.StatusPaths))
		for name, path := range cfg.Webhooks.StatusPaths {
			status, err := storage.ParseStatus(name)
			if err != nil {
				return nil, fmt.Errorf("webhooks.status_paths: %w", err)
			}
			statusPaths[status] = path
		}
		dispatcher := webhooks.NewDispatcher(webhooks.Config{
			QueueSize:          cfg.Webhooks.QueueSize,
			Workers:            cfg.Webhooks.Workers,
			AttemptTimeout:     cfg.Webhooks.AttemptTimeout.Duration,
			StatusPaths:        statusPaths,
			BreakerMaxRequests: cfg.Webhooks.Breaker.MaxRequests,
			BreakerInterval:    cfg.Webhooks.Breaker.Interval.Duration,
			BreakerTimeout:     cfg.Webhooks.Breaker.Timeout.Duration,
			BreakerFailures:    cfg.Webhooks.Breaker.ConsecutiveFailures,
		},
			webhooks.WithLogger(appLogger),
			webhooks.WithMetrics(app.metrics),
		)
		notifier = dispatcher
		app.resourceManager.Register("webhook-dispatcher", dispatcher)
	}

	steps := make([]time.Duration, len(cfg.Auth.Lockout.Steps))
	for i, step := range cfg.Auth.Lockout.Steps {
		steps[i] = step.Duration
	}
	app.Authenticator = auth.New(auth.Config{
		TimestampTolerance: cfg.Auth.TimestampTolerance.Duration,
		RequireTimestamp:   cfg.Auth.RequireTimestamp,
		NonceWindow:        cfg.Auth.NonceWindow.Duration,
		ReplayWindow:       cfg.Auth.ReplayWindow.Duration,
		Lockout: auth.LockoutConfig{
			Window:           cfg.Auth.Lockout.Window.Duration,
			FailureThreshold: cfg.Auth.Lockout.FailureThreshold,
			IPMax:            cfg.Auth.Lockout.IPWindowCap,
			Steps:            steps,
		},
	}, app.Store,
		auth.WithMetrics(app.metrics),
		auth.WithAudit(app.Trail),
		auth.WithLogger(appLogger),
	)
	app.resourceManager.Register("authenticator", app.Authenticator)

	app.Payments = payment.NewManager(app.Store,
		payment.WithLocks(registry),
		payment.WithRetryEngine(engine),
		payment.WithNotifier(notifier),
		payment.WithMetrics(app.metrics),
		payment.WithAudit(app.Trail),
		payment.WithLogger(appLogger),
	)

	app.server = httpserver.New(cfg, app.Authenticator, app.Payments, app.Observer, app.Trail, appLogger)

	return app, nil
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (a *App) ListenAndServe() error {
	return a.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Close releases resources owned by the app.
func (a *App) Close() error {
	return a.resourceManager.Close()
}
