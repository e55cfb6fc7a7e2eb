package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gatewaycore/server/internal/audit"
	"github.com/gatewaycore/server/internal/auth"
	"github.com/gatewaycore/server/internal/config"
	"github.com/gatewaycore/server/internal/locks"
	"github.com/gatewaycore/server/internal/logger"
	"github.com/gatewaycore/server/internal/payment"
)

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg           *config.Config
	authenticator *auth.Authenticator
	payments      *payment.Manager
	observer      *locks.Observer
	trail         *audit.Trail
	logger        zerolog.Logger
}

// New builds the HTTP server with its configured router.
func New(cfg *config.Config, authenticator *auth.Authenticator, payments *payment.Manager, observer *locks.Observer, trail *audit.Trail, appLogger zerolog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:           cfg,
			authenticator: authenticator,
			payments:      payments,
			observer:      observer,
			trail:         trail,
			logger:        appLogger,
		},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	s.configureRouter(router)
	return s
}

func (s *Server) configureRouter(router chi.Router) {
	cfg := s.cfg

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)
	router.Use(logger.Middleware(s.logger))
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	if cfg.RateLimit.Enabled {
		router.Use(httprate.LimitByIP(cfg.RateLimit.Limit, cfg.RateLimit.Window.Duration))
	}

	prefix := cfg.Server.RoutePrefix

	// Lightweight endpoints with a short timeout.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get(prefix+"/healthz", s.health)
		r.Handle(prefix+"/metrics", promhttp.Handler())
		r.Get(prefix+"/api/v1/admin/deadlocks", s.listDeadlocks)
		r.Get(prefix+"/api/v1/admin/audit", s.listAudit)
	})

	// Transactional endpoints. The timeout covers a full lock-acquisition
	// bound plus store retries.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Post(prefix+"/api/v1/payments/init", s.initPayment)
		r.Post(prefix+"/api/v1/payments/{paymentID}/transition", s.transitionPayment)
		r.Get(prefix+"/api/v1/payments/{paymentID}", s.getPayment)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// securityHeadersMiddleware adds defensive response headers.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
