package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	Locks     LocksConfig     `yaml:"locks"`
	Retry     RetryConfig     `yaml:"retry"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RoutePrefix        string   `yaml:"route_prefix"` // Optional prefix for all routes (e.g., "/gateway")
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// AuthConfig holds request authentication configuration.
type AuthConfig struct {
	TimestampTolerance Duration      `yaml:"timestamp_tolerance"` // |now - Timestamp| bound (default: 5m)
	RequireTimestamp   bool          `yaml:"require_timestamp"`   // reject requests without a Timestamp parameter
	NonceWindow        Duration      `yaml:"nonce_window"`        // nonce validity window (default: 15m)
	ReplayWindow       Duration      `yaml:"replay_window"`       // fingerprint retention window (default: 1h)
	Lockout            LockoutConfig `yaml:"lockout"`
}

// LockoutConfig holds progressive lockout configuration.
type LockoutConfig struct {
	Window           Duration   `yaml:"window"`            // sliding failure window (default: 15m)
	FailureThreshold int        `yaml:"failure_threshold"` // failures within the window that trigger a block (default: 5)
	IPWindowCap      int        `yaml:"ip_window_cap"`     // per-IP attempt cap within the window (default: 20)
	Steps            []Duration `yaml:"steps"`             // escalating block durations
}

// LocksConfig holds per-payment lock configuration.
type LocksConfig struct {
	AcquireTimeout Duration `yaml:"acquire_timeout"` // lock acquisition bound (default: 30s)
	SweepInterval  Duration `yaml:"sweep_interval"`  // observer sweep period (default: 30s)
	MaxLockWait    Duration `yaml:"max_lock_wait"`   // long-wait flag threshold (default: 2m)
	HistorySize    int      `yaml:"history_size"`    // deadlock history bound (default: 100)
	AutoResolve    bool     `yaml:"auto_resolve"`    // pick a victim for detected cycles
}

// RetryConfig holds attempt-history retention configuration. The per-category
// backoff policy table is fixed.
type RetryConfig struct {
	HistoryRetention Duration `yaml:"history_retention"` // attempt record retention (default: 24h)
}

// WebhooksConfig holds webhook dispatcher configuration.
type WebhooksConfig struct {
	QueueSize      int               `yaml:"queue_size"`      // bounded hand-off queue (default: 256)
	Workers        int               `yaml:"workers"`         // delivery workers (default: 4)
	AttemptTimeout Duration          `yaml:"attempt_timeout"` // per-attempt HTTP deadline (default: 10s)
	StatusPaths    map[string]string `yaml:"status_paths"`    // optional per-status path suffix

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the webhook delivery circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // Max requests in half-open state (default: 5)
	Interval            Duration `yaml:"interval"`             // Stats reset interval in closed state (default: 60s)
	Timeout             Duration `yaml:"timeout"`              // Open state timeout before half-open (default: 60s)
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // Consecutive failures to trip (default: 10)
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	Backend         string   `yaml:"backend"`          // "memory", "postgres", or "mongodb"
	PostgresURL     string   `yaml:"postgres_url"`     // PostgreSQL connection string
	MongoDBURL      string   `yaml:"mongodb_url"`      // MongoDB connection string
	MongoDBDatabase string   `yaml:"mongodb_database"` // MongoDB database name
	QueryTimeout    Duration `yaml:"query_timeout"`    // per-query deadline (default: 5s)
}

// RateLimitConfig holds per-IP rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool     `yaml:"enabled"` // Enable per-IP rate limiting (default: true)
	Limit   int      `yaml:"limit"`   // Requests allowed per IP per window (default: 120)
	Window  Duration `yaml:"window"`  // Time window for the limit (default: 1m)
}

// AuditConfig holds audit trail configuration.
type AuditConfig struct {
	Size int `yaml:"size"` // in-memory ring size (default: 1000)
}
