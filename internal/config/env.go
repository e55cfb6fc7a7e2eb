package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use GATEWAY_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "GATEWAY_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "GATEWAY_ROUTE_PREFIX")

	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	// Logging config
	setIfEnv(&c.Logging.Level, "GATEWAY_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "GATEWAY_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "GATEWAY_ENVIRONMENT")

	// Auth config
	setDurationIfEnv(&c.Auth.TimestampTolerance, "GATEWAY_AUTH_TIMESTAMP_TOLERANCE")
	setBoolIfEnv(&c.Auth.RequireTimestamp, "GATEWAY_AUTH_REQUIRE_TIMESTAMP")
	setDurationIfEnv(&c.Auth.NonceWindow, "GATEWAY_AUTH_NONCE_WINDOW")
	setDurationIfEnv(&c.Auth.ReplayWindow, "GATEWAY_AUTH_REPLAY_WINDOW")
	setDurationIfEnv(&c.Auth.Lockout.Window, "GATEWAY_AUTH_LOCKOUT_WINDOW")
	setIntIfEnv(&c.Auth.Lockout.FailureThreshold, "GATEWAY_AUTH_LOCKOUT_THRESHOLD")
	setIntIfEnv(&c.Auth.Lockout.IPWindowCap, "GATEWAY_AUTH_LOCKOUT_IP_CAP")

	// Locks config
	setDurationIfEnv(&c.Locks.AcquireTimeout, "GATEWAY_LOCKS_ACQUIRE_TIMEOUT")
	setDurationIfEnv(&c.Locks.SweepInterval, "GATEWAY_LOCKS_SWEEP_INTERVAL")
	setDurationIfEnv(&c.Locks.MaxLockWait, "GATEWAY_LOCKS_MAX_WAIT")
	setIntIfEnv(&c.Locks.HistorySize, "GATEWAY_LOCKS_HISTORY_SIZE")
	setBoolIfEnv(&c.Locks.AutoResolve, "GATEWAY_LOCKS_AUTO_RESOLVE")

	// Retry config
	setDurationIfEnv(&c.Retry.HistoryRetention, "GATEWAY_RETRY_HISTORY_RETENTION")

	// Webhooks config
	setIntIfEnv(&c.Webhooks.QueueSize, "GATEWAY_WEBHOOKS_QUEUE_SIZE")
	setIntIfEnv(&c.Webhooks.Workers, "GATEWAY_WEBHOOKS_WORKERS")
	setDurationIfEnv(&c.Webhooks.AttemptTimeout, "GATEWAY_WEBHOOKS_ATTEMPT_TIMEOUT")

	// Storage config
	setIfEnv(&c.Storage.Backend, "GATEWAY_STORAGE_BACKEND")
	setIfEnv(&c.Storage.PostgresURL, "GATEWAY_STORAGE_POSTGRES_URL")
	setIfEnv(&c.Storage.MongoDBURL, "GATEWAY_STORAGE_MONGODB_URL")
	setIfEnv(&c.Storage.MongoDBDatabase, "GATEWAY_STORAGE_MONGODB_DATABASE")
	setDurationIfEnv(&c.Storage.QueryTimeout, "GATEWAY_STORAGE_QUERY_TIMEOUT")

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.Enabled, "GATEWAY_RATE_LIMIT_ENABLED")
	setIntIfEnv(&c.RateLimit.Limit, "GATEWAY_RATE_LIMIT")
	setDurationIfEnv(&c.RateLimit.Window, "GATEWAY_RATE_LIMIT_WINDOW")

	// Audit config
	setIntIfEnv(&c.Audit.Size, "GATEWAY_AUDIT_SIZE")
}

// setIfEnv assigns the environment value when the variable is set and non-empty.
func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setBoolIfEnv parses a boolean environment override.
func setBoolIfEnv(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setIntIfEnv parses an integer environment override.
func setIntIfEnv(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// setDurationIfEnv parses a Go-style duration environment override.
func setDurationIfEnv(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			dst.Duration = dur
		}
	}
}

// normalizeRoutePrefix ensures the prefix starts with a slash and carries no
// trailing one.
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}
