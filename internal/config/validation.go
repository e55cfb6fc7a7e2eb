package config

import (
	"fmt"
	"time"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}

	if c.Auth.TimestampTolerance.Duration <= 0 {
		c.Auth.TimestampTolerance = Duration{Duration: 5 * time.Minute}
	}
	if c.Auth.NonceWindow.Duration <= 0 {
		c.Auth.NonceWindow = Duration{Duration: 15 * time.Minute}
	}
	if c.Auth.ReplayWindow.Duration <= 0 {
		c.Auth.ReplayWindow = Duration{Duration: time.Hour}
	}
	if c.Auth.Lockout.Window.Duration <= 0 {
		c.Auth.Lockout.Window = Duration{Duration: 15 * time.Minute}
	}
	if c.Auth.Lockout.FailureThreshold <= 0 {
		c.Auth.Lockout.FailureThreshold = 5
	}
	if c.Auth.Lockout.IPWindowCap <= 0 {
		c.Auth.Lockout.IPWindowCap = 20
	}
	if len(c.Auth.Lockout.Steps) == 0 {
		c.Auth.Lockout.Steps = []Duration{
			{Duration: 5 * time.Minute},
			{Duration: 15 * time.Minute},
			{Duration: 30 * time.Minute},
			{Duration: time.Hour},
			{Duration: 2 * time.Hour},
		}
	}
	for i, step := range c.Auth.Lockout.Steps {
		if step.Duration <= 0 {
			return fmt.Errorf("auth.lockout.steps[%d] must be positive", i)
		}
	}

	if c.Locks.AcquireTimeout.Duration <= 0 {
		c.Locks.AcquireTimeout = Duration{Duration: 30 * time.Second}
	}
	if c.Locks.SweepInterval.Duration <= 0 {
		c.Locks.SweepInterval = Duration{Duration: 30 * time.Second}
	}
	if c.Locks.MaxLockWait.Duration <= 0 {
		c.Locks.MaxLockWait = Duration{Duration: 2 * time.Minute}
	}
	if c.Locks.HistorySize <= 0 {
		c.Locks.HistorySize = 100
	}

	if c.Retry.HistoryRetention.Duration <= 0 {
		c.Retry.HistoryRetention = Duration{Duration: 24 * time.Hour}
	}

	if c.Webhooks.QueueSize <= 0 {
		c.Webhooks.QueueSize = 256
	}
	if c.Webhooks.Workers <= 0 {
		c.Webhooks.Workers = 4
	}
	if c.Webhooks.AttemptTimeout.Duration <= 0 {
		c.Webhooks.AttemptTimeout = Duration{Duration: 10 * time.Second}
	}

	switch c.Storage.Backend {
	case "", "memory", "postgres", "mongodb":
	default:
		return fmt.Errorf("storage.backend must be memory, postgres, or mongodb, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Storage.PostgresURL == "" {
		return fmt.Errorf("storage.postgres_url is required for the postgres backend")
	}
	if c.Storage.Backend == "mongodb" && c.Storage.MongoDBURL == "" {
		return fmt.Errorf("storage.mongodb_url is required for the mongodb backend")
	}
	if c.Storage.QueryTimeout.Duration <= 0 {
		c.Storage.QueryTimeout = Duration{Duration: 5 * time.Second}
	}

	if c.RateLimit.Limit <= 0 {
		c.RateLimit.Limit = 120
	}
	if c.RateLimit.Window.Duration <= 0 {
		c.RateLimit.Window = Duration{Duration: time.Minute}
	}

	if c.Audit.Size <= 0 {
		c.Audit.Size = 1000
	}

	return nil
}
