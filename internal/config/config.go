package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 15 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
		},
		Auth: AuthConfig{
			TimestampTolerance: Duration{Duration: 5 * time.Minute},
			NonceWindow:        Duration{Duration: 15 * time.Minute},
			ReplayWindow:       Duration{Duration: time.Hour},
			Lockout: LockoutConfig{
				Window:           Duration{Duration: 15 * time.Minute},
				FailureThreshold: 5,
				IPWindowCap:      20,
				Steps: []Duration{
					{Duration: 5 * time.Minute},
					{Duration: 15 * time.Minute},
					{Duration: 30 * time.Minute},
					{Duration: time.Hour},
					{Duration: 2 * time.Hour},
				},
			},
		},
		Locks: LocksConfig{
			AcquireTimeout: Duration{Duration: 30 * time.Second},
			SweepInterval:  Duration{Duration: 30 * time.Second},
			MaxLockWait:    Duration{Duration: 2 * time.Minute},
			HistorySize:    100,
		},
		Retry: RetryConfig{
			HistoryRetention: Duration{Duration: 24 * time.Hour},
		},
		Webhooks: WebhooksConfig{
			QueueSize:      256,
			Workers:        4,
			AttemptTimeout: Duration{Duration: 10 * time.Second},
			Breaker: BreakerConfig{
				MaxRequests:         5,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 60 * time.Second},
				ConsecutiveFailures: 10,
			},
		},
		Storage: StorageConfig{
			QueryTimeout: Duration{Duration: 5 * time.Second},
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   120,
			Window:  Duration{Duration: time.Minute},
		},
		Audit: AuditConfig{
			Size: 1000,
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
