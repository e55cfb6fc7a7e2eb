package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity is missing from the store.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyExists is returned when creating an entity whose key is taken.
var ErrAlreadyExists = errors.New("storage: already exists")

// ErrStatusConflict is returned by UpdatePaymentStatus when the stored
// status no longer matches the expected one. The conditional write is the
// store's linearization point; callers must not retry a conflict.
var ErrStatusConflict = errors.New("storage: status conflict")

// Store captures the persistence requirements of the transactional core.
//
// All operations accept a cancellation signal through ctx. Implementations
// are conditionally atomic: UpdatePaymentStatus performs a compare-and-set
// on the stored status in a single round trip.
type Store interface {
	// CreatePayment inserts a new payment. Returns ErrAlreadyExists if the
	// payment id is taken.
	CreatePayment(ctx context.Context, payment Payment) error

	// GetPayment retrieves a payment by id. Returns ErrNotFound if absent.
	GetPayment(ctx context.Context, paymentID string) (Payment, error)

	// GetPaymentByFingerprint retrieves a payment by its init idempotency
	// fingerprint within a team. Returns ErrNotFound if absent.
	GetPaymentByFingerprint(ctx context.Context, teamSlug, fingerprint string) (Payment, error)

	// UpdatePaymentStatus conditionally moves a payment from expected to
	// next. Returns ErrStatusConflict if the stored status differs from
	// expected, ErrNotFound if the payment is absent.
	UpdatePaymentStatus(ctx context.Context, paymentID string, expected, next Status, updatedAt time.Time) error

	// GetTeam retrieves a team by slug. Returns ErrNotFound if absent.
	GetTeam(ctx context.Context, slug string) (Team, error)

	// UpsertTeam creates or replaces a team record (administrative).
	UpsertTeam(ctx context.Context, team Team) error

	// TouchTeamLogin records the last successful authentication instant.
	TouchTeamLogin(ctx context.Context, slug string, at time.Time) error

	Close() error
}

// StoreConfig holds storage backend configuration.
type StoreConfig struct {
	Backend      string // "memory", "postgres", or "mongodb"
	PostgresURL  string
	MongoURL     string
	MongoDB      string
	QueryTimeout time.Duration
}

// NewStore creates a Store instance based on the provided configuration.
// With no explicit backend, the presence of a connection URL decides:
// postgres, then mongodb, then memory.
func NewStore(cfg StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		// Memory backend loses replay protection and payments on restart.
		// Development and tests only.
		return NewMemoryStore(), nil
	case "postgres":
		return NewPostgresStore(cfg.PostgresURL)
	case "mongodb":
		return NewMongoStore(cfg.MongoURL, cfg.MongoDB)
	case "":
		if cfg.PostgresURL != "" {
			return NewPostgresStore(cfg.PostgresURL)
		}
		if cfg.MongoURL != "" {
			return NewMongoStore(cfg.MongoURL, cfg.MongoDB)
		}
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
