package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL. The conditional status
// update maps to a single UPDATE ... WHERE status = expected statement so
// the database is the linearization point.
type PostgresStore struct {
	db     *sql.DB
	ownsDB bool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		// Close() error during initialization cleanup is not actionable;
		// the original connection failure is the one to return.
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db, ownsDB: true}
	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// NewPostgresStoreWithDB creates a store over an existing connection pool.
func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{db: db, ownsDB: false}
	if err := store.createTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) createTables() error {
	schema := `
		CREATE TABLE IF NOT EXISTS payments (
			payment_id TEXT PRIMARY KEY,
			team_slug TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			fingerprint TEXT,
			notify_url TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS payments_team_fingerprint
			ON payments (team_slug, fingerprint)
			WHERE fingerprint <> '';

		CREATE TABLE IF NOT EXISTS teams (
			slug TEXT PRIMARY KEY,
			secret_key TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			locked BOOLEAN NOT NULL DEFAULT FALSE,
			daily_limit BIGINT NOT NULL DEFAULT 0,
			notify_url TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			last_login_at TIMESTAMPTZ
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// CreatePayment inserts a new payment.
func (s *PostgresStore) CreatePayment(ctx context.Context, payment Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments
			(payment_id, team_slug, amount, currency, status, fingerprint, notify_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		payment.PaymentID, payment.TeamSlug, payment.Amount, payment.Currency,
		string(payment.Status), payment.Fingerprint, payment.NotifyURL,
		payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by id.
func (s *PostgresStore) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payment_id, team_slug, amount, currency, status, fingerprint,
		       COALESCE(notify_url, ''), created_at, updated_at
		FROM payments WHERE payment_id = $1`, paymentID)
	return scanPayment(row)
}

// GetPaymentByFingerprint retrieves a payment by init fingerprint.
func (s *PostgresStore) GetPaymentByFingerprint(ctx context.Context, teamSlug, fingerprint string) (Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payment_id, team_slug, amount, currency, status, fingerprint,
		       COALESCE(notify_url, ''), created_at, updated_at
		FROM payments WHERE team_slug = $1 AND fingerprint = $2`, teamSlug, fingerprint)
	return scanPayment(row)
}

func scanPayment(row *sql.Row) (Payment, error) {
	var p Payment
	var status string
	err := row.Scan(&p.PaymentID, &p.TeamSlug, &p.Amount, &p.Currency, &status,
		&p.Fingerprint, &p.NotifyURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("scan payment: %w", err)
	}
	p.Status = Status(status)
	return p, nil
}

// UpdatePaymentStatus performs the conditional status write in one statement.
func (s *PostgresStore) UpdatePaymentStatus(ctx context.Context, paymentID string, expected, next Status, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = $2
		WHERE payment_id = $3 AND status = $4`,
		string(next), updatedAt, paymentID, string(expected))
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment status: rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Zero rows: either the payment is gone or the status moved under us.
	if _, err := s.GetPayment(ctx, paymentID); err != nil {
		return err
	}
	return ErrStatusConflict
}

// GetTeam retrieves a team by slug.
func (s *PostgresStore) GetTeam(ctx context.Context, slug string) (Team, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT slug, secret_key, active, locked, daily_limit,
		       COALESCE(notify_url, ''), created_at, COALESCE(last_login_at, 'epoch'::timestamptz)
		FROM teams WHERE slug = $1`, slug)

	var t Team
	err := row.Scan(&t.Slug, &t.SecretKey, &t.Active, &t.Locked, &t.DailyLimit,
		&t.NotifyURL, &t.CreatedAt, &t.LastLoginAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Team{}, ErrNotFound
	}
	if err != nil {
		return Team{}, fmt.Errorf("scan team: %w", err)
	}
	return t, nil
}

// UpsertTeam creates or replaces a team record.
func (s *PostgresStore) UpsertTeam(ctx context.Context, team Team) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (slug, secret_key, active, locked, daily_limit, notify_url, created_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (slug) DO UPDATE SET
			secret_key = EXCLUDED.secret_key,
			active = EXCLUDED.active,
			locked = EXCLUDED.locked,
			daily_limit = EXCLUDED.daily_limit,
			notify_url = EXCLUDED.notify_url`,
		team.Slug, team.SecretKey, team.Active, team.Locked, team.DailyLimit,
		team.NotifyURL, team.CreatedAt, team.LastLoginAt)
	if err != nil {
		return fmt.Errorf("upsert team: %w", err)
	}
	return nil
}

// TouchTeamLogin records the last successful authentication instant.
func (s *PostgresStore) TouchTeamLogin(ctx context.Context, slug string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE teams SET last_login_at = $1 WHERE slug = $2`, at, slug)
	if err != nil {
		return fmt.Errorf("touch team login: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch team login: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the connection pool if this store owns it.
func (s *PostgresStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
