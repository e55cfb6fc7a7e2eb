package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]Payment
	teams    map[string]Team
	// fingerprint index: teamSlug -> fingerprint -> paymentID
	fingerprints map[string]map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments:     make(map[string]Payment),
		teams:        make(map[string]Team),
		fingerprints: make(map[string]map[string]string),
	}
}

// CreatePayment inserts a new payment.
func (s *MemoryStore) CreatePayment(ctx context.Context, payment Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[payment.PaymentID]; exists {
		return ErrAlreadyExists
	}
	s.payments[payment.PaymentID] = payment

	if payment.Fingerprint != "" {
		byTeam, ok := s.fingerprints[payment.TeamSlug]
		if !ok {
			byTeam = make(map[string]string)
			s.fingerprints[payment.TeamSlug] = byTeam
		}
		byTeam[payment.Fingerprint] = payment.PaymentID
	}

	return nil
}

// GetPayment retrieves a payment by id.
func (s *MemoryStore) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.payments[paymentID]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return payment, nil
}

// GetPaymentByFingerprint retrieves a payment by init fingerprint.
func (s *MemoryStore) GetPaymentByFingerprint(ctx context.Context, teamSlug, fingerprint string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	byTeam, ok := s.fingerprints[teamSlug]
	if !ok {
		return Payment{}, ErrNotFound
	}
	paymentID, ok := byTeam[fingerprint]
	if !ok {
		return Payment{}, ErrNotFound
	}
	payment, ok := s.payments[paymentID]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return payment, nil
}

// UpdatePaymentStatus performs a compare-and-set on the stored status.
func (s *MemoryStore) UpdatePaymentStatus(ctx context.Context, paymentID string, expected, next Status, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[paymentID]
	if !ok {
		return ErrNotFound
	}
	if payment.Status != expected {
		return ErrStatusConflict
	}

	payment.Status = next
	payment.UpdatedAt = updatedAt
	s.payments[paymentID] = payment
	return nil
}

// GetTeam retrieves a team by slug.
func (s *MemoryStore) GetTeam(ctx context.Context, slug string) (Team, error) {
	if err := ctx.Err(); err != nil {
		return Team{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	team, ok := s.teams[slug]
	if !ok {
		return Team{}, ErrNotFound
	}
	return team, nil
}

// UpsertTeam creates or replaces a team record.
func (s *MemoryStore) UpsertTeam(ctx context.Context, team Team) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.teams[team.Slug] = team
	return nil
}

// TouchTeamLogin records the last successful authentication instant.
func (s *MemoryStore) TouchTeamLogin(ctx context.Context, slug string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[slug]
	if !ok {
		return ErrNotFound
	}
	team.LastLoginAt = at
	s.teams[slug] = team
	return nil
}

// Close releases nothing; the memory store has no external resources.
func (s *MemoryStore) Close() error {
	return nil
}
