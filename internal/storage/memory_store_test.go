package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	payment := Payment{
		PaymentID:   "pay-1",
		TeamSlug:    "shop",
		Amount:      1500,
		Currency:    "USD",
		Status:      StatusInit,
		Fingerprint: "a1b2c3d4e5f60718",
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.CreatePayment(context.Background(), payment); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return s
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := seedStore(t)

	got, err := s.GetPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.TeamSlug != "shop" || got.Amount != 1500 || got.Status != StatusInit {
		t.Fatalf("payment = %+v, want seeded values", got)
	}
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	s := seedStore(t)

	err := s.CreatePayment(context.Background(), Payment{PaymentID: "pay-1", TeamSlug: "shop"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.GetPayment(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_FingerprintLookup(t *testing.T) {
	s := seedStore(t)

	got, err := s.GetPaymentByFingerprint(context.Background(), "shop", "a1b2c3d4e5f60718")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.PaymentID != "pay-1" {
		t.Fatalf("payment id = %q, want pay-1", got.PaymentID)
	}

	// The index is scoped to the team.
	if _, err := s.GetPaymentByFingerprint(context.Background(), "other", "a1b2c3d4e5f60718"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for a different team", err)
	}
	if _, err := s.GetPaymentByFingerprint(context.Background(), "shop", "ffffffffffffffff"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for an unknown fingerprint", err)
	}
}

func TestMemoryStore_UpdateStatusCAS(t *testing.T) {
	s := seedStore(t)
	now := time.Now().UTC()

	if err := s.UpdatePaymentStatus(context.Background(), "pay-1", StatusInit, StatusNew, now); err != nil {
		t.Fatalf("conditional write failed: %v", err)
	}
	got, _ := s.GetPayment(context.Background(), "pay-1")
	if got.Status != StatusNew {
		t.Fatalf("status = %s, want NEW", got.Status)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("updatedAt = %v, want %v", got.UpdatedAt, now)
	}

	// Stale expectation: the stored status moved on.
	err := s.UpdatePaymentStatus(context.Background(), "pay-1", StatusInit, StatusCancelled, now)
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("err = %v, want ErrStatusConflict", err)
	}
	got, _ = s.GetPayment(context.Background(), "pay-1")
	if got.Status != StatusNew {
		t.Fatalf("conflicting write must not change the status, got %s", got.Status)
	}
}

func TestMemoryStore_UpdateStatusMissing(t *testing.T) {
	s := NewMemoryStore()

	err := s.UpdatePaymentStatus(context.Background(), "ghost", StatusInit, StatusNew, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Teams(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.UpsertTeam(ctx, Team{Slug: "shop", SecretKey: "k", Active: true}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	team, err := s.GetTeam(ctx, "shop")
	if err != nil {
		t.Fatalf("get team failed: %v", err)
	}
	if !team.Active {
		t.Fatal("team must be active")
	}

	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if err := s.TouchTeamLogin(ctx, "shop", at); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	team, _ = s.GetTeam(ctx, "shop")
	if !team.LastLoginAt.Equal(at) {
		t.Fatalf("lastLoginAt = %v, want %v", team.LastLoginAt, at)
	}

	if err := s.TouchTeamLogin(ctx, "ghost", at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for an unknown team", err)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := seedStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.GetPayment(ctx, "pay-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if err := s.UpdatePaymentStatus(ctx, "pay-1", StatusInit, StatusNew, time.Now()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestParseStatus(t *testing.T) {
	for _, status := range AllStatuses {
		got, err := ParseStatus(string(status))
		if err != nil || got != status {
			t.Errorf("ParseStatus(%s) = %v, %v", status, got, err)
		}
	}
	if _, err := ParseStatus("PENDING"); err == nil {
		t.Error("unknown wire name must be rejected")
	}
	if _, err := ParseStatus("confirmed"); err == nil {
		t.Error("status names are case-sensitive")
	}
}
