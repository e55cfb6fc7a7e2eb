package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNumericCodes_StableGrouping(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindMissingParameters, 1001},
		{KindInvalidToken, 1002},
		{KindTeamNotFound, 1003},
		{KindTeamBlocked, 1004},
		{KindTeamInactive, 1005},
		{KindReplayDetected, 1006},
		{KindTimestampInvalid, 1007},
		{KindInvalidTransition, 2001},
		{KindStateMismatch, 2002},
		{KindLockTimeout, 3001},
		{KindPersistenceFailed, 3002},
		{KindExternalUnavailable, 3003},
		{KindInternal, 3999},
		{Kind("made_up"), 3999},
	}
	for _, tt := range tests {
		if got := tt.kind.NumericCode(); got != tt.want {
			t.Errorf("NumericCode(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindMissingParameters, 400},
		{KindTimestampInvalid, 400},
		{KindInvalidToken, 401},
		{KindTeamNotFound, 401},
		{KindTeamBlocked, 403},
		{KindTeamInactive, 403},
		{KindReplayDetected, 409},
		{KindInvalidTransition, 409},
		{KindStateMismatch, 409},
		{KindExternalUnavailable, 502},
		{KindLockTimeout, 503},
		{KindPersistenceFailed, 503},
		{KindInternal, 500},
	}
	for _, tt := range tests {
		if got := tt.kind.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := map[Kind]bool{
		KindLockTimeout:         true,
		KindPersistenceFailed:   true,
		KindExternalUnavailable: true,
	}
	all := []Kind{
		KindMissingParameters, KindInvalidToken, KindTeamNotFound,
		KindTeamBlocked, KindTeamInactive, KindReplayDetected,
		KindTimestampInvalid, KindInvalidTransition, KindStateMismatch,
		KindLockTimeout, KindPersistenceFailed, KindExternalUnavailable,
		KindInternal,
	}
	for _, kind := range all {
		if got := kind.IsRetryable(); got != retryable[kind] {
			t.Errorf("IsRetryable(%s) = %v, want %v", kind, got, retryable[kind])
		}
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %s, want internal", got)
	}

	err := New(KindLockTimeout, "lock busy")
	if got := KindOf(err); got != KindLockTimeout {
		t.Errorf("KindOf = %s, want lock_timeout", got)
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !IsKind(wrapped, KindLockTimeout) {
		t.Error("IsKind must see through wrapping")
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindPersistenceFailed, "write failed", cause)

	if !errors.Is(err, cause) {
		t.Error("Unwrap must expose the cause")
	}
	if err.Error() != "persistence_failed: write failed: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
}
