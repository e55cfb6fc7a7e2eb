package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	gwerrors "github.com/gatewaycore/server/internal/errors"
	"github.com/gatewaycore/server/internal/storage"
)

type fakeTeams struct {
	teams   map[string]storage.Team
	touched int
}

func (f *fakeTeams) GetTeam(_ context.Context, slug string) (storage.Team, error) {
	team, ok := f.teams[slug]
	if !ok {
		return storage.Team{}, storage.ErrNotFound
	}
	return team, nil
}

func (f *fakeTeams) TouchTeamLogin(context.Context, string, time.Time) error {
	f.touched++
	return nil
}

const testSecret = "team-secret-key"

func newTestAuthenticator(t *testing.T) (*Authenticator, *fakeTeams) {
	t.Helper()
	teams := &fakeTeams{teams: map[string]storage.Team{
		"shop": {Slug: "shop", SecretKey: testSecret, Active: true},
		"idle": {Slug: "idle", SecretKey: testSecret, Active: false},
	}}
	a := New(DefaultConfig(), teams)
	t.Cleanup(func() { a.Close() })
	return a, teams
}

// signedRequest builds a request whose token is valid for testSecret.
func signedRequest(slug, orderID string) Request {
	params := map[string]string{
		"TeamSlug": slug,
		"OrderId":  orderID,
		"Amount":   "100",
	}
	token := ComputeToken(params, testSecret)
	params[TokenParamName] = token
	return Request{TeamSlug: slug, Params: params, Token: token, ClientIP: "10.0.0.1"}
}

func TestAuthenticate_Success(t *testing.T) {
	a, teams := newTestAuthenticator(t)

	result, err := a.Authenticate(context.Background(), signedRequest("shop", "ord-1"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Team.Slug != "shop" {
		t.Fatalf("team slug = %q, want shop", result.Team.Slug)
	}
	if teams.touched != 1 {
		t.Fatalf("last-login touches = %d, want 1", teams.touched)
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	req := signedRequest("shop", "ord-1")
	req.Token = ComputeToken(req.Params, "wrong-secret")
	req.Params[TokenParamName] = req.Token

	_, err := a.Authenticate(context.Background(), req)
	if !gwerrors.IsKind(err, gwerrors.KindInvalidToken) {
		t.Fatalf("kind = %v, want invalid_token", gwerrors.KindOf(err))
	}
}

func TestAuthenticate_UnknownTeam(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	_, err := a.Authenticate(context.Background(), signedRequest("ghost", "ord-1"))
	if !gwerrors.IsKind(err, gwerrors.KindTeamNotFound) {
		t.Fatalf("kind = %v, want team_not_found", gwerrors.KindOf(err))
	}
}

func TestAuthenticate_OverlongSlugIsUnknown(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	req := signedRequest("this-slug-is-way-too-long-to-be-real", "ord-1")
	_, err := a.Authenticate(context.Background(), req)
	if !gwerrors.IsKind(err, gwerrors.KindTeamNotFound) {
		t.Fatalf("kind = %v, want team_not_found", gwerrors.KindOf(err))
	}
}

func TestAuthenticate_InactiveTeam(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	_, err := a.Authenticate(context.Background(), signedRequest("idle", "ord-1"))
	if !gwerrors.IsKind(err, gwerrors.KindTeamInactive) {
		t.Fatalf("kind = %v, want team_inactive", gwerrors.KindOf(err))
	}
}

func TestAuthenticate_MissingParameters(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	_, err := a.Authenticate(context.Background(), Request{TeamSlug: "shop"})
	if !gwerrors.IsKind(err, gwerrors.KindMissingParameters) {
		t.Fatalf("kind = %v, want missing_parameters", gwerrors.KindOf(err))
	}
}

func TestAuthenticate_TimestampSkew(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	params := map[string]string{
		"TeamSlug":  "shop",
		"OrderId":   "ord-ts",
		"Timestamp": time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
	}
	token := ComputeToken(params, testSecret)
	params[TokenParamName] = token

	_, err := a.Authenticate(context.Background(), Request{
		TeamSlug: "shop", Params: params, Token: token, ClientIP: "10.0.0.1",
	})
	if !gwerrors.IsKind(err, gwerrors.KindTimestampInvalid) {
		t.Fatalf("kind = %v, want timestamp_invalid", gwerrors.KindOf(err))
	}
}

func TestAuthenticate_TimestampWithinTolerance(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	params := map[string]string{
		"TeamSlug":  "shop",
		"OrderId":   "ord-ts-ok",
		"Timestamp": time.Now().Add(-time.Minute).UTC().Format(time.RFC3339),
	}
	token := ComputeToken(params, testSecret)
	params[TokenParamName] = token

	if _, err := a.Authenticate(context.Background(), Request{
		TeamSlug: "shop", Params: params, Token: token, ClientIP: "10.0.0.1",
	}); err != nil {
		t.Fatalf("timestamp within tolerance must pass, got %v", err)
	}
}

func TestAuthenticate_FingerprintReplay(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	req := signedRequest("shop", "ord-replay")
	if _, err := a.Authenticate(context.Background(), req); err != nil {
		t.Fatalf("first submission must pass, got %v", err)
	}

	_, err := a.Authenticate(context.Background(), req)
	if !gwerrors.IsKind(err, gwerrors.KindReplayDetected) {
		t.Fatalf("kind = %v, want replay_detected", gwerrors.KindOf(err))
	}
}

func TestAuthenticate_NonceReplayAcrossOrders(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	build := func(orderID string) Request {
		params := map[string]string{
			"TeamSlug": "shop",
			"OrderId":  orderID,
			"Nonce":    "nonce-shared",
		}
		token := ComputeToken(params, testSecret)
		params[TokenParamName] = token
		return Request{TeamSlug: "shop", Params: params, Token: token, ClientIP: "10.0.0.1"}
	}

	if _, err := a.Authenticate(context.Background(), build("ord-a")); err != nil {
		t.Fatalf("first nonce use must pass, got %v", err)
	}

	_, err := a.Authenticate(context.Background(), build("ord-b"))
	if !gwerrors.IsKind(err, gwerrors.KindReplayDetected) {
		t.Fatalf("kind = %v, want replay_detected", gwerrors.KindOf(err))
	}
}

func TestAuthenticate_ProgressiveLockout(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	bad := signedRequest("shop", "ord-lock")
	bad.Token = "0000000000000000000000000000000000000000000000000000000000000000"
	bad.Params[TokenParamName] = bad.Token

	for i := 0; i < 5; i++ {
		if _, err := a.Authenticate(context.Background(), bad); !gwerrors.IsKind(err, gwerrors.KindInvalidToken) {
			t.Fatalf("attempt %d kind = %v, want invalid_token", i+1, gwerrors.KindOf(err))
		}
	}

	// Even a correctly signed request is refused while blocked.
	good := signedRequest("shop", "ord-after-lock")
	_, err := a.Authenticate(context.Background(), good)
	if !gwerrors.IsKind(err, gwerrors.KindTeamBlocked) {
		t.Fatalf("kind = %v, want team_blocked", gwerrors.KindOf(err))
	}
	if a.Lockout().BlockLevel("shop") != 1 {
		t.Fatalf("block level = %d, want 1", a.Lockout().BlockLevel("shop"))
	}
}

func TestAuthenticate_BlockedAttemptsAppearInTrail(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	bad := signedRequest("shop", "ord-trail")
	bad.Token = "0000000000000000000000000000000000000000000000000000000000000000"
	bad.Params[TokenParamName] = bad.Token
	for i := 0; i < 5; i++ {
		a.Authenticate(context.Background(), bad)
	}
	before := len(a.Lockout().RecentAttempts("shop"))

	good := signedRequest("shop", "ord-while-blocked")
	for i := 0; i < 2; i++ {
		if _, err := a.Authenticate(context.Background(), good); !gwerrors.IsKind(err, gwerrors.KindTeamBlocked) {
			t.Fatalf("kind = %v, want team_blocked", gwerrors.KindOf(err))
		}
	}

	trail := a.Lockout().RecentAttempts("shop")
	if len(trail) != before+2 {
		t.Fatalf("trail grew from %d to %d, want both refused attempts recorded", before, len(trail))
	}
	last := trail[len(trail)-1]
	if !last.Refused || last.Success {
		t.Fatalf("last attempt = %+v, want a refused non-success entry", last)
	}
	if a.Lockout().BlockLevel("shop") != 1 {
		t.Fatalf("block level = %d, traffic during a block must not escalate it",
			a.Lockout().BlockLevel("shop"))
	}
}

func TestAuthenticate_MalformedRequestAppearsInTrail(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	_, err := a.Authenticate(context.Background(), Request{TeamSlug: "shop", ClientIP: "10.0.0.1"})
	if !gwerrors.IsKind(err, gwerrors.KindMissingParameters) {
		t.Fatalf("kind = %v, want missing_parameters", gwerrors.KindOf(err))
	}

	trail := a.Lockout().RecentAttempts("shop")
	if len(trail) != 1 || !trail[0].Refused {
		t.Fatalf("trail = %+v, want one refused attempt", trail)
	}
	if blocked, _ := a.Lockout().Blocked("shop", "10.0.0.1"); blocked {
		t.Fatal("a malformed request must not block the team")
	}
}

func TestAuthenticate_ReplayDoesNotEscalateLockout(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	for i := 0; i < 4; i++ {
		req := signedRequest("shop", fmt.Sprintf("ord-%d", i))
		if _, err := a.Authenticate(context.Background(), req); err != nil {
			t.Fatalf("setup submission failed: %v", err)
		}
		// Replay each request once: flagged, but not a credential failure.
		if _, err := a.Authenticate(context.Background(), req); !gwerrors.IsKind(err, gwerrors.KindReplayDetected) {
			t.Fatalf("kind = %v, want replay_detected", gwerrors.KindOf(err))
		}
	}

	if blocked, _ := a.Lockout().Blocked("shop", "10.0.0.1"); blocked {
		t.Fatal("replays must not block the team")
	}
}
