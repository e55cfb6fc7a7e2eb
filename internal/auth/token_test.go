package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestCanonicalString_SortsAndExcludesToken(t *testing.T) {
	params := map[string]string{
		"OrderId":  "ord-1",
		"Amount":   "1500",
		"TeamSlug": "shop",
		"Token":    "should-be-excluded",
	}

	got := CanonicalString(params, "secret")
	want := "Amount=1500&OrderId=ord-1&TeamSlug=shop&SecretKey=secret"
	if got != want {
		t.Fatalf("canonical string = %q, want %q", got, want)
	}
}

func TestCanonicalString_EmptyParams(t *testing.T) {
	got := CanonicalString(map[string]string{}, "secret")
	if got != "SecretKey=secret" {
		t.Fatalf("canonical string = %q, want %q", got, "SecretKey=secret")
	}
}

func TestCanonicalString_OrdinalOrder(t *testing.T) {
	// Byte order, not locale order: uppercase sorts before lowercase.
	params := map[string]string{
		"amount": "1",
		"Amount": "2",
	}
	got := CanonicalString(params, "s")
	if !strings.HasPrefix(got, "Amount=2&amount=1") {
		t.Fatalf("expected ordinal byte order, got %q", got)
	}
}

func TestComputeToken_MatchesManualDigest(t *testing.T) {
	params := map[string]string{
		"OrderId":  "ord-7",
		"Amount":   "100",
		"TeamSlug": "shop",
	}
	secret := "k3y"

	sum := sha256.Sum256([]byte("Amount=100&OrderId=ord-7&TeamSlug=shop&SecretKey=k3y"))
	want := hex.EncodeToString(sum[:])

	if got := ComputeToken(params, secret); got != want {
		t.Fatalf("token = %q, want %q", got, want)
	}
	if got := ComputeToken(params, secret); len(got) != 64 || got != strings.ToLower(got) {
		t.Fatalf("token must be 64 lowercase hex chars, got %q", got)
	}
}

func TestComputeToken_ChangesWithAnyInput(t *testing.T) {
	base := map[string]string{"OrderId": "1", "Amount": "100"}
	baseline := ComputeToken(base, "secret")

	altered := map[string]string{"OrderId": "1", "Amount": "101"}
	if ComputeToken(altered, "secret") == baseline {
		t.Fatal("changing a parameter must change the token")
	}
	if ComputeToken(base, "secret2") == baseline {
		t.Fatal("changing the secret must change the token")
	}
}

func TestTokensEqual(t *testing.T) {
	params := map[string]string{"OrderId": "1"}
	expected := ComputeToken(params, "secret")

	if !TokensEqual(expected, expected) {
		t.Fatal("identical tokens must compare equal")
	}
	if TokensEqual(expected[:63]+"0", expected) && expected[63] != '0' {
		t.Fatal("single-character difference must not compare equal")
	}
	if TokensEqual(expected[:10], expected) {
		t.Fatal("different lengths must not compare equal")
	}
	if TokensEqual("", expected) {
		t.Fatal("empty token must not compare equal")
	}
}

func TestFingerprint_StableAndShort(t *testing.T) {
	params := map[string]string{
		"OrderId":   "ord-1",
		"Amount":    "100",
		"TeamSlug":  "shop",
		"Timestamp": "2026-08-24T10:00:00Z",
		"Nonce":     "n-1",
	}

	first := Fingerprint("shop", "tok", params)
	second := Fingerprint("shop", "tok", params)
	if first != second {
		t.Fatalf("fingerprint not stable: %q vs %q", first, second)
	}
	if len(first) != 16 {
		t.Fatalf("fingerprint length = %d, want 16", len(first))
	}

	params["Nonce"] = "n-2"
	if Fingerprint("shop", "tok", params) == first {
		t.Fatal("different nonce must change the fingerprint")
	}
}

func TestFingerprint_IgnoresUnlistedParams(t *testing.T) {
	params := map[string]string{"OrderId": "ord-1", "Amount": "100"}
	base := Fingerprint("shop", "tok", params)

	params["Description"] = "coffee"
	if Fingerprint("shop", "tok", params) != base {
		t.Fatal("non-key parameters must not affect the fingerprint")
	}
}
