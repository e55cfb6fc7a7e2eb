package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// TokenParamName is excluded from the canonical parameter string.
const TokenParamName = "Token"

// CanonicalString forms the signing input: request parameters (minus the
// token itself) sorted by name in ordinal byte order, concatenated as
// name=value pairs joined by '&', with the shared secret appended as a
// final SecretKey pair.
func CanonicalString(params map[string]string, secret string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		if name == TokenParamName {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString("SecretKey=")
	b.WriteString(secret)

	return b.String()
}

// ComputeToken returns the expected request token: lowercase hex SHA-256
// over the UTF-8 bytes of the canonical parameter string.
func ComputeToken(params map[string]string, secret string) string {
	sum := sha256.Sum256([]byte(CanonicalString(params, secret)))
	return hex.EncodeToString(sum[:])
}

// TokensEqual compares a provided token against the expected one in
// constant time. Unequal lengths fail immediately; equal-length inputs are
// compared with an XOR accumulator so timing never reveals a match prefix.
func TokensEqual(provided, expected string) bool {
	if len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// fingerprintParams is the canonical subset of key parameters hashed into
// the replay fingerprint.
var fingerprintParams = []string{"OrderId", "Amount", "TeamSlug", "Timestamp", "Nonce"}

// Fingerprint derives the short stable digest used as the replay-cache key
// for a signed request.
func Fingerprint(teamSlug, providedToken string, params map[string]string) string {
	h := sha256.New()
	h.Write([]byte(teamSlug))
	h.Write([]byte{0})
	h.Write([]byte(providedToken))
	for _, name := range fingerprintParams {
		h.Write([]byte{0})
		h.Write([]byte(params[name]))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
