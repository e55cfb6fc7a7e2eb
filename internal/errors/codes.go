package errors

// Kind is a machine-readable identifier for every failure the core can
// surface. The set is closed: new kinds require a wire-protocol revision.
type Kind string

// Authentication failures.
const (
	KindMissingParameters Kind = "missing_parameters"
	KindInvalidToken      Kind = "invalid_token"
	KindTeamNotFound      Kind = "team_not_found"
	KindTeamBlocked       Kind = "team_blocked"
	KindTeamInactive      Kind = "team_inactive"
	KindReplayDetected    Kind = "replay_detected"
	KindTimestampInvalid  Kind = "timestamp_invalid"
)

// Transition rejections.
const (
	KindInvalidTransition Kind = "invalid_transition"
	KindStateMismatch     Kind = "state_mismatch"
)

// Infrastructure failures.
const (
	KindLockTimeout         Kind = "lock_timeout"
	KindPersistenceFailed   Kind = "persistence_failed"
	KindExternalUnavailable Kind = "external_unavailable"
	KindInternal            Kind = "internal"
)

// numericCodes maps each kind to its stable wire code. Codes are grouped:
// 1xxx authentication, 2xxx transitions, 3xxx infrastructure.
var numericCodes = map[Kind]int{
	KindMissingParameters: 1001,
	KindInvalidToken:      1002,
	KindTeamNotFound:      1003,
	KindTeamBlocked:       1004,
	KindTeamInactive:      1005,
	KindReplayDetected:    1006,
	KindTimestampInvalid:  1007,

	KindInvalidTransition: 2001,
	KindStateMismatch:     2002,

	KindLockTimeout:         3001,
	KindPersistenceFailed:   3002,
	KindExternalUnavailable: 3003,
	KindInternal:            3999,
}

// NumericCode returns the stable wire code for the kind.
// Unknown kinds collapse to the internal code.
func (k Kind) NumericCode() int {
	if code, ok := numericCodes[k]; ok {
		return code
	}
	return numericCodes[KindInternal]
}

// IsRetryable reports whether the client should retry the same request.
// Only transient infrastructure failures qualify; validation and
// authentication failures never do.
func (k Kind) IsRetryable() bool {
	switch k {
	case KindLockTimeout,
		KindPersistenceFailed,
		KindExternalUnavailable:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status code used when the kind crosses the
// wire.
func (k Kind) HTTPStatus() int {
	switch k {
	// 400 Bad Request - malformed or stale request material
	case KindMissingParameters,
		KindTimestampInvalid:
		return 400

	// 401 Unauthorized - the caller could not be authenticated
	case KindInvalidToken,
		KindTeamNotFound:
		return 401

	// 403 Forbidden - the caller is known but refused
	case KindTeamBlocked,
		KindTeamInactive:
		return 403

	// 409 Conflict - the request races another or repeats a previous one
	case KindReplayDetected,
		KindInvalidTransition,
		KindStateMismatch:
		return 409

	// 502 Bad Gateway - a downstream collaborator failed
	case KindExternalUnavailable:
		return 502

	// 503 Service Unavailable - transient, safe to retry
	case KindLockTimeout,
		KindPersistenceFailed:
		return 503

	default:
		return 500
	}
}
