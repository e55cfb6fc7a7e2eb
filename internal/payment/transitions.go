package payment

import (
	"github.com/gatewaycore/server/internal/storage"
)

// successors is the fixed status graph. Terminal statuses have no entry:
// nothing leaves CANCELLED, REJECTED, REFUNDED, or EXPIRED.
var successors = map[storage.Status][]storage.Status{
	storage.StatusInit: {
		storage.StatusNew,
		storage.StatusCancelled,
		storage.StatusExpired,
	},
	storage.StatusNew: {
		storage.StatusFormShowed,
		storage.StatusCancelled,
		storage.StatusExpired,
	},
	storage.StatusFormShowed: {
		storage.StatusAuthorized,
		storage.StatusRejected,
		storage.StatusCancelled,
		storage.StatusExpired,
	},
	storage.StatusAuthorized: {
		storage.StatusConfirmed,
		storage.StatusCancelled,
		storage.StatusExpired,
	},
	storage.StatusConfirmed: {
		storage.StatusRefunded,
		storage.StatusPartialRefunded,
	},
	storage.StatusPartialRefunded: {
		storage.StatusRefunded,
	},
}

// Allowed reports whether the status graph permits moving from one status
// directly to another.
func Allowed(from, to storage.Status) bool {
	for _, next := range successors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Successors returns the statuses reachable in one step from the given
// status. Terminal statuses return nil.
func Successors(from storage.Status) []storage.Status {
	next := successors[from]
	if len(next) == 0 {
		return nil
	}
	out := make([]storage.Status, len(next))
	copy(out, next)
	return out
}
