package retry

import (
	"context"
	"errors"
	"net"
	"strings"

	gwerrors "github.com/gatewaycore/server/internal/errors"
	"github.com/gatewaycore/server/internal/storage"
)

// Classifier maps an error to a retry category.
type Classifier func(error) Category

// Classify is the default categorization service. The output set is closed:
// TemporaryIssues, External, System, or Permanent.
func Classify(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	// Cancellation is not retryable; surface it upward immediately.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryPermanent
	}

	// Conditional-write conflicts and missing rows are terminal for the
	// attempted operation.
	if errors.Is(err, storage.ErrStatusConflict) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, storage.ErrAlreadyExists) {
		return CategoryPermanent
	}

	switch gwerrors.KindOf(err) {
	case gwerrors.KindExternalUnavailable:
		return CategoryExternal
	case gwerrors.KindPersistenceFailed, gwerrors.KindLockTimeout:
		return CategoryTemporary
	}

	if IsTransient(err) {
		return CategoryTemporary
	}

	return CategorySystem
}

// transientSubstrings are matched case-insensitively anywhere in the error
// chain's message.
var transientSubstrings = []string{
	"timeout",
	"connection",
	"network",
	"temporary failure",
	"too many requests",
}

// IsTransient infers transience from the error text and from recognized
// transport timeout kinds, independent of any explicit category.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, substr := range transientSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}

	return false
}
