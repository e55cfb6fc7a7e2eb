package webhooks

import (
	"time"

	"github.com/gatewaycore/server/internal/storage"
)

// Event is the JSON envelope POSTed to the merchant's notification URL.
type Event struct {
	PaymentID string            `json:"paymentId"`
	Status    string            `json:"status"`
	TeamSlug  string            `json:"teamSlug"`
	Timestamp time.Time         `json:"timestamp"`
	Extras    map[string]string `json:"extras,omitempty"`
}

// Job is one status notification handed off by the state manager.
type Job struct {
	PaymentID string
	Status    storage.Status
	TeamSlug  string
	NotifyURL string
	Extras    map[string]string
}

// Notifier accepts notification jobs. Submission never blocks the caller
// and never reports delivery failures back.
type Notifier interface {
	Submit(job Job)
}

// Noop ignores all jobs (tests and teams with no notification URL).
type Noop struct{}

func (Noop) Submit(Job) {}

// EventType names the notification by its terminal outcome. Non-terminal
// statuses share the generic type.
func EventType(status storage.Status) string {
	switch status {
	case storage.StatusConfirmed:
		return "payment_completed"
	case storage.StatusRejected:
		return "payment_rejected"
	case storage.StatusCancelled:
		return "payment_cancelled"
	case storage.StatusExpired:
		return "payment_expired"
	default:
		return "payment_status"
	}
}
