package storage

import (
	"fmt"
	"time"
)

// Status is the payment lifecycle status. Wire names are fixed.
type Status string

const (
	StatusInit            Status = "INIT"
	StatusNew             Status = "NEW"
	StatusFormShowed      Status = "FORM_SHOWED"
	StatusAuthorized      Status = "AUTHORIZED"
	StatusConfirmed       Status = "CONFIRMED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
	StatusRefunded        Status = "REFUNDED"
	StatusPartialRefunded Status = "PARTIAL_REFUNDED"
	StatusExpired         Status = "EXPIRED"
)

// AllStatuses lists every valid status, in lifecycle order.
var AllStatuses = []Status{
	StatusInit,
	StatusNew,
	StatusFormShowed,
	StatusAuthorized,
	StatusConfirmed,
	StatusCancelled,
	StatusRejected,
	StatusRefunded,
	StatusPartialRefunded,
	StatusExpired,
}

// ParseStatus validates a wire status name.
func ParseStatus(s string) (Status, error) {
	for _, status := range AllStatuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// IsTerminal reports whether the status has no permitted successors.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusRejected, StatusRefunded, StatusExpired:
		return true
	}
	return false
}

// Payment is a single transactional intent with a monotonic status.
// Payments are never deleted; terminal statuses are absorbing.
type Payment struct {
	PaymentID   string    `json:"paymentId" bson:"_id"`
	TeamSlug    string    `json:"teamSlug" bson:"team_slug"`
	Amount      int64     `json:"amount" bson:"amount"` // integer minor units
	Currency    string    `json:"currency" bson:"currency"`
	Status      Status    `json:"status" bson:"status"`
	Fingerprint string    `json:"-" bson:"fingerprint"` // idempotency fingerprint of the init request
	NotifyURL   string    `json:"notifyUrl,omitempty" bson:"notify_url"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updated_at"`
}

// Team is a registered merchant. SecretKey is opaque shared-key material:
// it is never logged, never serialized, and never returned to callers.
type Team struct {
	Slug        string    `json:"slug" bson:"_id"`
	SecretKey   string    `json:"-" bson:"secret_key"`
	Active      bool      `json:"active" bson:"active"`
	Locked      bool      `json:"locked" bson:"locked"`
	DailyLimit  int64     `json:"dailyLimit,omitempty" bson:"daily_limit"` // minor units, 0 = unlimited
	NotifyURL   string    `json:"notifyUrl,omitempty" bson:"notify_url"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
	LastLoginAt time.Time `json:"lastLoginAt,omitempty" bson:"last_login_at"`
}

// MaxTeamSlugLength bounds merchant slugs.
const MaxTeamSlugLength = 20
