// Package audit is the append-only record of payment gate decisions and the
// source of operational alerts.
package audit

import (
	"errors"
	"time"
)

var (
	ErrEventNotFound      = errors.New("security event not found")
	ErrInvalidResolution  = errors.New("invalid resolution status")
	ErrEventAlreadyClosed = errors.New("security event already resolved")
)

type EventType string

const (
	EventRateLimitBlock     EventType = "rate_limit_block"
	EventInvalidOrder       EventType = "invalid_order"
	EventDuplicateAttempt   EventType = "duplicate_attempt"
	EventUnauthorizedAccess EventType = "unauthorized_access"
	EventFraudBlock         EventType = "fraud_block"
	EventHighRiskPayment    EventType = "high_risk_payment"
	EventPaymentCreated     EventType = "payment_created"
	EventPaymentFailed      EventType = "payment_failed"
	EventPaymentConfirmed   EventType = "payment_confirmed"
	EventRepeatedFailures   EventType = "repeated_failures"
)

// failureTypes count toward the repeated failures alert.
var failureTypes = []EventType{
	EventRateLimitBlock,
	EventUnauthorizedAccess,
	EventFraudBlock,
	EventPaymentFailed,
	EventDuplicateAttempt,
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Alerting() bool {
	return s == SeverityHigh || s == SeverityCritical
}

type Resolution string

const (
	ResolutionOpen      Resolution = "open"
	ResolutionResolved  Resolution = "resolved"
	ResolutionDismissed Resolution = "dismissed"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionOpen, ResolutionResolved, ResolutionDismissed:
		return true
	}
	return false
}

// SecurityEvent is immutable once written except for Status and ResolvedAt.
type SecurityEvent struct {
	ID          string
	Type        EventType
	Severity    Severity
	Description string
	Details     map[string]any
	ActorID     string
	IPAddress   string
	Status      Resolution
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Type      EventType
	Severity  Severity
	Status    Resolution
	IPAddress string
	Since     time.Time
	Limit     int
}
