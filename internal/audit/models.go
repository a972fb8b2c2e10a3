// Package audit fans governed-action events out to operational sinks. The
// receipt ledger is the authoritative record; audit events are the
// best-effort operational feed (dashboards, SIEM) derived from the same
// activity. Keep events transport-agnostic so stores and sinks can fan out.
package audit

import "time"

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies and routing.
type EventCategory string

const (
	// CategoryDecision covers policy evaluations and their outcomes.
	CategoryDecision EventCategory = "decision"

	// CategoryGate covers spending, approval, and idempotency gate activity.
	CategoryGate EventCategory = "gate"

	// CategoryLedger covers receipt recording and verification passes.
	CategoryLedger EventCategory = "ledger"
)

// Event is emitted from domain logic to capture key actions.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Actor     string
	Action    string
	Decision  string
	Code      string
	Reason    string
	ReceiptID string
	CallID    string
}

// Store persists audit events. Append-only.
type Store interface {
	Append(event Event) error
	ListByActor(actor string) ([]Event, error)
}
