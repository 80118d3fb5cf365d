package models

import "time"

// CaptureMessage is the SQS payload that asks a worker to attempt a
// capture. Deliberately minimal: everything else is re-fetched from the
// store by id, so queue payload size and parsing surface stay small.
type CaptureMessage struct {
	ChargeID string `json:"chargeId"`
}

// Notification is one provider-pushed status update, already extracted
// from the raw webhook payload by a provider-specific parser.
type Notification struct {
	// TransactionID correlates to Charge.GatewayTransactionID for charge
	// notifications and to Refund.Reference for refund notifications.
	TransactionID string
	// ProviderStatus is the provider's own status token, opaque until the
	// status mapper classifies it.
	ProviderStatus string
	// EventTimestamp is provider-supplied and authoritative for display
	// ordering only. Processing order is whatever delivery order we got.
	EventTimestamp time.Time
}

// ChargeStatusChangedEvent is the domain event published to SNS after a
// charge status transition commits.
type ChargeStatusChangedEvent struct {
	EventType  string    `json:"event_type"`
	ChargeID   string    `json:"charge_id"`
	Provider   string    `json:"provider"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RefundStatusChangedEvent is the refund counterpart.
type RefundStatusChangedEvent struct {
	EventType  string    `json:"event_type"`
	RefundID   string    `json:"refund_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	EventTypeChargeStatusChanged = "charge.status_changed"
	EventTypeRefundStatusChanged = "refund.status_changed"
)
