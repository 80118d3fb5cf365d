package services

import (
	"encoding/json"
	"fmt"
	"time"

	"payment-connector/models"

	"github.com/stripe/stripe-go/v80"
)

// NotificationParser turns one raw webhook payload into zero or more
// notifications. Implementations are provider-specific; a parse error
// means the payload is malformed, not that delivery should be retried.
type NotificationParser interface {
	Provider() string
	Parse(raw []byte) ([]models.Notification, error)
}

// StripeNotificationParser reads Stripe event envelopes. One envelope
// usually yields one notification; charge.refunded events yield one per
// refund attached to the charge.
type StripeNotificationParser struct{}

func NewStripeNotificationParser() *StripeNotificationParser {
	return &StripeNotificationParser{}
}

func (p *StripeNotificationParser) Provider() string { return "stripe" }

func (p *StripeNotificationParser) Parse(raw []byte) ([]models.Notification, error) {
	var event stripe.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("stripe event envelope: %w", err)
	}
	if event.Type == "" || event.Data == nil {
		return nil, fmt.Errorf("stripe event missing type or data")
	}
	eventTime := time.Unix(event.Created, 0).UTC()

	if event.Type == "charge.refunded" {
		return p.refundsFromCharge(event, eventTime)
	}

	id, _ := event.Data.Object["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("stripe event %s: object has no id", event.Type)
	}
	return []models.Notification{{
		TransactionID:  id,
		ProviderStatus: string(event.Type),
		EventTimestamp: eventTime,
	}}, nil
}

// refundsFromCharge extracts the refund ids embedded in a charge.refunded
// event; the correlation key for refund notifications is the refund id,
// not the charge id.
func (p *StripeNotificationParser) refundsFromCharge(event stripe.Event, eventTime time.Time) ([]models.Notification, error) {
	refunds, ok := event.Data.Object["refunds"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("charge.refunded event without refunds list")
	}
	data, ok := refunds["data"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("charge.refunded event without refunds data")
	}
	var out []models.Notification
	for _, entry := range data {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := obj["id"].(string)
		if id == "" {
			continue
		}
		out = append(out, models.Notification{
			TransactionID:  id,
			ProviderStatus: string(event.Type),
			EventTimestamp: eventTime,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("charge.refunded event with no usable refund entries")
	}
	return out, nil
}

// sandboxPayload is the sandbox provider's webhook format.
type sandboxPayload struct {
	Events []struct {
		TransactionID string    `json:"transaction_id"`
		Status        string    `json:"status"`
		Timestamp     time.Time `json:"timestamp"`
	} `json:"events"`
}

// SandboxNotificationParser reads the sandbox provider's JSON payloads.
type SandboxNotificationParser struct{}

func NewSandboxNotificationParser() *SandboxNotificationParser {
	return &SandboxNotificationParser{}
}

func (p *SandboxNotificationParser) Provider() string { return "sandbox" }

func (p *SandboxNotificationParser) Parse(raw []byte) ([]models.Notification, error) {
	var payload sandboxPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("sandbox payload: %w", err)
	}
	if len(payload.Events) == 0 {
		return nil, fmt.Errorf("sandbox payload with no events")
	}
	out := make([]models.Notification, 0, len(payload.Events))
	for _, e := range payload.Events {
		if e.TransactionID == "" || e.Status == "" {
			return nil, fmt.Errorf("sandbox event missing transaction_id or status")
		}
		out = append(out, models.Notification{
			TransactionID:  e.TransactionID,
			ProviderStatus: e.Status,
			EventTimestamp: e.Timestamp,
		})
	}
	return out, nil
}
