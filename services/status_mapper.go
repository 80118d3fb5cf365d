package services

import "payment-connector/models"

// MappingKind classifies a provider status token.
type MappingKind int

const (
	// MappingUnknown is an unrecognised token: skipped and logged for
	// investigation.
	MappingUnknown MappingKind = iota
	// MappingIgnored is a known but inactionable token: skipped silently.
	MappingIgnored
	// MappingCharge maps to a charge status.
	MappingCharge
	// MappingRefund maps to a refund status.
	MappingRefund
)

// StatusMapping is the classification result for one provider token.
type StatusMapping struct {
	Kind         MappingKind
	ChargeStatus models.ChargeStatus
	RefundStatus models.RefundStatus
}

func chargeMapping(s models.ChargeStatus) StatusMapping {
	return StatusMapping{Kind: MappingCharge, ChargeStatus: s}
}

func refundMapping(s models.RefundStatus) StatusMapping {
	return StatusMapping{Kind: MappingRefund, RefundStatus: s}
}

var ignored = StatusMapping{Kind: MappingIgnored}

// StatusMapper translates provider-specific status tokens into internal
// statuses. The table is fixed at construction; tokens absent from a
// provider's table are unknown.
type StatusMapper struct {
	byProvider map[string]map[string]StatusMapping
}

// NewStatusMapper builds the mapper for all supported providers.
//
// Stripe tokens cover both webhook event types and PaymentIntent status
// strings, since the discrepancy poller sees the latter.
func NewStatusMapper() *StatusMapper {
	return &StatusMapper{byProvider: map[string]map[string]StatusMapping{
		"stripe": {
			// Webhook event types.
			"payment_intent.succeeded":                 chargeMapping(models.StatusCaptured),
			"payment_intent.created":                   ignored,
			"payment_intent.processing":                ignored,
			"payment_intent.amount_capturable_updated": ignored,
			"charge.refunded":                          refundMapping(models.RefundStatusRefunded),
			"refund.created":                           ignored,
			"refund.failed":                            refundMapping(models.RefundStatusError),
			// PaymentIntent status strings from polled lookups.
			"succeeded":        chargeMapping(models.StatusCaptured),
			"requires_capture": ignored,
			"processing":       ignored,
		},
		"sandbox": {
			"authorised": ignored,
			"captured":   chargeMapping(models.StatusCaptured),
			"refunded":   refundMapping(models.RefundStatusRefunded),
			"cancelled":  ignored,
		},
	}}
}

// Map classifies the token for the given provider.
func (m *StatusMapper) Map(provider, token string) StatusMapping {
	table, ok := m.byProvider[provider]
	if !ok {
		return StatusMapping{Kind: MappingUnknown}
	}
	mapping, ok := table[token]
	if !ok {
		return StatusMapping{Kind: MappingUnknown}
	}
	return mapping
}
