package services

import (
	"testing"

	"payment-connector/models"

	"github.com/stretchr/testify/assert"
)

func TestMap_StripeWebhookTokens(t *testing.T) {
	m := NewStatusMapper()

	got := m.Map("stripe", "payment_intent.succeeded")
	assert.Equal(t, MappingCharge, got.Kind)
	assert.Equal(t, models.StatusCaptured, got.ChargeStatus)

	got = m.Map("stripe", "charge.refunded")
	assert.Equal(t, MappingRefund, got.Kind)
	assert.Equal(t, models.RefundStatusRefunded, got.RefundStatus)

	got = m.Map("stripe", "refund.failed")
	assert.Equal(t, MappingRefund, got.Kind)
	assert.Equal(t, models.RefundStatusError, got.RefundStatus)
}

func TestMap_IgnoredTokens(t *testing.T) {
	m := NewStatusMapper()

	for _, token := range []string{"payment_intent.created", "payment_intent.processing", "refund.created"} {
		assert.Equal(t, MappingIgnored, m.Map("stripe", token).Kind, token)
	}
	for _, token := range []string{"authorised", "cancelled"} {
		assert.Equal(t, MappingIgnored, m.Map("sandbox", token).Kind, token)
	}
}

func TestMap_PolledStripeStatuses(t *testing.T) {
	m := NewStatusMapper()

	got := m.Map("stripe", "succeeded")
	assert.Equal(t, MappingCharge, got.Kind)
	assert.Equal(t, models.StatusCaptured, got.ChargeStatus)

	assert.Equal(t, MappingIgnored, m.Map("stripe", "requires_capture").Kind)
}

func TestMap_Unknown(t *testing.T) {
	m := NewStatusMapper()

	assert.Equal(t, MappingUnknown, m.Map("stripe", "payment_intent.exploded").Kind)
	assert.Equal(t, MappingUnknown, m.Map("worldpay", "captured").Kind)
}
