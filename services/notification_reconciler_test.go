package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"payment-connector/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newReconciler(charges *fakeChargeRepo, refunds *fakeRefundRepo, allowed map[string][]string) *NotificationReconciler {
	logger := zap.NewNop()
	tr := NewLifecycleTransitioner(charges, refunds, &fakePublisher{}, logger)
	return NewNotificationReconciler(
		charges, refunds, tr, NewStatusMapper(),
		NewSourceVerifier(allowed, logger), logger,
		NewStripeNotificationParser(),
		NewSandboxNotificationParser(),
	)
}

func sandboxBody(transactionID, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"events":[{"transaction_id":%q,"status":%q,"timestamp":%q}]}`,
		transactionID, status, time.Now().UTC().Format(time.RFC3339),
	))
}

func TestHandle_AppliesChargeNotification(t *testing.T) {
	charge := &models.Charge{
		Status:               models.StatusCaptureSubmitted,
		PaymentProvider:      "sandbox",
		GatewayTransactionID: strptr("sandbox-abc"),
	}
	charges := newFakeChargeRepo(charge)
	rec := newReconciler(charges, newFakeRefundRepo(), nil)

	ok := rec.Handle(context.Background(), "203.0.113.7", "sandbox", sandboxBody("sandbox-abc", "captured"))
	require.True(t, ok)

	got, err := charges.FindByExternalID(context.Background(), charge.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCaptured, got.Status)
}

func TestHandle_DuplicateNotificationIsNoOp(t *testing.T) {
	charge := &models.Charge{
		Status:               models.StatusCaptured,
		PaymentProvider:      "sandbox",
		GatewayTransactionID: strptr("sandbox-abc"),
		Version:              3,
	}
	charges := newFakeChargeRepo(charge)
	rec := newReconciler(charges, newFakeRefundRepo(), nil)

	ok := rec.Handle(context.Background(), "203.0.113.7", "sandbox", sandboxBody("sandbox-abc", "captured"))
	require.True(t, ok)

	got, _ := charges.FindByExternalID(context.Background(), charge.ExternalID)
	assert.Equal(t, models.StatusCaptured, got.Status)
	assert.Equal(t, int64(3), got.Version, "duplicate must not write")
}

func TestHandle_UnknownTransactionSkipped(t *testing.T) {
	rec := newReconciler(newFakeChargeRepo(), newFakeRefundRepo(), nil)

	ok := rec.Handle(context.Background(), "203.0.113.7", "sandbox", sandboxBody("sandbox-nope", "captured"))
	assert.True(t, ok)
}

func TestHandle_MalformedPayloadAcceptedAndDropped(t *testing.T) {
	charges := newFakeChargeRepo()
	rec := newReconciler(charges, newFakeRefundRepo(), nil)

	ok := rec.Handle(context.Background(), "203.0.113.7", "sandbox", []byte("not json"))
	assert.True(t, ok, "malformed payloads are acknowledged, not redelivered")
}

func TestHandle_OriginVerification(t *testing.T) {
	charge := &models.Charge{
		Status:               models.StatusCaptureSubmitted,
		PaymentProvider:      "sandbox",
		GatewayTransactionID: strptr("sandbox-abc"),
	}
	charges := newFakeChargeRepo(charge)
	allowed := map[string][]string{"sandbox": {"203.0.113.7"}}
	rec := newReconciler(charges, newFakeRefundRepo(), allowed)

	ok := rec.Handle(context.Background(), "198.51.100.1", "sandbox", sandboxBody("sandbox-abc", "captured"))
	assert.False(t, ok, "unlisted source must be rejected")

	got, _ := charges.FindByExternalID(context.Background(), charge.ExternalID)
	assert.Equal(t, models.StatusCaptureSubmitted, got.Status)

	ok = rec.Handle(context.Background(), "203.0.113.7:4432", "sandbox", sandboxBody("sandbox-abc", "captured"))
	assert.True(t, ok, "listed source with port must pass")
}

func TestHandle_UnconfiguredProviderDropped(t *testing.T) {
	rec := newReconciler(newFakeChargeRepo(), newFakeRefundRepo(), nil)

	ok := rec.Handle(context.Background(), "203.0.113.7", "worldpay", []byte(`{}`))
	assert.True(t, ok)
}

func TestHandle_RefundNotification(t *testing.T) {
	refund := &models.Refund{
		Status:    models.RefundStatusSubmitted,
		Reference: strptr("re_123"),
	}
	refunds := newFakeRefundRepo(refund)
	rec := newReconciler(newFakeChargeRepo(), refunds, nil)

	body := []byte(`{
		"id": "evt_1",
		"type": "charge.refunded",
		"created": 1724800000,
		"data": {"object": {"id": "ch_1", "refunds": {"data": [{"id": "re_123"}]}}}
	}`)

	ok := rec.Handle(context.Background(), "203.0.113.7", "stripe", body)
	require.True(t, ok)

	got, err := refunds.FindByExternalID(context.Background(), refund.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusRefunded, got.Status)
}

func TestHandle_OutOfOrderNotificationDoesNotRegress(t *testing.T) {
	// The charge graph has no edge out of CAPTURE_ERROR, so a late
	// "captured" notification is logged and dropped, never applied.
	charge := &models.Charge{
		Status:               models.StatusCaptureError,
		PaymentProvider:      "sandbox",
		GatewayTransactionID: strptr("sandbox-abc"),
	}
	charges := newFakeChargeRepo(charge)
	rec := newReconciler(charges, newFakeRefundRepo(), nil)

	ok := rec.Handle(context.Background(), "203.0.113.7", "sandbox", sandboxBody("sandbox-abc", "captured"))
	require.True(t, ok)

	got, _ := charges.FindByExternalID(context.Background(), charge.ExternalID)
	assert.Equal(t, models.StatusCaptureError, got.Status)
}
