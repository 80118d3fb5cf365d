package services

import (
	"context"
	"errors"
	"testing"

	"payment-connector/models"
	"payment-connector/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTransitioner(charges *fakeChargeRepo, refunds *fakeRefundRepo, pub EventPublisher) *LifecycleTransitioner {
	return NewLifecycleTransitioner(charges, refunds, pub, zap.NewNop())
}

func TestApply_ValidTransition(t *testing.T) {
	charge := &models.Charge{Status: models.StatusCreated}
	repo := newFakeChargeRepo(charge)
	pub := &fakePublisher{}
	tr := newTransitioner(repo, newFakeRefundRepo(), pub)

	err := tr.Apply(context.Background(), charge, models.StatusEnteringCardDetails)
	require.NoError(t, err)

	assert.Equal(t, models.StatusEnteringCardDetails, charge.Status)
	assert.Equal(t, int64(1), charge.Version)

	require.Len(t, pub.chargeEvents, 1)
	assert.Equal(t, string(models.StatusCreated), pub.chargeEvents[0].FromStatus)
	assert.Equal(t, string(models.StatusEnteringCardDetails), pub.chargeEvents[0].ToStatus)
	assert.Equal(t, charge.ExternalID, pub.chargeEvents[0].ChargeID)
}

func TestApply_InvalidTransition(t *testing.T) {
	charge := &models.Charge{Status: models.StatusCaptured}
	repo := newFakeChargeRepo(charge)
	pub := &fakePublisher{}
	tr := newTransitioner(repo, newFakeRefundRepo(), pub)

	err := tr.Apply(context.Background(), charge, models.StatusCreated)

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.StatusCaptured, invalid.From)
	assert.Equal(t, models.StatusCreated, invalid.To)

	// Nothing committed, nothing published.
	assert.Equal(t, models.StatusCaptured, charge.Status)
	assert.Empty(t, pub.chargeEvents)
	assert.Empty(t, repo.events[charge.ID])
}

func TestApply_ConcurrentModification(t *testing.T) {
	charge := &models.Charge{Status: models.StatusCreated}
	repo := newFakeChargeRepo(charge)
	repo.updateErr = repository.ErrConcurrentModification
	pub := &fakePublisher{}
	tr := newTransitioner(repo, newFakeRefundRepo(), pub)

	err := tr.Apply(context.Background(), charge, models.StatusEnteringCardDetails)
	require.ErrorIs(t, err, repository.ErrConcurrentModification)
	assert.Empty(t, pub.chargeEvents)
}

func TestApply_PublishFailureDoesNotFailTransition(t *testing.T) {
	charge := &models.Charge{Status: models.StatusCaptureSubmitted}
	repo := newFakeChargeRepo(charge)
	pub := &fakePublisher{err: errors.New("sns unavailable")}
	tr := newTransitioner(repo, newFakeRefundRepo(), pub)

	err := tr.Apply(context.Background(), charge, models.StatusCaptured)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCaptured, charge.Status)
}

func TestTransition_LoadsAndApplies(t *testing.T) {
	charge := &models.Charge{Status: models.StatusAuthorisationSuccess}
	repo := newFakeChargeRepo(charge)
	tr := newTransitioner(repo, newFakeRefundRepo(), &fakePublisher{})

	got, err := tr.Transition(context.Background(), charge.ExternalID, models.StatusCaptureApproved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCaptureApproved, got.Status)
}

func TestTransition_UnknownCharge(t *testing.T) {
	tr := newTransitioner(newFakeChargeRepo(), newFakeRefundRepo(), &fakePublisher{})

	_, err := tr.Transition(context.Background(), "missing", models.StatusCaptureApproved)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLockForProcessing_ClaimsCharge(t *testing.T) {
	charge := &models.Charge{Status: models.StatusCaptureApproved}
	repo := newFakeChargeRepo(charge)
	tr := newTransitioner(repo, newFakeRefundRepo(), &fakePublisher{})

	got, err := tr.LockForProcessing(context.Background(), charge.ExternalID, OperationCapture)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCaptureReady, got.Status)
}

func TestLockForProcessing_AlreadyInProgress(t *testing.T) {
	charge := &models.Charge{Status: models.StatusCaptureReady}
	repo := newFakeChargeRepo(charge)
	tr := newTransitioner(repo, newFakeRefundRepo(), &fakePublisher{})

	_, err := tr.LockForProcessing(context.Background(), charge.ExternalID, OperationCapture)

	var inProgress *OperationInProgressError
	require.ErrorAs(t, err, &inProgress)
	assert.Equal(t, OperationCapture, inProgress.Op)
}

func TestLockForProcessing_NotClaimable(t *testing.T) {
	charge := &models.Charge{Status: models.StatusCaptured}
	repo := newFakeChargeRepo(charge)
	tr := newTransitioner(repo, newFakeRefundRepo(), &fakePublisher{})

	_, err := tr.LockForProcessing(context.Background(), charge.ExternalID, OperationCapture)

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.StatusCaptured, invalid.From)
}

func TestTransitionRefund(t *testing.T) {
	refund := &models.Refund{Status: models.RefundStatusSubmitted}
	refunds := newFakeRefundRepo(refund)
	pub := &fakePublisher{}
	tr := newTransitioner(newFakeChargeRepo(), refunds, pub)

	err := tr.TransitionRefund(context.Background(), refund, models.RefundStatusRefunded)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusRefunded, refund.Status)
	require.Len(t, pub.refundEvents, 1)
	assert.Equal(t, string(models.RefundStatusRefunded), pub.refundEvents[0].ToStatus)
}

func TestTransitionRefund_Invalid(t *testing.T) {
	refund := &models.Refund{Status: models.RefundStatusRefunded}
	tr := newTransitioner(newFakeChargeRepo(), newFakeRefundRepo(refund), &fakePublisher{})

	err := tr.TransitionRefund(context.Background(), refund, models.RefundStatusCreated)

	var invalid *InvalidRefundTransitionError
	require.ErrorAs(t, err, &invalid)
}
