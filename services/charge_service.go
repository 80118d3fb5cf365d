package services

import (
	"context"
	"errors"
	"fmt"

	"payment-connector/gateway"
	"payment-connector/models"
	"payment-connector/repository"

	"go.uber.org/zap"
)

// CaptureEnqueuer hands a capture-eligible charge to the durable work
// queue. Enqueued exactly once per approval; the queue's at-least-once
// delivery takes over from there.
type CaptureEnqueuer interface {
	EnqueueCapture(ctx context.Context, chargeExternalID string) error
}

type CreateChargeRequest struct {
	Amount      int64
	Currency    string
	Provider    string
	Description string
	ReturnURL   string
}

// ChargeService orchestrates charge creation, authorisation, capture
// approval, cancellation and refund submission. Every status write goes
// through the transitioner; this service only sequences gateway calls
// around those writes.
type ChargeService struct {
	charges      repository.ChargeRepository
	refunds      repository.RefundRepository
	transitioner Transitioner
	registry     *gateway.Registry
	enqueuer     CaptureEnqueuer
	logger       *zap.Logger
}

func NewChargeService(
	charges repository.ChargeRepository,
	refunds repository.RefundRepository,
	transitioner Transitioner,
	registry *gateway.Registry,
	enqueuer CaptureEnqueuer,
	logger *zap.Logger,
) *ChargeService {
	return &ChargeService{
		charges:      charges,
		refunds:      refunds,
		transitioner: transitioner,
		registry:     registry,
		enqueuer:     enqueuer,
		logger:       logger,
	}
}

// Create persists a new charge in CREATED. Providers that mint
// transaction ids client-side get one assigned immediately.
func (s *ChargeService) Create(ctx context.Context, req CreateChargeRequest) (*models.Charge, error) {
	connector, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("charge amount must be positive")
	}

	charge := &models.Charge{
		Status:          models.StatusCreated,
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaymentProvider: req.Provider,
		Description:     req.Description,
		ReturnURL:       req.ReturnURL,
	}
	if id, ok := connector.GenerateTransactionID(); ok {
		charge.GatewayTransactionID = &id
	}
	if err := s.charges.Create(ctx, charge); err != nil {
		return nil, err
	}
	s.logger.Info("charge created",
		zap.String("charge_id", charge.ExternalID),
		zap.String("provider", req.Provider),
		zap.Int64("amount", req.Amount),
	)
	return charge, nil
}

// Authorise runs the single authorisation flow for any payment method:
// the caller has already converted wallet payloads into plain card
// details, so the connector choice is the only per-provider variation.
func (s *ChargeService) Authorise(ctx context.Context, chargeExternalID string, card gateway.AuthCardDetails) (*models.Charge, error) {
	charge, err := s.charges.FindByExternalID(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	connector, err := s.registry.Get(charge.PaymentProvider)
	if err != nil {
		return nil, err
	}

	if charge.Status == models.StatusCreated {
		if err := s.transitioner.Apply(ctx, charge, models.StatusEnteringCardDetails); err != nil {
			return nil, err
		}
	}

	charge, err = s.transitioner.LockForProcessing(ctx, chargeExternalID, OperationAuthorisation)
	if err != nil {
		return nil, err
	}

	result, err := connector.Authorise(ctx, gateway.AuthoriseRequest{
		ChargeExternalID: charge.ExternalID,
		Amount:           charge.Amount,
		Currency:         charge.Currency,
		Description:      charge.Description,
		Card:             card,
	})
	if err != nil {
		return charge, s.recordAuthorisationFailure(ctx, charge, err)
	}

	if charge.GatewayTransactionID == nil && result.TransactionID != "" {
		if err := s.charges.SetGatewayTransactionID(ctx, charge, result.TransactionID); err != nil {
			return charge, err
		}
	}

	target := models.StatusAuthorisationSuccess
	if result.RequiresThreeDS {
		target = models.StatusAuthorisation3DSRequired
	}
	if err := s.transitioner.Apply(ctx, charge, target); err != nil {
		return charge, err
	}
	return charge, nil
}

// ThreeDSResult is the outcome the provider reports when the cardholder
// returns from a 3-D Secure challenge.
type ThreeDSResult string

const (
	ThreeDSAuthorised ThreeDSResult = "authorised"
	ThreeDSDeclined   ThreeDSResult = "declined"
	ThreeDSError      ThreeDSResult = "error"
)

// Complete3DS records the challenge outcome for a charge waiting on
// 3-D Secure. The result arrives on the cardholder's return redirect; a
// provider notification carrying the same outcome later lands as a
// duplicate and is skipped by the reconciler.
func (s *ChargeService) Complete3DS(ctx context.Context, chargeExternalID string, result ThreeDSResult) (*models.Charge, error) {
	charge, err := s.charges.FindByExternalID(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}

	// The READY marker claims the charge; a second concurrent completion
	// fails here with an invalid-transition conflict.
	if err := s.transitioner.Apply(ctx, charge, models.StatusAuthorisation3DSReady); err != nil {
		return nil, err
	}

	target := models.StatusAuthorisationError
	switch result {
	case ThreeDSAuthorised:
		target = models.StatusAuthorisationSuccess
	case ThreeDSDeclined:
		target = models.StatusAuthorisationRejected
	}
	if err := s.transitioner.Apply(ctx, charge, target); err != nil {
		return charge, err
	}
	return charge, nil
}

func (s *ChargeService) recordAuthorisationFailure(ctx context.Context, charge *models.Charge, cause error) error {
	target := models.StatusAuthorisationError
	var ge *gateway.Error
	if errors.As(cause, &ge) && ge.Kind == gateway.ErrorKindDeclined {
		target = models.StatusAuthorisationRejected
	}
	if err := s.transitioner.Apply(ctx, charge, target); err != nil {
		s.logger.Error("failed to record authorisation outcome",
			zap.String("charge_id", charge.ExternalID), zap.Error(err))
	}
	return cause
}

// ApproveCapture marks an authorised charge as capture-eligible and hands
// it to the capture queue. The enqueue happens after the status commit:
// if it fails the charge stays CAPTURE_APPROVED and a reconciliation
// sweep can re-enqueue it.
func (s *ChargeService) ApproveCapture(ctx context.Context, chargeExternalID string) (*models.Charge, error) {
	charge, err := s.transitioner.Transition(ctx, chargeExternalID, models.StatusCaptureApproved)
	if err != nil {
		return nil, err
	}
	if err := s.enqueuer.EnqueueCapture(ctx, charge.ExternalID); err != nil {
		s.logger.Error("capture enqueue failed, charge remains capture-approved",
			zap.String("charge_id", charge.ExternalID), zap.Error(err))
		return charge, err
	}
	return charge, nil
}

// Cancel drives the user- or system-initiated cancel branch. Charges that
// never reached the gateway are cancelled locally; authorised charges go
// through the connector first.
func (s *ChargeService) Cancel(ctx context.Context, chargeExternalID string, userInitiated bool) (*models.Charge, error) {
	charge, err := s.charges.FindByExternalID(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}

	ready, submitted, done, failed := cancelStatuses(userInitiated)

	// Pre-gateway charges have nothing to cancel remotely.
	if charge.Status == models.StatusCreated || charge.Status == models.StatusEnteringCardDetails {
		if err := s.transitioner.Apply(ctx, charge, models.StatusSystemCancelled); err != nil {
			return nil, err
		}
		return charge, nil
	}

	if err := s.transitioner.Apply(ctx, charge, ready); err != nil {
		return nil, err
	}
	connector, err := s.registry.Get(charge.PaymentProvider)
	if err != nil {
		return nil, err
	}
	if err := s.transitioner.Apply(ctx, charge, submitted); err != nil {
		return nil, err
	}
	if _, err := connector.Cancel(ctx, charge); err != nil {
		if applyErr := s.transitioner.Apply(ctx, charge, failed); applyErr != nil {
			s.logger.Error("failed to record cancel outcome",
				zap.String("charge_id", charge.ExternalID), zap.Error(applyErr))
		}
		return charge, err
	}
	if err := s.transitioner.Apply(ctx, charge, done); err != nil {
		return charge, err
	}
	return charge, nil
}

func cancelStatuses(userInitiated bool) (ready, submitted, done, failed models.ChargeStatus) {
	if userInitiated {
		return models.StatusUserCancelReady, models.StatusUserCancelSubmitted,
			models.StatusUserCancelled, models.StatusUserCancelError
	}
	return models.StatusSystemCancelReady, models.StatusSystemCancelSubmitted,
		models.StatusSystemCancelled, models.StatusSystemCancelError
}

// SubmitRefund creates a refund for a captured charge and submits it to
// the gateway. The provider-assigned reference is stored for notification
// correlation before the refund is marked submitted.
func (s *ChargeService) SubmitRefund(ctx context.Context, chargeExternalID string, amount int64) (*models.Refund, error) {
	charge, err := s.charges.FindByExternalID(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	if charge.Status != models.StatusCaptured {
		return nil, fmt.Errorf("charge %s is %s, only captured charges can be refunded",
			charge.ExternalID, charge.Status)
	}
	if amount <= 0 || amount > charge.Amount {
		return nil, fmt.Errorf("refund amount %d out of range for charge %s", amount, charge.ExternalID)
	}
	connector, err := s.registry.Get(charge.PaymentProvider)
	if err != nil {
		return nil, err
	}

	refund := &models.Refund{
		ChargeID: charge.ID,
		Status:   models.RefundStatusCreated,
		Amount:   amount,
	}
	if err := s.refunds.Create(ctx, refund); err != nil {
		return nil, err
	}

	result, err := connector.Refund(ctx, gateway.RefundRequest{
		RefundExternalID: refund.ExternalID,
		TransactionID:    deref(charge.GatewayTransactionID),
		Amount:           amount,
	})
	if err != nil {
		if applyErr := s.transitioner.TransitionRefund(ctx, refund, models.RefundStatusError); applyErr != nil {
			s.logger.Error("failed to record refund failure",
				zap.String("refund_id", refund.ExternalID), zap.Error(applyErr))
		}
		return refund, err
	}

	if err := s.refunds.SetReference(ctx, refund, result.Reference); err != nil {
		return refund, err
	}
	if err := s.transitioner.TransitionRefund(ctx, refund, models.RefundStatusSubmitted); err != nil {
		return refund, err
	}
	return refund, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
