package gateway

import (
	"context"
	"errors"

	"payment-connector/models"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/paymentmethod"
	"github.com/stripe/stripe-go/v80/refund"
	"go.uber.org/zap"
)

const ProviderStripe = "stripe"

// StripeConnector drives the Stripe PaymentIntents and Refunds APIs.
// Authorisation creates a manually-captured intent so that capture stays
// a separate, queue-driven step.
type StripeConnector struct {
	logger *zap.Logger
}

func NewStripeConnector(secretKey string, logger *zap.Logger) *StripeConnector {
	stripe.Key = secretKey
	return &StripeConnector{logger: logger}
}

func (s *StripeConnector) Provider() string { return ProviderStripe }

func (s *StripeConnector) Authorise(ctx context.Context, req AuthoriseRequest) (*AuthoriseResult, error) {
	pmParams := &stripe.PaymentMethodParams{
		Type: stripe.String("card"),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(req.Card.CardNumber),
			ExpMonth: stripe.Int64(req.Card.ExpiryMonth),
			ExpYear:  stripe.Int64(req.Card.ExpiryYear),
			CVC:      stripe.String(req.Card.CVC),
		},
	}
	pmParams.Context = ctx
	pm, err := paymentmethod.New(pmParams)
	if err != nil {
		return nil, s.wrap("create payment method", err)
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		Description:   stripe.String(req.Description),
		PaymentMethod: stripe.String(pm.ID),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
	}
	piParams.Context = ctx
	piParams.AddMetadata("charge_external_id", req.ChargeExternalID)
	pi, err := paymentintent.New(piParams)
	if err != nil {
		return nil, s.wrap("confirm payment intent", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return &AuthoriseResult{TransactionID: pi.ID}, nil
	case stripe.PaymentIntentStatusRequiresAction:
		return &AuthoriseResult{TransactionID: pi.ID, RequiresThreeDS: true}, nil
	default:
		return nil, &Error{
			Kind:     ErrorKindMalformed,
			Provider: ProviderStripe,
			Message:  "unexpected payment intent status " + string(pi.Status),
		}
	}
}

func (s *StripeConnector) Capture(ctx context.Context, charge *models.Charge) (*CaptureResult, error) {
	if charge.GatewayTransactionID == nil {
		return nil, &Error{
			Kind:     ErrorKindMalformed,
			Provider: ProviderStripe,
			Message:  "charge " + charge.ExternalID + " has no gateway transaction id",
		}
	}
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	pi, err := paymentintent.Capture(*charge.GatewayTransactionID, params)
	if err != nil {
		return nil, s.wrap("capture", err)
	}
	return &CaptureResult{TransactionID: pi.ID}, nil
}

func (s *StripeConnector) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.TransactionID),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx
	params.AddMetadata("refund_external_id", req.RefundExternalID)
	r, err := refund.New(params)
	if err != nil {
		return nil, s.wrap("refund", err)
	}
	return &RefundResult{Reference: r.ID}, nil
}

func (s *StripeConnector) Cancel(ctx context.Context, charge *models.Charge) (*CancelResult, error) {
	if charge.GatewayTransactionID == nil {
		return nil, &Error{
			Kind:     ErrorKindMalformed,
			Provider: ProviderStripe,
			Message:  "charge " + charge.ExternalID + " has no gateway transaction id",
		}
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	pi, err := paymentintent.Cancel(*charge.GatewayTransactionID, params)
	if err != nil {
		return nil, s.wrap("cancel", err)
	}
	return &CancelResult{TransactionID: pi.ID}, nil
}

func (s *StripeConnector) QueryStatus(ctx context.Context, charge *models.Charge) (string, error) {
	if charge.GatewayTransactionID == nil {
		return "", &Error{
			Kind:     ErrorKindMalformed,
			Provider: ProviderStripe,
			Message:  "charge " + charge.ExternalID + " has no gateway transaction id",
		}
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(*charge.GatewayTransactionID, params)
	if err != nil {
		return "", s.wrap("query status", err)
	}
	return string(pi.Status), nil
}

func (s *StripeConnector) SupportsStatusQuery() bool { return true }

// GenerateTransactionID is not supported: Stripe assigns intent ids
// server-side.
func (s *StripeConnector) GenerateTransactionID() (string, bool) { return "", false }

// wrap converts a stripe-go error into the connector error taxonomy.
func (s *StripeConnector) wrap(op string, err error) error {
	kind := ErrorKindConnection
	var se *stripe.Error
	if errors.As(err, &se) {
		switch se.Type {
		case stripe.ErrorTypeCard:
			kind = ErrorKindDeclined
		case stripe.ErrorTypeInvalidRequest:
			kind = ErrorKindMalformed
		}
	}
	s.logger.Warn("stripe call failed",
		zap.String("op", op),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return &Error{Kind: kind, Provider: ProviderStripe, Message: op + " failed", Err: err}
}
