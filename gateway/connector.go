package gateway

import (
	"context"
	"errors"
	"fmt"

	"payment-connector/models"
)

// ErrorKind classifies a gateway failure for retry decisions.
type ErrorKind string

const (
	// ErrorKindConnection covers timeouts and transport faults. Retryable.
	ErrorKindConnection ErrorKind = "connection"
	// ErrorKindDeclined is a business-level refusal. Terminal for the attempt.
	ErrorKindDeclined ErrorKind = "declined"
	// ErrorKindMalformed means the provider answered with something we could
	// not interpret. Treated as connection-class: these usually indicate
	// transient provider issues.
	ErrorKindMalformed ErrorKind = "malformed"
)

// Error is the error type returned by every connector operation.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt.
func (e *Error) Retryable() bool { return e.Kind != ErrorKindDeclined }

// IsRetryable reports whether err is a gateway error that a retry could
// resolve. Non-gateway errors are not retried on the gateway's account.
func IsRetryable(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Retryable()
	}
	return false
}

// ErrStatusQueryUnsupported is returned by connectors that cannot report
// the authoritative status of a transaction on demand. Callers skip such
// connectors during reconciliation sweeps.
var ErrStatusQueryUnsupported = errors.New("gateway: status query not supported")

// AuthCardDetails is the card input a connector needs to authorise.
// Wallet payload decryption happens outside this module; by the time a
// request reaches a connector it is plain card details.
type AuthCardDetails struct {
	CardNumber     string
	CVC            string
	ExpiryMonth    int64
	ExpiryYear     int64
	CardholderName string
}

type AuthoriseRequest struct {
	ChargeExternalID string
	Amount           int64
	Currency         string
	Description      string
	Card             AuthCardDetails
}

type AuthoriseResult struct {
	TransactionID   string
	RequiresThreeDS bool
}

type CaptureResult struct {
	TransactionID string
}

type RefundRequest struct {
	RefundExternalID string
	TransactionID    string
	Amount           int64
}

type RefundResult struct {
	// Reference is the provider-assigned refund identifier, stored on the
	// refund row and matched against inbound notifications.
	Reference string
}

type CancelResult struct {
	TransactionID string
}

// Connector is the pluggable adapter to one payment service provider.
// Implementations own the provider's wire protocol; everything above this
// interface is provider-agnostic.
type Connector interface {
	Provider() string

	Authorise(ctx context.Context, req AuthoriseRequest) (*AuthoriseResult, error)
	Capture(ctx context.Context, charge *models.Charge) (*CaptureResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	Cancel(ctx context.Context, charge *models.Charge) (*CancelResult, error)

	// QueryStatus returns the provider's own status token for the
	// transaction, or ErrStatusQueryUnsupported.
	QueryStatus(ctx context.Context, charge *models.Charge) (string, error)
	SupportsStatusQuery() bool

	// GenerateTransactionID mints a provider transaction id up front where
	// the provider allows client-side ids. ok is false otherwise.
	GenerateTransactionID() (id string, ok bool)
}

// Registry resolves a connector by provider name.
type Registry struct {
	connectors map[string]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Provider()] = c
	}
	return r
}

func (r *Registry) Get(provider string) (Connector, error) {
	c, ok := r.connectors[provider]
	if !ok {
		return nil, fmt.Errorf("no gateway connector registered for provider %q", provider)
	}
	return c, nil
}

func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.connectors))
	for p := range r.connectors {
		out = append(out, p)
	}
	return out
}
