package gateway

import (
	"context"
	"strings"
	"sync"

	"payment-connector/models"

	"github.com/google/uuid"
)

const ProviderSandbox = "sandbox"

// Sandbox provider status tokens, consumed by the status mapper.
const (
	SandboxStatusAuthorised = "authorised"
	SandboxStatusCaptured   = "captured"
	SandboxStatusRefunded   = "refunded"
	SandboxStatusCancelled  = "cancelled"
)

// Card numbers with well-known sandbox behaviour.
const (
	sandboxDeclineCard = "4000000000000002"
	sandboxErrorCard   = "4000000000000119"
)

// SandboxConnector is an in-process provider used in test and local
// environments. It approves everything except a couple of magic card
// numbers and remembers transaction state so status queries work.
type SandboxConnector struct {
	mu    sync.Mutex
	state map[string]string // transaction id -> sandbox status token
}

func NewSandboxConnector() *SandboxConnector {
	return &SandboxConnector{state: make(map[string]string)}
}

func (s *SandboxConnector) Provider() string { return ProviderSandbox }

func (s *SandboxConnector) Authorise(ctx context.Context, req AuthoriseRequest) (*AuthoriseResult, error) {
	switch req.Card.CardNumber {
	case sandboxDeclineCard:
		return nil, &Error{Kind: ErrorKindDeclined, Provider: ProviderSandbox, Message: "card declined"}
	case sandboxErrorCard:
		return nil, &Error{Kind: ErrorKindConnection, Provider: ProviderSandbox, Message: "simulated gateway timeout"}
	}
	id, _ := s.GenerateTransactionID()
	s.setState(id, SandboxStatusAuthorised)
	return &AuthoriseResult{TransactionID: id}, nil
}

func (s *SandboxConnector) Capture(ctx context.Context, charge *models.Charge) (*CaptureResult, error) {
	if charge.GatewayTransactionID == nil {
		return nil, &Error{Kind: ErrorKindMalformed, Provider: ProviderSandbox, Message: "missing transaction id"}
	}
	s.setState(*charge.GatewayTransactionID, SandboxStatusCaptured)
	return &CaptureResult{TransactionID: *charge.GatewayTransactionID}, nil
}

func (s *SandboxConnector) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	ref := strings.Replace(uuid.New().String(), "-", "", -1)
	s.setState(req.TransactionID, SandboxStatusRefunded)
	return &RefundResult{Reference: ref}, nil
}

func (s *SandboxConnector) Cancel(ctx context.Context, charge *models.Charge) (*CancelResult, error) {
	if charge.GatewayTransactionID == nil {
		return nil, &Error{Kind: ErrorKindMalformed, Provider: ProviderSandbox, Message: "missing transaction id"}
	}
	s.setState(*charge.GatewayTransactionID, SandboxStatusCancelled)
	return &CancelResult{TransactionID: *charge.GatewayTransactionID}, nil
}

func (s *SandboxConnector) QueryStatus(ctx context.Context, charge *models.Charge) (string, error) {
	if charge.GatewayTransactionID == nil {
		return "", &Error{Kind: ErrorKindMalformed, Provider: ProviderSandbox, Message: "missing transaction id"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.state[*charge.GatewayTransactionID]
	if !ok {
		return "", &Error{Kind: ErrorKindMalformed, Provider: ProviderSandbox, Message: "unknown transaction"}
	}
	return status, nil
}

func (s *SandboxConnector) SupportsStatusQuery() bool { return true }

func (s *SandboxConnector) GenerateTransactionID() (string, bool) {
	return "sandbox-" + uuid.New().String(), true
}

func (s *SandboxConnector) setState(id, status string) {
	s.mu.Lock()
	s.state[id] = status
	s.mu.Unlock()
}
