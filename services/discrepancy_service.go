package services

import (
	"context"
	"errors"

	"payment-connector/gateway"
	"payment-connector/models"
	"payment-connector/repository"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrStatusUndetermined means the gateway's answer could not be turned
// into an internal status: the connector does not support polling, the
// call failed, or the token did not map. Reconciliation sweeps record it
// and keep going.
var ErrStatusUndetermined = errors.New("gateway status could not be determined")

// Discrepancy is one comparison between the stored status and the
// gateway's authoritative answer.
type Discrepancy struct {
	ChargeExternalID string              `json:"charge_id"`
	StoredStatus     models.ChargeStatus `json:"stored_status"`
	GatewayStatus    models.ChargeStatus `json:"gateway_status,omitempty"`
	ProviderToken    string              `json:"provider_token,omitempty"`
	Determined       bool                `json:"determined"`
	Matches          bool                `json:"matches"`
	Resolved         bool                `json:"resolved,omitempty"`
}

// DiscrepancyService actively polls the gateway for a charge's true
// status. Report mode only compares; Resolve mode feeds the answer
// through the same transitioner path the notification reconciler uses.
type DiscrepancyService struct {
	charges      repository.ChargeRepository
	registry     *gateway.Registry
	mapper       *StatusMapper
	transitioner Transitioner
	limiter      *rate.Limiter
	logger       *zap.Logger
}

func NewDiscrepancyService(
	charges repository.ChargeRepository,
	registry *gateway.Registry,
	mapper *StatusMapper,
	transitioner Transitioner,
	pollsPerSecond float64,
	logger *zap.Logger,
) *DiscrepancyService {
	return &DiscrepancyService{
		charges:      charges,
		registry:     registry,
		mapper:       mapper,
		transitioner: transitioner,
		limiter:      rate.NewLimiter(rate.Limit(pollsPerSecond), 1),
		logger:       logger,
	}
}

// QueryTrueStatus asks the charge's gateway for its authoritative status
// and maps it into the internal enum.
func (s *DiscrepancyService) QueryTrueStatus(ctx context.Context, charge *models.Charge) (models.ChargeStatus, string, error) {
	connector, err := s.registry.Get(charge.PaymentProvider)
	if err != nil {
		return "", "", err
	}
	if !connector.SupportsStatusQuery() {
		return "", "", gateway.ErrStatusQueryUnsupported
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", "", err
	}
	token, err := connector.QueryStatus(ctx, charge)
	if err != nil {
		return "", "", err
	}

	mapping := s.mapper.Map(charge.PaymentProvider, token)
	if mapping.Kind != MappingCharge {
		return "", token, ErrStatusUndetermined
	}
	return mapping.ChargeStatus, token, nil
}

// Report compares each charge against the gateway without writing
// anything. One transaction's failed lookup never aborts the sweep.
func (s *DiscrepancyService) Report(ctx context.Context, externalIDs []string) []Discrepancy {
	return s.sweep(ctx, externalIDs, false)
}

// Resolve is Report plus correction: where the gateway disagrees with the
// store, the queried status is applied through the transitioner, which
// rejects anything the transition table does not allow.
func (s *DiscrepancyService) Resolve(ctx context.Context, externalIDs []string) []Discrepancy {
	return s.sweep(ctx, externalIDs, true)
}

func (s *DiscrepancyService) sweep(ctx context.Context, externalIDs []string, resolve bool) []Discrepancy {
	out := make([]Discrepancy, 0, len(externalIDs))
	for _, id := range externalIDs {
		charge, err := s.charges.FindByExternalID(ctx, id)
		if err != nil {
			s.logger.Warn("discrepancy sweep: charge lookup failed",
				zap.String("charge_id", id), zap.Error(err))
			out = append(out, Discrepancy{ChargeExternalID: id})
			continue
		}

		d := Discrepancy{ChargeExternalID: id, StoredStatus: charge.Status}
		gatewayStatus, token, err := s.QueryTrueStatus(ctx, charge)
		d.ProviderToken = token
		if err != nil {
			s.logger.Info("discrepancy sweep: status undetermined",
				zap.String("charge_id", id),
				zap.String("provider", charge.PaymentProvider),
				zap.Error(err),
			)
			out = append(out, d)
			continue
		}

		d.Determined = true
		d.GatewayStatus = gatewayStatus
		d.Matches = gatewayStatus == charge.Status

		if resolve && !d.Matches {
			d.Resolved = s.apply(ctx, charge, gatewayStatus)
		}
		out = append(out, d)
	}
	return out
}

func (s *DiscrepancyService) apply(ctx context.Context, charge *models.Charge, target models.ChargeStatus) bool {
	err := s.transitioner.Apply(ctx, charge, target)
	if err == nil {
		s.logger.Info("discrepancy resolved",
			zap.String("charge_id", charge.ExternalID),
			zap.String("to", string(target)),
		)
		return true
	}

	var invalid *InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		s.logger.Error("discrepancy resolution produced illegal transition",
			zap.String("charge_id", charge.ExternalID),
			zap.String("from", string(invalid.From)),
			zap.String("to", string(invalid.To)),
		)
	case errors.Is(err, repository.ErrConcurrentModification):
		s.logger.Info("discrepancy resolution lost update race",
			zap.String("charge_id", charge.ExternalID))
	default:
		s.logger.Error("discrepancy resolution failed",
			zap.String("charge_id", charge.ExternalID), zap.Error(err))
	}
	return false
}
