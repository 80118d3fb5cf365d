package services

import (
	"context"
	"errors"

	"payment-connector/models"
	"payment-connector/repository"

	"go.uber.org/zap"
)

// NotificationReconciler ingests provider-pushed status updates and
// applies them to the stored charge/refund lifecycle. The boolean result
// means "processed to completion": false only for a failed origin check.
// Malformed payloads are accepted and dropped so the provider does not
// redeliver them forever.
type NotificationReconciler struct {
	charges      repository.ChargeRepository
	refunds      repository.RefundRepository
	transitioner Transitioner
	mapper       *StatusMapper
	parsers      map[string]NotificationParser
	verifier     *SourceVerifier
	logger       *zap.Logger
}

func NewNotificationReconciler(
	charges repository.ChargeRepository,
	refunds repository.RefundRepository,
	transitioner Transitioner,
	mapper *StatusMapper,
	verifier *SourceVerifier,
	logger *zap.Logger,
	parsers ...NotificationParser,
) *NotificationReconciler {
	byProvider := make(map[string]NotificationParser, len(parsers))
	for _, p := range parsers {
		byProvider[p.Provider()] = p
	}
	return &NotificationReconciler{
		charges:      charges,
		refunds:      refunds,
		transitioner: transitioner,
		mapper:       mapper,
		parsers:      byProvider,
		verifier:     verifier,
		logger:       logger,
	}
}

// Handle processes one inbound notification payload.
func (r *NotificationReconciler) Handle(ctx context.Context, sourceAddress, provider string, raw []byte) bool {
	if r.verifier.Required(provider) && !r.verifier.Allowed(ctx, provider, sourceAddress) {
		r.logger.Warn("notification rejected: source not allow-listed",
			zap.String("provider", provider),
			zap.String("source", sourceAddress),
		)
		return false
	}

	parser, ok := r.parsers[provider]
	if !ok {
		r.logger.Warn("notification for unconfigured provider dropped",
			zap.String("provider", provider))
		return true
	}

	notifications, err := parser.Parse(raw)
	if err != nil {
		// Accept and drop: redelivering an unparsable payload will never
		// succeed, so acknowledging is the only terminal outcome.
		r.logger.Error("notification payload unparsable, dropping",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return true
	}

	for _, n := range notifications {
		r.process(ctx, provider, n)
	}
	return true
}

func (r *NotificationReconciler) process(ctx context.Context, provider string, n models.Notification) {
	mapping := r.mapper.Map(provider, n.ProviderStatus)
	switch mapping.Kind {
	case MappingIgnored:
		return
	case MappingUnknown:
		r.logger.Warn("unknown provider status token",
			zap.String("provider", provider),
			zap.String("status", n.ProviderStatus),
			zap.String("transaction_id", n.TransactionID),
		)
		return
	case MappingCharge:
		r.applyToCharge(ctx, provider, n, mapping.ChargeStatus)
	case MappingRefund:
		r.applyToRefund(ctx, provider, n, mapping.RefundStatus)
	}
}

func (r *NotificationReconciler) applyToCharge(ctx context.Context, provider string, n models.Notification, target models.ChargeStatus) {
	charge, err := r.charges.FindByGatewayTransactionID(ctx, provider, n.TransactionID)
	if errors.Is(err, repository.ErrNotFound) {
		// Not an error here: the record may belong to another environment
		// or may not have been persisted yet.
		r.logger.Info("notification for unknown transaction skipped",
			zap.String("provider", provider),
			zap.String("transaction_id", n.TransactionID),
		)
		return
	}
	if err != nil {
		r.logger.Error("charge lookup failed",
			zap.String("transaction_id", n.TransactionID), zap.Error(err))
		return
	}

	if charge.Status == target {
		r.logger.Debug("duplicate notification, charge already in target status",
			zap.String("charge_id", charge.ExternalID),
			zap.String("status", string(target)),
		)
		return
	}

	err = r.transitioner.Apply(ctx, charge, target)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrConcurrentModification):
		// Lost the race against another writer; its outcome stands.
		r.logger.Info("notification dropped after concurrent update",
			zap.String("charge_id", charge.ExternalID))
	default:
		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) {
			// Notification sources ignore backpressure, so failing closed
			// on an out-of-order move is not viable. Log and move on.
			r.logger.Error("notification produced illegal transition",
				zap.String("charge_id", charge.ExternalID),
				zap.String("from", string(invalid.From)),
				zap.String("to", string(invalid.To)),
			)
			return
		}
		r.logger.Error("notification transition failed",
			zap.String("charge_id", charge.ExternalID), zap.Error(err))
	}
}

func (r *NotificationReconciler) applyToRefund(ctx context.Context, provider string, n models.Notification, target models.RefundStatus) {
	refund, err := r.refunds.FindByReference(ctx, n.TransactionID)
	if errors.Is(err, repository.ErrNotFound) {
		r.logger.Info("notification for unknown refund reference skipped",
			zap.String("provider", provider),
			zap.String("reference", n.TransactionID),
		)
		return
	}
	if err != nil {
		r.logger.Error("refund lookup failed",
			zap.String("reference", n.TransactionID), zap.Error(err))
		return
	}

	if refund.Status == target {
		r.logger.Debug("duplicate notification, refund already in target status",
			zap.String("refund_id", refund.ExternalID),
			zap.String("status", string(target)),
		)
		return
	}

	err = r.transitioner.TransitionRefund(ctx, refund, target)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrConcurrentModification):
		r.logger.Info("refund notification dropped after concurrent update",
			zap.String("refund_id", refund.ExternalID))
	default:
		var invalid *InvalidRefundTransitionError
		if errors.As(err, &invalid) {
			r.logger.Error("refund notification produced illegal transition",
				zap.String("refund_id", refund.ExternalID),
				zap.String("from", string(invalid.From)),
				zap.String("to", string(invalid.To)),
			)
			return
		}
		r.logger.Error("refund notification transition failed",
			zap.String("refund_id", refund.ExternalID), zap.Error(err))
	}
}
