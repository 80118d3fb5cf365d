package services

import (
	"context"
	"time"

	"payment-connector/models"
	"payment-connector/repository"

	"go.uber.org/zap"
)

// expirableStatuses are the pre-capture statuses a stale charge can sit
// in. Anything that already reached the gateway goes through the
// expire-cancel branch so the authorisation is released remotely.
var expirableLocal = []models.ChargeStatus{
	models.StatusCreated,
	models.StatusEnteringCardDetails,
}

var expirableRemote = []models.ChargeStatus{
	models.StatusAuthorisationSuccess,
	models.StatusAuthorisation3DSRequired,
}

// ExpirySweeper periodically expires charges that were never completed.
type ExpirySweeper struct {
	charges      repository.ChargeRepository
	transitioner Transitioner
	chargeTTL    time.Duration
	interval     time.Duration
	logger       *zap.Logger
}

func NewExpirySweeper(
	charges repository.ChargeRepository,
	transitioner Transitioner,
	chargeTTL, interval time.Duration,
	logger *zap.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		charges:      charges,
		transitioner: transitioner,
		chargeTTL:    chargeTTL,
		interval:     interval,
		logger:       logger,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires every stale charge it can. Individual failures are
// logged and skipped; the sweep itself never fails.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.chargeTTL)

	local, err := s.charges.FindByStatusOlderThan(ctx, expirableLocal, cutoff)
	if err != nil {
		s.logger.Error("expiry sweep query failed", zap.Error(err))
		return
	}
	for i := range local {
		s.expire(ctx, &local[i], models.StatusExpired)
	}

	remote, err := s.charges.FindByStatusOlderThan(ctx, expirableRemote, cutoff)
	if err != nil {
		s.logger.Error("expiry sweep query failed", zap.Error(err))
		return
	}
	for i := range remote {
		s.expire(ctx, &remote[i], models.StatusExpireCancelReady)
	}
}

func (s *ExpirySweeper) expire(ctx context.Context, charge *models.Charge, target models.ChargeStatus) {
	if err := s.transitioner.Apply(ctx, charge, target); err != nil {
		// Lost races and concurrent completions are routine here.
		s.logger.Info("charge expiry skipped",
			zap.String("charge_id", charge.ExternalID),
			zap.String("status", string(charge.Status)),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("charge expired",
		zap.String("charge_id", charge.ExternalID),
		zap.String("to", string(target)),
	)
}
