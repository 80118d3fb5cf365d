package repository

import (
	"context"
	"errors"
	"time"

	"payment-connector/models"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no row matches the lookup key.
	ErrNotFound = errors.New("repository: record not found")
	// ErrConcurrentModification is returned when a status update loses the
	// optimistic-lock race: the row's version changed since it was read.
	ErrConcurrentModification = errors.New("repository: concurrent modification")
)

// ChargeRepository owns durable charge records. UpdateStatus is the
// compare-and-swap primitive every status write goes through: the update
// is guarded by the version read earlier and commits the new status and
// its history event in one transaction.
type ChargeRepository interface {
	Create(ctx context.Context, charge *models.Charge) error
	FindByExternalID(ctx context.Context, externalID string) (*models.Charge, error)
	FindByGatewayTransactionID(ctx context.Context, provider, transactionID string) (*models.Charge, error)
	FindByStatusOlderThan(ctx context.Context, statuses []models.ChargeStatus, cutoff time.Time) ([]models.Charge, error)
	UpdateStatus(ctx context.Context, charge *models.Charge, status models.ChargeStatus) error
	SetGatewayTransactionID(ctx context.Context, charge *models.Charge, transactionID string) error
	CountEvents(ctx context.Context, chargeID int64, status models.ChargeStatus) (int64, error)
}

type gormChargeRepository struct {
	db *gorm.DB
}

func NewGormChargeRepository(db *gorm.DB) ChargeRepository {
	return &gormChargeRepository{db: db}
}

func (r *gormChargeRepository) Create(ctx context.Context, charge *models.Charge) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(charge).Error; err != nil {
			return err
		}
		return tx.Create(&models.ChargeEvent{
			ChargeID:   charge.ID,
			Status:     charge.Status,
			OccurredAt: time.Now().UTC(),
		}).Error
	})
}

func (r *gormChargeRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Charge, error) {
	var charge models.Charge
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&charge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

func (r *gormChargeRepository) FindByGatewayTransactionID(ctx context.Context, provider, transactionID string) (*models.Charge, error) {
	var charge models.Charge
	err := r.db.WithContext(ctx).
		Where("payment_provider = ? AND gateway_transaction_id = ?", provider, transactionID).
		First(&charge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

func (r *gormChargeRepository) FindByStatusOlderThan(ctx context.Context, statuses []models.ChargeStatus, cutoff time.Time) ([]models.Charge, error) {
	var charges []models.Charge
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", statuses, cutoff).
		Find(&charges).Error
	return charges, err
}

// UpdateStatus writes the new status guarded by charge.Version and appends
// the history event in the same transaction. On success the in-memory
// charge is advanced to match the committed row.
func (r *gormChargeRepository) UpdateStatus(ctx context.Context, charge *models.Charge, status models.ChargeStatus) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Charge{}).
			Where("id = ? AND version = ?", charge.ID, charge.Version).
			Updates(map[string]interface{}{
				"status":     status,
				"version":    charge.Version + 1,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentModification
		}
		return tx.Create(&models.ChargeEvent{
			ChargeID:   charge.ID,
			Status:     status,
			OccurredAt: now,
		}).Error
	})
	if err != nil {
		return err
	}
	charge.Status = status
	charge.Version++
	charge.UpdatedAt = now
	return nil
}

// SetGatewayTransactionID records the provider-assigned transaction id,
// guarded by the same version counter as status writes.
func (r *gormChargeRepository) SetGatewayTransactionID(ctx context.Context, charge *models.Charge, transactionID string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Charge{}).
			Where("id = ? AND version = ?", charge.ID, charge.Version).
			Updates(map[string]interface{}{
				"gateway_transaction_id": transactionID,
				"version":                charge.Version + 1,
				"updated_at":             now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentModification
		}
		return nil
	})
	if err != nil {
		return err
	}
	charge.GatewayTransactionID = &transactionID
	charge.Version++
	charge.UpdatedAt = now
	return nil
}

func (r *gormChargeRepository) CountEvents(ctx context.Context, chargeID int64, status models.ChargeStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChargeEvent{}).
		Where("charge_id = ? AND status = ?", chargeID, status).
		Count(&count).Error
	return count, err
}
