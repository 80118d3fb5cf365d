package repository

import (
	"context"
	"errors"
	"time"

	"payment-connector/models"

	"gorm.io/gorm"
)

// RefundRepository mirrors ChargeRepository for refund records, with the
// same compare-and-swap discipline over the refund version counter.
type RefundRepository interface {
	Create(ctx context.Context, refund *models.Refund) error
	FindByExternalID(ctx context.Context, externalID string) (*models.Refund, error)
	FindByReference(ctx context.Context, reference string) (*models.Refund, error)
	UpdateStatus(ctx context.Context, refund *models.Refund, status models.RefundStatus) error
	SetReference(ctx context.Context, refund *models.Refund, reference string) error
}

type gormRefundRepository struct {
	db *gorm.DB
}

func NewGormRefundRepository(db *gorm.DB) RefundRepository {
	return &gormRefundRepository{db: db}
}

func (r *gormRefundRepository) Create(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(refund).Error; err != nil {
			return err
		}
		return tx.Create(&models.RefundEvent{
			RefundID:   refund.ID,
			Status:     refund.Status,
			OccurredAt: time.Now().UTC(),
		}).Error
	})
}

func (r *gormRefundRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&refund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *gormRefundRepository) FindByReference(ctx context.Context, reference string) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&refund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *gormRefundRepository) UpdateStatus(ctx context.Context, refund *models.Refund, status models.RefundStatus) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Refund{}).
			Where("id = ? AND version = ?", refund.ID, refund.Version).
			Updates(map[string]interface{}{
				"status":     status,
				"version":    refund.Version + 1,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentModification
		}
		return tx.Create(&models.RefundEvent{
			RefundID:   refund.ID,
			Status:     status,
			OccurredAt: now,
		}).Error
	})
	if err != nil {
		return err
	}
	refund.Status = status
	refund.Version++
	refund.UpdatedAt = now
	return nil
}

func (r *gormRefundRepository) SetReference(ctx context.Context, refund *models.Refund, reference string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Refund{}).
			Where("id = ? AND version = ?", refund.ID, refund.Version).
			Updates(map[string]interface{}{
				"reference":  reference,
				"version":    refund.Version + 1,
				"updated_at": now,
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
	refund.Reference = &reference
	refund.Version++
	refund.UpdatedAt = now
	return nil
}
