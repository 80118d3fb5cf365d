package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefundStatus is the smaller enum tracking a reversal of captured funds.
type RefundStatus string

const (
	RefundStatusCreated   RefundStatus = "CREATED"
	RefundStatusSubmitted RefundStatus = "REFUND_SUBMITTED"
	RefundStatusRefunded  RefundStatus = "REFUNDED"
	RefundStatusError     RefundStatus = "REFUND_ERROR"
)

var AllRefundStatuses = []RefundStatus{
	RefundStatusCreated, RefundStatusSubmitted, RefundStatusRefunded, RefundStatusError,
}

// Refund reverses captured funds for a charge. Reference is the
// provider-assigned correlation key matched against inbound notifications.
type Refund struct {
	ID         int64        `gorm:"primaryKey;autoIncrement"`
	ExternalID string       `gorm:"type:uuid;uniqueIndex;not null"`
	ChargeID   int64        `gorm:"not null;index"`
	Status     RefundStatus `gorm:"type:varchar(32);not null;index"`
	Reference  *string      `gorm:"type:varchar(255);index"`
	Amount     int64        `gorm:"not null"`
	Version    int64        `gorm:"not null;default:0"`
	CreatedAt  time.Time    `gorm:"autoCreateTime"`
	UpdatedAt  time.Time    `gorm:"autoUpdateTime"`
}

func (r *Refund) BeforeCreate(tx *gorm.DB) error {
	if r.ExternalID == "" {
		r.ExternalID = uuid.New().String()
	}
	return nil
}

// RefundEvent mirrors ChargeEvent for the refund lifecycle.
type RefundEvent struct {
	ID         int64        `gorm:"primaryKey;autoIncrement"`
	RefundID   int64        `gorm:"not null;index"`
	Status     RefundStatus `gorm:"type:varchar(32);not null"`
	OccurredAt time.Time    `gorm:"not null"`
}
