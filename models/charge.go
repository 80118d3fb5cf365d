package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChargeStatus values are wire-stable: they are persisted in history rows
// and reported externally, so renaming one is a breaking change.
type ChargeStatus string

const (
	StatusCreated             ChargeStatus = "CREATED"
	StatusEnteringCardDetails ChargeStatus = "ENTERING_CARD_DETAILS"

	StatusAuthorisationReady       ChargeStatus = "AUTHORISATION_READY"
	StatusAuthorisationSuccess     ChargeStatus = "AUTHORISATION_SUCCESS"
	StatusAuthorisationRejected    ChargeStatus = "AUTHORISATION_REJECTED"
	StatusAuthorisationError       ChargeStatus = "AUTHORISATION_ERROR"
	StatusAuthorisation3DSRequired ChargeStatus = "AUTHORISATION_3DS_REQUIRED"
	StatusAuthorisation3DSReady    ChargeStatus = "AUTHORISATION_3DS_READY"

	StatusCaptureApproved      ChargeStatus = "CAPTURE_APPROVED"
	StatusCaptureApprovedRetry ChargeStatus = "CAPTURE_APPROVED_RETRY"
	StatusCaptureReady         ChargeStatus = "CAPTURE_READY"
	StatusCaptureSubmitted     ChargeStatus = "CAPTURE_SUBMITTED"
	StatusCaptured             ChargeStatus = "CAPTURED"
	StatusCaptureError         ChargeStatus = "CAPTURE_ERROR"

	StatusExpireCancelReady     ChargeStatus = "EXPIRE_CANCEL_READY"
	StatusExpireCancelSubmitted ChargeStatus = "EXPIRE_CANCEL_SUBMITTED"
	StatusExpireCancelFailed    ChargeStatus = "EXPIRE_CANCEL_FAILED"
	StatusExpired               ChargeStatus = "EXPIRED"

	StatusSystemCancelReady     ChargeStatus = "SYSTEM_CANCEL_READY"
	StatusSystemCancelSubmitted ChargeStatus = "SYSTEM_CANCEL_SUBMITTED"
	StatusSystemCancelError     ChargeStatus = "SYSTEM_CANCEL_ERROR"
	StatusSystemCancelled       ChargeStatus = "SYSTEM_CANCELLED"

	StatusUserCancelReady     ChargeStatus = "USER_CANCEL_READY"
	StatusUserCancelSubmitted ChargeStatus = "USER_CANCEL_SUBMITTED"
	StatusUserCancelError     ChargeStatus = "USER_CANCEL_ERROR"
	StatusUserCancelled       ChargeStatus = "USER_CANCELLED"
)

// AllChargeStatuses lists every member of the charge status enum.
// Used by the transition-table closure test and by AutoMigrate checks.
var AllChargeStatuses = []ChargeStatus{
	StatusCreated, StatusEnteringCardDetails,
	StatusAuthorisationReady, StatusAuthorisationSuccess, StatusAuthorisationRejected,
	StatusAuthorisationError, StatusAuthorisation3DSRequired, StatusAuthorisation3DSReady,
	StatusCaptureApproved, StatusCaptureApprovedRetry, StatusCaptureReady,
	StatusCaptureSubmitted, StatusCaptured, StatusCaptureError,
	StatusExpireCancelReady, StatusExpireCancelSubmitted, StatusExpireCancelFailed, StatusExpired,
	StatusSystemCancelReady, StatusSystemCancelSubmitted, StatusSystemCancelError, StatusSystemCancelled,
	StatusUserCancelReady, StatusUserCancelSubmitted, StatusUserCancelError, StatusUserCancelled,
}

// IsCaptureSuccess reports whether the status means the capture already
// went through. A duplicate capture message for a charge in one of these
// states is a benign redelivery, not a fault.
func (s ChargeStatus) IsCaptureSuccess() bool {
	return s == StatusCaptureSubmitted || s == StatusCaptured
}

// Charge is one attempted or completed payment transaction.
// Status is mutated only through the lifecycle transitioner; rows are
// never deleted.
type Charge struct {
	ID                   int64        `gorm:"primaryKey;autoIncrement"`
	ExternalID           string       `gorm:"type:uuid;uniqueIndex;not null"`
	Status               ChargeStatus `gorm:"type:varchar(32);not null;index"`
	GatewayTransactionID *string      `gorm:"type:varchar(255);index"`
	Amount               int64        `gorm:"not null"` // minor currency units
	Currency             string       `gorm:"type:varchar(10);not null"`
	PaymentProvider      string       `gorm:"type:varchar(32);not null"`
	Description          string       `gorm:"type:varchar(255)"`
	ReturnURL            string       `gorm:"type:varchar(1024)"`
	Version              int64        `gorm:"not null;default:0"` // optimistic lock counter
	CreatedAt            time.Time    `gorm:"autoCreateTime"`
	UpdatedAt            time.Time    `gorm:"autoUpdateTime"`
}

func (c *Charge) BeforeCreate(tx *gorm.DB) error {
	if c.ExternalID == "" {
		c.ExternalID = uuid.New().String()
	}
	return nil
}

// ChargeEvent is an immutable history row appended atomically with every
// status write. The count of CAPTURE_APPROVED_RETRY events is the durable
// capture retry counter.
type ChargeEvent struct {
	ID         int64        `gorm:"primaryKey;autoIncrement"`
	ChargeID   int64        `gorm:"not null;index"`
	Status     ChargeStatus `gorm:"type:varchar(32);not null"`
	OccurredAt time.Time    `gorm:"not null"`
}
