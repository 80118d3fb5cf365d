package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"payment-connector/models"
	"payment-connector/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	assert.NoError(t, err)
	return gormDB, mock
}

func testCharge() *models.Charge {
	return &models.Charge{
		ID:              42,
		ExternalID:      "0d4164f4-2a14-4bff-b4b3-e09425a0b1a5",
		Status:          models.StatusCaptureApproved,
		Amount:          2500,
		Currency:        "gbp",
		PaymentProvider: "sandbox",
		Version:         3,
	}
}

func TestUpdateStatus_CommitsStatusAndEvent(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormChargeRepository(gormDB)
	charge := testCharge()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "charges"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "charge_events"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.UpdateStatus(context.Background(), charge, models.StatusCaptureReady)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusCaptureReady, charge.Status)
	assert.Equal(t, int64(4), charge.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_VersionConflict(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormChargeRepository(gormDB)
	charge := testCharge()

	// Another worker bumped the version between read and write: zero rows
	// match, the transaction rolls back, no event is written.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "charges"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), charge, models.StatusCaptureReady)
	assert.ErrorIs(t, err, repository.ErrConcurrentModification)
	assert.Equal(t, models.StatusCaptureApproved, charge.Status)
	assert.Equal(t, int64(3), charge.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByExternalID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormChargeRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "charges"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))

	c, err := repo.FindByExternalID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, c)
}

func TestFindByGatewayTransactionID_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormChargeRepository(gormDB)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "external_id", "status", "gateway_transaction_id", "amount",
		"currency", "payment_provider", "version", "created_at", "updated_at",
	}).AddRow(
		int64(7), "ext-7", models.StatusCaptureSubmitted, "pi_123", int64(900),
		"gbp", "stripe", int64(2), now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "charges"`)).
		WithArgs("stripe", "pi_123", 1).
		WillReturnRows(rows)

	c, err := repo.FindByGatewayTransactionID(context.Background(), "stripe", "pi_123")
	assert.NoError(t, err)
	assert.Equal(t, models.StatusCaptureSubmitted, c.Status)
	assert.Equal(t, "pi_123", *c.GatewayTransactionID)
}

func TestCountEvents(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormChargeRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "charge_events"`)).
		WithArgs(int64(42), string(models.StatusCaptureApprovedRetry)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountEvents(context.Background(), 42, models.StatusCaptureApprovedRetry)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSetGatewayTransactionID_VersionConflict(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormChargeRepository(gormDB)
	charge := testCharge()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "charges"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.SetGatewayTransactionID(context.Background(), charge, "pi_456")
	assert.ErrorIs(t, err, repository.ErrConcurrentModification)
	assert.Nil(t, charge.GatewayTransactionID)
}
