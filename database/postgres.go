package database

import (
	"fmt"
	"time"

	"payment-connector/config"
	"payment-connector/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// ConnectPostgres opens a pooled connection with retry, then migrates the
// given models. Startup races against the database container locally, so
// a handful of attempts with growing backoff is deliberate.
func ConnectPostgres(logger *zap.Logger, cfg config.DB, autoMigrateModels ...interface{}) (*gorm.DB, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("POSTGRES_USER not set")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("POSTGRES_DB not set")
	}

	dsn := cfg.DSN()

	var db *gorm.DB
	var err error

	for i := 0; i < 10; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			sqlDB, poolErr := db.DB()
			if poolErr == nil {
				sqlDB.SetMaxOpenConns(25)
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetConnMaxLifetime(5 * time.Minute)
			}

			logger.Info("Connected to PostgreSQL successfully")

			if len(autoMigrateModels) > 0 {
				if err := db.AutoMigrate(autoMigrateModels...); err != nil {
					return nil, fmt.Errorf("AutoMigrate failed: %w", err)
				}
			}
			return db, nil
		}

		logger.Warn("DB connection failed, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		time.Sleep(time.Duration(i+1) * 2 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
}

func Connect(logger *zap.Logger, cfg config.DB) error {
	var err error
	DB, err = ConnectPostgres(logger, cfg,
		&models.Charge{},
		&models.ChargeEvent{},
		&models.Refund{},
		&models.RefundEvent{},
	)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", zap.Error(err))
		return err
	}
	return nil
}

func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
