package database

import (
	"fmt"
	"time"

	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func InitPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
		cfg.App.Timezone,
	)

	logLevel := gormlogger.Warn
	if cfg.App.Environment == "development" {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate creates or extends the tables this service owns. Customers,
// visits and purchases are included so a fresh database is usable locally.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.Customer{},
		&domain.Visit{},
		&domain.Purchase{},
		&domain.SegmentSnapshot{},
		&domain.AutomationFlow{},
		&domain.Dispatch{},
		&domain.ActionLogEntry{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// phone lookups match on the digit form of the stored value
	err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_customers_phone_digits ON customers ((regexp_replace(phone, '[^0-9]', '', 'g')))`).Error
	if err != nil {
		return fmt.Errorf("failed to create phone index: %w", err)
	}
	return nil
}
