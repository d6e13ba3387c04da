package database

import (
	"fmt"

	"agribalance-backend/internal/models"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects with the configured driver. sqlite is CGO-free and is used
// for local development and tests; postgres is the production store.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite allows a single writer; one pooled connection keeps
		// transactions queued in the pool instead of failing with SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Land{},
		&models.CropMaster{},
		&models.CropPrice{},
		&models.AdminQuota{},
		&models.RegionLimit{},
		&models.Cultivation{},
		&models.HarvestSale{},
		&models.CropListing{},
		&models.Notification{},
		&models.AuditLog{},
	)
}

// Init opens the database and runs migrations, exiting through the logger
// on failure.
func Init(driver, dsn string, logger *zap.Logger) *gorm.DB {
	db, err := Open(driver, dsn)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	if err := Migrate(db); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}
	logger.Info("database connected, migrations complete", zap.String("driver", driver))
	return db
}
