package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"loankeeper/src/model"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()
	db, err := gorm.Open(postgres.Open(config.DatabaseURLMain),
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to get DB from GORM")
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.Info("[database] MainDB connection established")

	// Run AutoMigrate only on the main database.
	// Add here all models that belong to the write-side schema.
	if err := MainDB.AutoMigrate(
		&model.Strategy{},
		&model.Position{},
		&model.ActivityRecord{},
		&model.RebalanceExecution{},
		&model.RebalanceActionRecord{},
		&model.RebalanceSettings{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}
