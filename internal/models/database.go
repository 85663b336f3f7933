package models

import (
	"fmt"

	"github.com/huangang/teamspace/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database. mode is the server mode and
// controls how chatty the gorm logger is.
func Open(cfg *config.DatabaseConfig, mode string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	logLevel := logger.Warn
	switch mode {
	case "debug":
		logLevel = logger.Info
	case "test":
		logLevel = logger.Silent
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	return db, nil
}

// AutoMigrate applies the full schema. It runs once at process start;
// request handlers never create tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Project{},
		&ProjectMember{},
		&Message{},
		&MessageReaction{},
		&Notification{},
		&SchedulerLock{},
	)
}
