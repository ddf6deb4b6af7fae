package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dropcast/dropcast/internal/config"
	"github.com/dropcast/dropcast/internal/models"
)

// Store wraps the database with the keyed record operations the pipeline
// and wizard need. A run is single-writer by contract; the store does no
// cross-process locking.
type Store struct {
	db *gorm.DB
}

func Open(cfg *config.DatabaseConfig) (*Store, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return New(db)
}

// New builds a Store on an already-open connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&models.PostedFile{},
		&models.PostResult{},
		&models.ScheduleSlot{},
		&models.AccountSettings{},
		&models.BotUser{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}
