package db

import (
	"fmt"
	"log"

	"codesync/internal/config"
	"codesync/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance
type GormDB struct {
	*gorm.DB
}

// NewGorm initializes the GORM database connection and migrates the
// schema. Failure here is the one process-fatal startup condition.
func NewGorm(cfg *config.Config) (*GormDB, error) {
	dsn := cfg.DatabaseURL()

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Snippet{},
		&models.Collaborator{},
		&models.CodeEdit{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Composite index for history reads; AutoMigrate only covers the
	// single-column indexes declared in struct tags.
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_code_edits_snippet_time
		ON code_edits (snippet_id, timestamp)
	`).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create edit history index: %w", err)
	}

	log.Println("database connected and migrated")

	return &GormDB{db}, nil
}

// Close closes the database connection
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
