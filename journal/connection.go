package journal

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nstehr/vimy/vimy-builder/config"
)

// NewConnection opens the journal database and migrates its tables.
func NewConnection(cfg *config.JournalConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	inMemory := false

	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(cfg.URL)
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		inMemory = path == ":memory:"
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// every pooled connection would see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return db, nil
}

// NewTestConnection creates a migrated in-memory SQLite database.
func NewTestConnection() (*gorm.DB, error) {
	return NewConnection(&config.JournalConfig{Type: "sqlite", Path: ":memory:"})
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&SessionModel{},
		&OrderModel{},
	)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
