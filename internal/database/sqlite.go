package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/opportunities"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/syncjob"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const inMemoryPrefix = "file::memory:"

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One connection: readers see the catalog before or after a sync, never between.
	sqlDB.SetMaxOpenConns(1)

	if err := migrateSchema(db); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

func migrateSchema(db *gorm.DB) error {
	if err := opportunities.Migrate(db); err != nil {
		return fmt.Errorf("migrate catalog schema: %w", err)
	}
	if err := users.Migrate(db); err != nil {
		return fmt.Errorf("migrate account schema: %w", err)
	}
	if err := syncjob.Migrate(db); err != nil {
		return fmt.Errorf("migrate run schema: %w", err)
	}
	return db.AutoMigrate(&migrationRecord{})
}

func ensureParentDir(path string) error {
	if strings.HasPrefix(path, inMemoryPrefix) || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
