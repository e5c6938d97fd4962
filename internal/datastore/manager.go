// Package datastore opens the persistent store backing the alert condition cache.
package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/fleetwatch/fleetwatch/internal/conf"
	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
	"github.com/fleetwatch/fleetwatch/internal/errors"
	"github.com/fleetwatch/fleetwatch/internal/logger"
)

// Manager owns the GORM connection.
type Manager struct {
	db      *gorm.DB
	dialect string
	log     logger.Logger
}

// Open connects to the store selected by settings.
func Open(settings conf.DatabaseSettings, log logger.Logger) (*Manager, error) {
	var dialector gorm.Dialector
	switch settings.Type {
	case "sqlite":
		if dir := filepath.Dir(settings.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(settings.Path + "?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000")
	case "mysql":
		dialector = mysql.Open(settings.DSN)
	default:
		return nil, errors.Newf("unsupported database type %q", settings.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return openDialector(dialector, settings.Type, log)
}

// OpenMemory opens a private in-memory sqlite store. Used by tests and the CLI dry run.
func OpenMemory(log logger.Logger) (*Manager, error) {
	return openDialector(sqlite.Open("file::memory:?_foreign_keys=ON"), "sqlite", log)
}

func openDialector(dialector gorm.Dialector, dialect string, log logger.Logger) (*Manager, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open %s database: %w", dialect, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if dialect == "sqlite" {
		// A single connection keeps in-memory databases shared and serializes sqlite writes.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return &Manager{db: db, dialect: dialect, log: log.Module("datastore")}, nil
}

// Initialize migrates every entity.
func (m *Manager) Initialize() error {
	if err := m.db.AutoMigrate(entities.All()...); err != nil {
		return errors.New(fmt.Errorf("failed to migrate schema: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("dialect", m.dialect).
			Build()
	}
	m.log.Info("schema migrated", logger.String("dialect", m.dialect))
	return nil
}

// DB returns the GORM handle.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// IsMySQL reports whether the store is MySQL.
func (m *Manager) IsMySQL() bool {
	return m.dialect == "mysql"
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
