// File: internal/storage/sqlite.go
package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/pkg/utils"
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	*sqlStore
	config *StorageConfig
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig, m *metrics.Manager) *SQLiteStorage {
	return &SQLiteStorage{
		sqlStore: &sqlStore{
			dialect:    "sqlite",
			logger:     utils.Component("storage").WithField("backend", "sqlite"),
			migrations: GetSQLiteMigrations(),
			metrics:    m,
		},
		config: config,
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	inMemory := strings.Contains(s.config.ConnectionString, ":memory:")

	if !inMemory {
		dir := filepath.Dir(s.config.ConnectionString)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return utils.WrapError(utils.ErrCodeDatabase, "Failed to create database directory", err)
			}
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to open SQLite database", err)
	}

	// Every connection to :memory: is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.config.MaxConnections)
		db.SetMaxIdleConns(s.config.MaxConnections / 2)
		db.SetConnMaxLifetime(s.config.MaxIdleTime)

		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return utils.WrapError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to set busy timeout", err)
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")
	return nil
}
