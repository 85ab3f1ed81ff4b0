// File: internal/storage/postgres.go
package storage

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// PostgreSQLStorage implements Storage using PostgreSQL
type PostgreSQLStorage struct {
	*sqlStore
	config *StorageConfig
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig, m *metrics.Manager) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		sqlStore: &sqlStore{
			dialect:    "postgres",
			logger:     utils.Component("storage").WithField("backend", "postgres"),
			migrations: GetPostgresMigrations(),
			metrics:    m,
		},
		config: config,
	}
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err)
	}

	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections / 2)
	db.SetConnMaxLifetime(p.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err)
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")
	return nil
}
