// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/smartdevs17/stakebet/internal/models"
)

// Storage persists the transaction journal and the latest balance
// snapshot per account.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Transaction journal
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	SettleTransaction(ctx context.Context, id string, status models.TxStatus, blockNumber *uint64, errMsg *string, settledAt time.Time) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	GetTransactionByHash(ctx context.Context, txHash string) (*models.Transaction, error)
	GetTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error)

	// Balance snapshots
	SaveSnapshot(ctx context.Context, snapshot *models.BalanceSnapshot) error
	GetSnapshot(ctx context.Context, account common.Address) (*models.BalanceSnapshot, error)

	// Statistics and maintenance
	GetStorageStats() (*StorageStats, error)
	Cleanup(ctx context.Context, retentionDays int) error
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalTransactions int64                     `json:"total_transactions"`
	ByStatus          map[models.TxStatus]int64 `json:"by_status"`
	TotalSnapshots    int64                     `json:"total_snapshots"`
	OldestTransaction *time.Time                `json:"oldest_transaction,omitempty"`
	LatestTransaction *time.Time                `json:"latest_transaction,omitempty"`
	LastCleanup       *time.Time                `json:"last_cleanup,omitempty"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
	RetentionDays    int           `json:"retention_days"`
}
