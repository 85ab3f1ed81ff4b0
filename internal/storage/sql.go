package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends.
// Queries are written with ? placeholders and rebound per dialect.
type sqlStore struct {
	db         *sql.DB
	dialect    string
	logger     *logrus.Entry
	migrations []*Migration
	metrics    *metrics.Manager

	lastCleanup *time.Time
}

func (s *sqlStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) observe(operation, table string, start time.Time, err error) {
	pm := s.metrics.GetPrometheusMetrics()
	if pm == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	pm.RecordDatabaseOperation(operation, table, status, time.Since(start))
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("Database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *sqlStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *sqlStore) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	s.logger.Info("Starting database migrations")
	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version), err.Error())
		}
	}
	for _, migration := range s.migrations {
		query := s.rebind(`INSERT INTO migrations (version, description) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`)
		if _, err := s.db.Exec(query, migration.Version, migration.Description); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record migration", err.Error())
		}
	}
	s.logger.Info("Database migrations completed")
	return nil
}

// SaveTransaction inserts a journal record
func (s *sqlStore) SaveTransaction(ctx context.Context, tx *models.Transaction) (err error) {
	defer func(start time.Time) { s.observe("insert", "transactions", start, err) }(time.Now())

	query := s.rebind(`
		INSERT INTO transactions
		(id, action, account, tx_hash, status, expected_event, block_number, error, created_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = s.db.ExecContext(ctx, query,
		tx.ID, tx.Action, tx.Account, tx.TxHash, string(tx.Status), tx.ExpectedEvent,
		nullUint(tx.BlockNumber), tx.Error, tx.CreatedAt.UTC(), nullTime(tx.SettledAt))
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to save transaction", err)
	}
	return nil
}

// SettleTransaction records the outcome of a journaled transaction
func (s *sqlStore) SettleTransaction(ctx context.Context, id string, status models.TxStatus, blockNumber *uint64, errMsg *string, settledAt time.Time) (err error) {
	defer func(start time.Time) { s.observe("update", "transactions", start, err) }(time.Now())

	query := s.rebind(`UPDATE transactions SET status = ?, block_number = ?, error = ?, settled_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, string(status), nullUint(blockNumber), errMsg, settledAt.UTC(), id)
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to settle transaction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Transaction not found", id)
	}
	return nil
}

const transactionColumns = `id, action, account, tx_hash, status, expected_event, block_number, error, created_at, settled_at`

// GetTransaction retrieves a journal record by id
func (s *sqlStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return s.getTransaction(ctx, "id", id)
}

// GetTransactionByHash retrieves a journal record by transaction hash
func (s *sqlStore) GetTransactionByHash(ctx context.Context, txHash string) (*models.Transaction, error) {
	return s.getTransaction(ctx, "tx_hash", txHash)
}

func (s *sqlStore) getTransaction(ctx context.Context, column, value string) (*models.Transaction, error) {
	query := s.rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE ` + column + ` = ? ORDER BY created_at DESC LIMIT 1`)
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Transaction not found", value)
	}
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to get transaction", err)
	}
	return tx, nil
}

// GetTransactions lists journal records, newest first
func (s *sqlStore) GetTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	start := time.Now()

	var (
		where []string
		args  []interface{}
	)
	if filter.Account != nil {
		where = append(where, "account = ?")
		args = append(args, *filter.Account)
	}
	if filter.Action != nil {
		where = append(where, "action = ?")
		args = append(args, *filter.Action)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		s.observe("select", "transactions", start, err)
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to query transactions", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to scan transaction", err)
		}
		out = append(out, tx)
	}
	err = rows.Err()
	s.observe("select", "transactions", start, err)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to read transactions", err)
	}
	return out, nil
}

// SaveSnapshot upserts the latest snapshot for its account
func (s *sqlStore) SaveSnapshot(ctx context.Context, snapshot *models.BalanceSnapshot) (err error) {
	defer func(start time.Time) { s.observe("upsert", "balance_snapshots", start, err) }(time.Now())

	query := s.rebind(`
		INSERT INTO balance_snapshots
		(account, token_balance, claimable_from_manager, claimable_from_pool, block_number, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account) DO UPDATE SET
			token_balance = excluded.token_balance,
			claimable_from_manager = excluded.claimable_from_manager,
			claimable_from_pool = excluded.claimable_from_pool,
			block_number = excluded.block_number,
			updated_at = excluded.updated_at
	`)
	_, err = s.db.ExecContext(ctx, query,
		snapshot.Account.Hex(),
		nullBig(snapshot.TokenBalance),
		nullBig(snapshot.ClaimableFromManager),
		nullBig(snapshot.ClaimableFromPool),
		int64(snapshot.BlockNumber),
		snapshot.UpdatedAt.UTC())
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to save snapshot", err)
	}
	return nil
}

// GetSnapshot returns the persisted snapshot for account
func (s *sqlStore) GetSnapshot(ctx context.Context, account common.Address) (*models.BalanceSnapshot, error) {
	query := s.rebind(`
		SELECT token_balance, claimable_from_manager, claimable_from_pool, block_number, updated_at
		FROM balance_snapshots WHERE account = ?
	`)

	var (
		token, manager, pool sql.NullString
		block                int64
		updated              time.Time
	)
	err := s.db.QueryRowContext(ctx, query, account.Hex()).Scan(&token, &manager, &pool, &block, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Snapshot not found", account.Hex())
	}
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to get snapshot", err)
	}

	return &models.BalanceSnapshot{
		Account:              account,
		TokenBalance:         parseBig(token),
		ClaimableFromManager: parseBig(manager),
		ClaimableFromPool:    parseBig(pool),
		BlockNumber:          uint64(block),
		UpdatedAt:            updated,
	}, nil
}

// GetStorageStats returns storage statistics
func (s *sqlStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{ByStatus: make(map[models.TxStatus]int64), LastCleanup: s.lastCleanup}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM transactions GROUP BY status`)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to count transactions", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to scan transaction count", err)
		}
		stats.ByStatus[models.TxStatus(status)] = count
		stats.TotalTransactions += count
	}
	if err := rows.Err(); err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to count transactions", err)
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM balance_snapshots`).Scan(&stats.TotalSnapshots); err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to count snapshots", err)
	}

	if stats.TotalTransactions > 0 {
		var oldest, latest time.Time
		if err := s.db.QueryRow(`SELECT created_at FROM transactions ORDER BY created_at ASC LIMIT 1`).Scan(&oldest); err == nil {
			stats.OldestTransaction = &oldest
		}
		if err := s.db.QueryRow(`SELECT created_at FROM transactions ORDER BY created_at DESC LIMIT 1`).Scan(&latest); err == nil {
			stats.LatestTransaction = &latest
		}
	}
	return stats, nil
}

// Cleanup removes settled journal records older than retentionDays.
// Pending records are kept.
func (s *sqlStore) Cleanup(ctx context.Context, retentionDays int) (err error) {
	defer func(start time.Time) { s.observe("delete", "transactions", start, err) }(time.Now())

	cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC()
	query := s.rebind(`DELETE FROM transactions WHERE status <> ? AND created_at < ?`)
	res, err := s.db.ExecContext(ctx, query, string(models.TxStatusPending), cutoff)
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to clean up transactions", err)
	}
	deleted, _ := res.RowsAffected()
	now := time.Now()
	s.lastCleanup = &now
	s.logger.WithFields(logrus.Fields{
		"deleted":        deleted,
		"retention_days": retentionDays,
	}).Info("Journal cleanup completed")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx      models.Transaction
		status  string
		block   sql.NullInt64
		errMsg  sql.NullString
		settled sql.NullTime
	)
	err := row.Scan(&tx.ID, &tx.Action, &tx.Account, &tx.TxHash, &status, &tx.ExpectedEvent,
		&block, &errMsg, &tx.CreatedAt, &settled)
	if err != nil {
		return nil, err
	}
	tx.Status = models.TxStatus(status)
	if block.Valid {
		n := uint64(block.Int64)
		tx.BlockNumber = &n
	}
	if errMsg.Valid {
		tx.Error = &errMsg.String
	}
	if settled.Valid {
		tx.SettledAt = &settled.Time
	}
	return &tx, nil
}

func nullUint(v *uint64) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return v.UTC()
}

func nullBig(v *big.Int) interface{} {
	if v == nil {
		return nil
	}
	return v.String()
}

func parseBig(v sql.NullString) *big.Int {
	if !v.Valid {
		return nil
	}
	n, ok := new(big.Int).SetString(v.String, 10)
	if !ok {
		return nil
	}
	return n
}
