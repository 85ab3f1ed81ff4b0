package storage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/stakebet/internal/action"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Storage {
	t.Helper()
	store, err := NewStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: ":memory:",
		MaxConnections:   1,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStorageValidation(t *testing.T) {
	_, err := NewStorage(&config.StorageConfig{Type: "mongo", ConnectionString: "x", MaxConnections: 1}, nil)
	assert.ErrorIs(t, err, utils.ErrConfiguration)

	_, err = NewStorage(&config.StorageConfig{Type: "sqlite", MaxConnections: 1}, nil)
	assert.ErrorIs(t, err, utils.ErrConfiguration)

	store, err := NewStorage(&config.StorageConfig{Type: "postgres", ConnectionString: "postgres://x", MaxConnections: 2}, nil)
	require.NoError(t, err)
	assert.IsType(t, &PostgreSQLStorage{}, store)
}

func TestMigrateTwice(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Migrate())
	require.NoError(t, store.Ping())
}

func TestTransactionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Second)

	rec := &models.Transaction{
		ID:            "tx-1",
		Action:        "stake",
		Account:       "0xabc",
		TxHash:        "0x01",
		Status:        models.TxStatusPending,
		ExpectedEvent: "Staked",
		CreatedAt:     created,
	}
	require.NoError(t, store.SaveTransaction(ctx, rec))

	got, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, got.Status)
	assert.Nil(t, got.BlockNumber)
	assert.Nil(t, got.SettledAt)
	assert.True(t, created.Equal(got.CreatedAt))

	block := uint64(42)
	msg := "transaction succeeded but could not confirm effect"
	require.NoError(t, store.SettleTransaction(ctx, "tx-1", models.TxStatusAmbiguous, &block, &msg, time.Now()))

	got, err = store.GetTransactionByHash(ctx, "0x01")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusAmbiguous, got.Status)
	require.NotNil(t, got.BlockNumber)
	assert.Equal(t, uint64(42), *got.BlockNumber)
	require.NotNil(t, got.Error)
	assert.Equal(t, msg, *got.Error)
	assert.NotNil(t, got.SettledAt)

	_, err = store.GetTransaction(ctx, "missing")
	assert.Equal(t, utils.ErrCodeNotFound, utils.CodeOf(err))
	err = store.SettleTransaction(ctx, "missing", models.TxStatusFailed, nil, nil, time.Now())
	assert.Equal(t, utils.ErrCodeNotFound, utils.CodeOf(err))
}

func TestGetTransactionsFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	records := []*models.Transaction{
		{ID: "a", Action: "stake", Account: "0x1", TxHash: "0xa", Status: models.TxStatusSuccess, CreatedAt: base.Add(-3 * time.Second)},
		{ID: "b", Action: "swap_deposit", Account: "0x1", TxHash: "0xb", Status: models.TxStatusFailed, CreatedAt: base.Add(-2 * time.Second)},
		{ID: "c", Action: "stake", Account: "0x2", TxHash: "0xc", Status: models.TxStatusPending, CreatedAt: base.Add(-time.Second)},
	}
	for _, r := range records {
		require.NoError(t, store.SaveTransaction(ctx, r))
	}

	all, err := store.GetTransactions(ctx, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)

	account := "0x1"
	byAccount, err := store.GetTransactions(ctx, models.TransactionFilter{Account: &account})
	require.NoError(t, err)
	assert.Len(t, byAccount, 2)

	act := "stake"
	status := models.TxStatusSuccess
	filtered, err := store.GetTransactions(ctx, models.TransactionFilter{Action: &act, Status: &status})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].ID)

	page, err := store.GetTransactions(ctx, models.TransactionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	stats, err := store.GetStorageStats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalTransactions)
	assert.Equal(t, int64(1), stats.ByStatus[models.TxStatusPending])
}

func TestSnapshotUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	_, err := store.GetSnapshot(ctx, account)
	assert.Equal(t, utils.ErrCodeNotFound, utils.CodeOf(err))

	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.NoError(t, store.SaveSnapshot(ctx, &models.BalanceSnapshot{
		Account:      account,
		TokenBalance: huge,
		BlockNumber:  10,
		UpdatedAt:    time.Now(),
	}))
	require.NoError(t, store.SaveSnapshot(ctx, &models.BalanceSnapshot{
		Account:           account,
		TokenBalance:      huge,
		ClaimableFromPool: big.NewInt(5),
		BlockNumber:       11,
		UpdatedAt:         time.Now(),
	}))

	got, err := store.GetSnapshot(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), got.BlockNumber)
	assert.Equal(t, 0, huge.Cmp(got.TokenBalance))
	assert.Nil(t, got.ClaimableFromManager)
	assert.Equal(t, int64(5), got.ClaimableFromPool.Int64())

	stats, err := store.GetStorageStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalSnapshots)
}

func TestCleanupKeepsPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -40).UTC()

	require.NoError(t, store.SaveTransaction(ctx, &models.Transaction{ID: "old-done", Action: "stake", Account: "0x1", TxHash: "0x1", Status: models.TxStatusSuccess, CreatedAt: old}))
	require.NoError(t, store.SaveTransaction(ctx, &models.Transaction{ID: "old-pending", Action: "stake", Account: "0x1", TxHash: "0x2", Status: models.TxStatusPending, CreatedAt: old}))
	require.NoError(t, store.SaveTransaction(ctx, &models.Transaction{ID: "new-done", Action: "stake", Account: "0x1", TxHash: "0x3", Status: models.TxStatusFailed, CreatedAt: time.Now().UTC()}))

	require.NoError(t, store.Cleanup(ctx, 30))

	all, err := store.GetTransactions(ctx, models.TransactionFilter{})
	require.NoError(t, err)
	ids := []string{}
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"old-pending", "new-done"}, ids)
}

func TestJournal(t *testing.T) {
	store := newTestStore(t)
	j := NewJournal(store)
	ctx := context.Background()
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tx := types.NewTx(&types.LegacyTx{Nonce: 3, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(0)})

	j.TransactionSent(ctx, "claim_tokens", account, tx, "TokenClaimed")

	pending, err := store.GetTransactionByHash(ctx, tx.Hash().Hex())
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, pending.Status)
	assert.Equal(t, "TokenClaimed", pending.ExpectedEvent)
	assert.Len(t, pending.ID, 36)

	j.TransactionSettled(ctx, &action.Result{
		Action:      "claim_tokens",
		TxHash:      tx.Hash(),
		Outcome:     action.OutcomeAmbiguous,
		BlockNumber: 12,
		Error:       "AMBIGUOUS_OUTCOME: transaction succeeded but could not confirm effect",
	})

	settled, err := store.GetTransaction(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusAmbiguous, settled.Status)
	assert.Equal(t, uint64(12), *settled.BlockNumber)

	// rejected before broadcast: nothing to settle
	j.TransactionSettled(ctx, &action.Result{Action: "stake", Outcome: action.OutcomeFailed})

	require.NoError(t, j.PublishSnapshot(ctx, &models.BalanceSnapshot{Account: account, TokenBalance: big.NewInt(1), BlockNumber: 1, UpdatedAt: time.Now()}))
	snap, err := store.GetSnapshot(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.TokenBalance.Int64())
}

func TestStatusFromOutcome(t *testing.T) {
	assert.Equal(t, models.TxStatusSuccess, StatusFromOutcome(action.OutcomeSuccess))
	assert.Equal(t, models.TxStatusAmbiguous, StatusFromOutcome(action.OutcomeAmbiguous))
	assert.Equal(t, models.TxStatusFailed, StatusFromOutcome(action.OutcomeFailed))
}
