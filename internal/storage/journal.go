package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/action"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// Journal records every transaction a flow sends and how it settled. It
// also persists each published balance snapshot. Write failures are
// logged and never block a flow.
type Journal struct {
	store  Storage
	logger *logrus.Entry

	mu      sync.Mutex
	pending map[common.Hash]string
}

// NewJournal creates a journal over store
func NewJournal(store Storage) *Journal {
	return &Journal{
		store:   store,
		logger:  utils.Component("journal"),
		pending: make(map[common.Hash]string),
	}
}

// TransactionSent stores a pending record
func (j *Journal) TransactionSent(ctx context.Context, name string, account common.Address, tx *types.Transaction, expectedEvent string) {
	rec := &models.Transaction{
		ID:            uuid.NewString(),
		Action:        name,
		Account:       account.Hex(),
		TxHash:        tx.Hash().Hex(),
		Status:        models.TxStatusPending,
		ExpectedEvent: expectedEvent,
		CreatedAt:     time.Now(),
	}
	if err := j.store.SaveTransaction(ctx, rec); err != nil {
		j.logger.WithError(err).WithField("tx_hash", rec.TxHash).Warn("Failed to journal transaction")
		return
	}
	j.mu.Lock()
	j.pending[tx.Hash()] = rec.ID
	j.mu.Unlock()
}

// TransactionSettled updates the pending record. Results for transactions
// the node never accepted have no hash and are not journaled.
func (j *Journal) TransactionSettled(ctx context.Context, result *action.Result) {
	if result.TxHash == (common.Hash{}) {
		return
	}

	j.mu.Lock()
	id, ok := j.pending[result.TxHash]
	delete(j.pending, result.TxHash)
	j.mu.Unlock()
	if !ok {
		return
	}

	var block *uint64
	if result.BlockNumber > 0 {
		n := result.BlockNumber
		block = &n
	}
	var errMsg *string
	if result.Error != "" {
		msg := result.Error
		errMsg = &msg
	}

	status := StatusFromOutcome(result.Outcome)
	if err := j.store.SettleTransaction(context.WithoutCancel(ctx), id, status, block, errMsg, time.Now()); err != nil {
		j.logger.WithError(err).WithField("id", id).Warn("Failed to settle journaled transaction")
	}
}

// PublishSnapshot persists the latest snapshot for its account
func (j *Journal) PublishSnapshot(ctx context.Context, snapshot *models.BalanceSnapshot) error {
	return j.store.SaveSnapshot(ctx, snapshot)
}

// StatusFromOutcome maps a flow outcome onto a journal status
func StatusFromOutcome(o action.Outcome) models.TxStatus {
	switch o {
	case action.OutcomeSuccess:
		return models.TxStatusSuccess
	case action.OutcomeAmbiguous:
		return models.TxStatusAmbiguous
	default:
		return models.TxStatusFailed
	}
}
