package connection

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// ReceiptBackend is the slice of a node client needed to wait for a receipt.
type ReceiptBackend interface {
	bind.DeployBackend
}

// TxWaiter blocks until a sent transaction is mined.
type TxWaiter struct {
	backend ReceiptBackend
	timeout time.Duration
	logger  *logrus.Entry
}

// NewTxWaiter creates a waiter that gives up after timeout (0 waits forever).
func NewTxWaiter(backend ReceiptBackend, timeout time.Duration) *TxWaiter {
	return &TxWaiter{
		backend: backend,
		timeout: timeout,
		logger:  utils.Component("tx_waiter"),
	}
}

// WaitMined waits for tx's receipt. The wait is detached from ctx
// cancellation: an abandoned request must not abandon a sent transaction,
// so only the configured timeout bounds it.
func (w *TxWaiter) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx := context.WithoutCancel(ctx)
	if w.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	receipt, err := bind.WaitMined(waitCtx, w.backend, tx)
	if err != nil {
		w.logger.WithFields(logrus.Fields{"tx_hash": tx.Hash().Hex(), "error": err}).Warn("Failed waiting for receipt")
		return nil, utils.WrapError(utils.ErrCodeBlockchain, "Failed to get transaction receipt", err)
	}

	w.logger.WithFields(logrus.Fields{
		"tx_hash":  tx.Hash().Hex(),
		"block":    receipt.BlockNumber,
		"status":   receipt.Status,
		"duration": time.Since(start),
	}).Debug("Transaction mined")
	return receipt, nil
}
