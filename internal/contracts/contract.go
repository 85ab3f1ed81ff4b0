// Package contracts binds the token, swap, bet-manager and staking-pool
// contracts to a node backend and, optionally, a signer.
package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/wallet"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// contract is the shared plumbing behind every typed binding.
type contract struct {
	name    string
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	signer  wallet.Signer
	metrics *metrics.Manager
	logger  *logrus.Entry
}

func newContract(name string, address common.Address, parsed abi.ABI, backend bind.ContractBackend, signer wallet.Signer, m *metrics.Manager) *contract {
	return &contract{
		name:    name,
		address: address,
		abi:     parsed,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
		signer:  signer,
		metrics: m,
		logger:  utils.Component("contracts").WithField("contract", name),
	}
}

// Address returns the deployed address.
func (c *contract) Address() common.Address {
	return c.address
}

// Name returns the configured contract name.
func (c *contract) Name() string {
	return c.name
}

func (c *contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
	if pm := c.metrics.GetPrometheusMetrics(); pm != nil {
		pm.RecordRPCRequest(c.name, method, err)
	}
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeBlockchain, fmt.Sprintf("%s.%s call failed", c.name, method), err)
	}
	return out, nil
}

func (c *contract) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, c.decodeError(method, "empty result")
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, c.decodeError(method, fmt.Sprintf("unexpected type %T", out[0]))
	}
	return v, nil
}

func (c *contract) decodeError(method, details string) error {
	return utils.NewAppError(utils.ErrCodeBlockchain, fmt.Sprintf("%s.%s returned malformed output", c.name, method), details)
}

// transact sends a state-changing call signed by the bound signer.
func (c *contract) transact(ctx context.Context, method string, args ...interface{}) (*types.Transaction, error) {
	if c.signer == nil {
		return nil, utils.ErrNotConnected
	}
	opts, err := c.signer.TransactOpts(ctx)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeTransaction, "failed to prepare transaction", err)
	}

	tx, err := c.bound.Transact(opts, method, args...)
	if pm := c.metrics.GetPrometheusMetrics(); pm != nil {
		pm.RecordRPCRequest(c.name, method, err)
	}
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeTransaction, fmt.Sprintf("%s.%s rejected", c.name, method), err)
	}

	c.logger.WithFields(logrus.Fields{
		"method":  method,
		"tx_hash": tx.Hash().Hex(),
		"from":    opts.From.Hex(),
	}).Info("Transaction sent")
	return tx, nil
}

// HasEvent reports whether receipt carries the named event emitted by
// this contract.
func (c *contract) HasEvent(receipt *types.Receipt, name string) bool {
	if receipt == nil {
		return false
	}
	event, ok := c.abi.Events[name]
	if !ok {
		return false
	}
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != c.address || len(lg.Topics) == 0 {
			continue
		}
		if lg.Topics[0] == event.ID {
			return true
		}
	}
	return false
}

// EventID returns the topic hash of a named event, for building receipts in tests
// and log filters.
func (c *contract) EventID(name string) (common.Hash, bool) {
	event, ok := c.abi.Events[name]
	return event.ID, ok
}
