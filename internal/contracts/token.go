package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/wallet"
)

// Token binds a fungible-token contract.
type Token struct {
	*contract
}

// NewToken binds a token at address.
func NewToken(name string, address common.Address, backend bind.ContractBackend, signer wallet.Signer, m *metrics.Manager) *Token {
	return &Token{contract: newContract(name, address, tokenABI, backend, signer, m)}
}

// BalanceOf returns owner's balance in minor units.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return t.callBig(ctx, "balanceOf", owner)
}

// Allowance returns what spender may still move on owner's behalf.
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.callBig(ctx, "allowance", owner, spender)
}

// Approve grants spender an allowance of amount.
func (t *Token) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.transact(ctx, "approve", spender, amount)
}

// ApproveMax grants spender an unlimited allowance.
func (t *Token) ApproveMax(ctx context.Context, spender common.Address) (*types.Transaction, error) {
	return t.Approve(ctx, spender, math.MaxBig256)
}
