package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/wallet"
)

// StableSwap binds the stable/bet token swap contract.
type StableSwap struct {
	*contract
}

// NewStableSwap binds the swap contract at address.
func NewStableSwap(address common.Address, backend bind.ContractBackend, signer wallet.Signer, m *metrics.Manager) *StableSwap {
	return &StableSwap{contract: newContract("bet_stable_swap", address, stableSwapABI, backend, signer, m)}
}

// SwapRatio is how many bet tokens one stable token buys.
func (s *StableSwap) SwapRatio(ctx context.Context) (*big.Int, error) {
	return s.callBig(ctx, "SWAP_RATIO")
}

// DepositStable swaps amount stable tokens for bet tokens.
func (s *StableSwap) DepositStable(ctx context.Context, amount *big.Int) (*types.Transaction, error) {
	return s.transact(ctx, "depositStableTokenForBetToken", amount)
}

// BurnBet swaps amount bet tokens back to stable tokens.
func (s *StableSwap) BurnBet(ctx context.Context, amount *big.Int) (*types.Transaction, error) {
	return s.transact(ctx, "burnBetTokenForStableToken", amount)
}
