package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/internal/wallet"
)

// Bindings is the full set of contracts bound to one signer.
type Bindings struct {
	BetToken    *Token
	StableToken *Token
	Swap        *StableSwap
	Manager     *BetManager
	Pool        *StakingPool
	Signer      wallet.Signer
}

// NewBindings binds every configured contract. A nil signer gives
// read-only bindings whose transactions fail with ErrNotConnected.
func NewBindings(addrs config.Addresses, backend bind.ContractBackend, signer wallet.Signer, m *metrics.Manager) *Bindings {
	return &Bindings{
		BetToken:    NewToken(models.ContractBetToken, addrs.BetToken, backend, signer, m),
		StableToken: NewToken(models.ContractStableToken, addrs.StableToken, backend, signer, m),
		Swap:        NewStableSwap(addrs.BetStableSwap, backend, signer, m),
		Manager:     NewBetManager(addrs.BetManager, backend, signer, m),
		Pool:        NewStakingPool(addrs.BetPool, backend, signer, m),
		Signer:      signer,
	}
}

// Contracts lists the bound contracts.
func (b *Bindings) Contracts() []models.Contract {
	return []models.Contract{
		{Name: b.BetToken.Name(), Address: b.BetToken.Address()},
		{Name: b.StableToken.Name(), Address: b.StableToken.Address()},
		{Name: b.Swap.Name(), Address: b.Swap.Address()},
		{Name: b.Manager.Name(), Address: b.Manager.Address()},
		{Name: b.Pool.Name(), Address: b.Pool.Address()},
	}
}

// TokenBalance reads the bet token balance.
func (b *Bindings) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return b.BetToken.BalanceOf(ctx, owner)
}

// ClaimableFromManager reads unclaimed winnings.
func (b *Bindings) ClaimableFromManager(ctx context.Context, owner common.Address) (*big.Int, error) {
	return b.Manager.TokensToClaim(ctx, owner)
}

// ClaimableFromPool reads unclaimed staking rewards.
func (b *Bindings) ClaimableFromPool(ctx context.Context, owner common.Address) (*big.Int, error) {
	return b.Pool.Earned(ctx, owner)
}
