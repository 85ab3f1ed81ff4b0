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

// Receipt events emitted by the staking pool.
const (
	EventStaked     = "Staked"
	EventWithdrawn  = "Withdrawn"
	EventRewardPaid = "RewardPaid"
)

// StakingPool binds the staking-rewards pool.
type StakingPool struct {
	*contract
}

// NewStakingPool binds the pool at address.
func NewStakingPool(address common.Address, backend bind.ContractBackend, signer wallet.Signer, m *metrics.Manager) *StakingPool {
	return &StakingPool{contract: newContract("bet_pool", address, stakingPoolABI, backend, signer, m)}
}

// TotalSupply is the total amount staked.
func (p *StakingPool) TotalSupply(ctx context.Context) (*big.Int, error) {
	return p.callBig(ctx, "totalSupply")
}

// BalanceOf is user's staked amount.
func (p *StakingPool) BalanceOf(ctx context.Context, user common.Address) (*big.Int, error) {
	return p.callBig(ctx, "balanceOf", user)
}

// RewardPerTokenStored is the accumulated reward per staked token.
func (p *StakingPool) RewardPerTokenStored(ctx context.Context) (*big.Int, error) {
	return p.callBig(ctx, "rewardPerTokenStored")
}

// Earned is user's unclaimed reward.
func (p *StakingPool) Earned(ctx context.Context, user common.Address) (*big.Int, error) {
	return p.callBig(ctx, "earned", user)
}

// Stake deposits amount bet tokens.
func (p *StakingPool) Stake(ctx context.Context, amount *big.Int) (*types.Transaction, error) {
	return p.transact(ctx, "stake", amount)
}

// GetReward claims the caller's reward.
func (p *StakingPool) GetReward(ctx context.Context) (*types.Transaction, error) {
	return p.transact(ctx, "getReward")
}

// Exit withdraws the full stake and claims the reward.
func (p *StakingPool) Exit(ctx context.Context) (*types.Transaction, error) {
	return p.transact(ctx, "exit")
}
