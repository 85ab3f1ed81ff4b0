package action

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/smartdevs17/stakebet/internal/contracts"
	"github.com/smartdevs17/stakebet/pkg/units"
	"github.com/smartdevs17/stakebet/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// Reward pool APR assumes the pool is refilled weekly.
const rewardPeriodDays = 7

// PoolStats summarizes the staking pool for one account.
type PoolStats struct {
	TotalStaked    *big.Int `json:"total_staked"`
	RewardPerToken *big.Int `json:"reward_per_token"`
	UserStaked     *big.Int `json:"user_staked"`
	Earned         *big.Int `json:"earned"`
	RewardPool     *big.Int `json:"reward_pool"`
	APR            float64  `json:"apr"`
}

// StakeScreen stakes bet tokens into the pool and exits from it.
type StakeScreen struct {
	b       *contracts.Bindings
	stake   *Flow
	unstake *Flow
}

func newStakeScreen(b *contracts.Bindings, waiter Waiter, opts ...FlowOption) *StakeScreen {
	account := b.Signer.Address()
	gate := &Gate{Token: b.BetToken, Owner: account, Spender: b.Pool.Address()}
	return &StakeScreen{
		b:       b,
		stake:   NewFlow("stake", account, gate, waiter, opts...),
		unstake: NewFlow("unstake", account, nil, waiter, opts...),
	}
}

// StakeFlow returns the gated stake flow.
func (s *StakeScreen) StakeFlow() *Flow {
	return s.stake
}

// UnstakeFlow returns the ungated exit flow.
func (s *StakeScreen) UnstakeFlow() *Flow {
	return s.unstake
}

// Approve lets the pool pull the caller's bet tokens.
func (s *StakeScreen) Approve(ctx context.Context) (*Result, error) {
	return s.stake.Approve(ctx)
}

// Stake deposits amount of bet tokens into the pool.
func (s *StakeScreen) Stake(ctx context.Context, amount *big.Int) (*Result, error) {
	account := s.b.Signer.Address()
	return s.stake.Submit(ctx, Act{
		Name: "stake",
		Validate: func(ctx context.Context) error {
			balance, err := s.b.BetToken.BalanceOf(ctx, account)
			if err != nil {
				return err
			}
			return checkAmount(amount, balance)
		},
		Send: func(ctx context.Context) (*types.Transaction, error) {
			return s.b.Pool.Stake(ctx, amount)
		},
		Events:        s.b.Pool,
		ExpectedEvent: contracts.EventStaked,
	})
}

// Unstake withdraws the whole stake and pending reward.
func (s *StakeScreen) Unstake(ctx context.Context) (*Result, error) {
	account := s.b.Signer.Address()
	return s.unstake.Submit(ctx, Act{
		Name: "unstake",
		Validate: func(ctx context.Context) error {
			staked, err := s.b.Pool.BalanceOf(ctx, account)
			if err != nil {
				return err
			}
			if staked.Sign() <= 0 {
				return utils.NewAppError(utils.ErrCodeValidation, "nothing staked")
			}
			return nil
		},
		Send:          s.b.Pool.Exit,
		Events:        s.b.Pool,
		ExpectedEvent: contracts.EventWithdrawn,
	})
}

// Stats reads the pool figures for the connected account.
func (s *StakeScreen) Stats(ctx context.Context) (*PoolStats, error) {
	stats := &PoolStats{}
	account := s.b.Signer.Address()
	var poolBalance *big.Int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalStaked, err = s.b.Pool.TotalSupply(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.RewardPerToken, err = s.b.Pool.RewardPerTokenStored(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.UserStaked, err = s.b.Pool.BalanceOf(gctx, account)
		return err
	})
	g.Go(func() (err error) {
		stats.Earned, err = s.b.Pool.Earned(gctx, account)
		return err
	})
	g.Go(func() (err error) {
		poolBalance, err = s.b.BetToken.BalanceOf(gctx, s.b.Pool.Address())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.RewardPool = RewardPool(poolBalance, stats.TotalStaked)
	stats.APR = APR(stats.RewardPool, stats.TotalStaked)
	return stats, nil
}

// RewardPool is the pool's token balance above what stakers deposited,
// floored at zero.
func RewardPool(poolBalance, totalStaked *big.Int) *big.Int {
	pool := new(big.Int).Sub(poolBalance, totalStaked)
	if pool.Sign() < 0 {
		return new(big.Int)
	}
	return pool
}

// APR annualizes one reward period over the staked total, in percent.
func APR(rewardPool, totalStaked *big.Int) float64 {
	if totalStaked == nil || totalStaked.Sign() == 0 || rewardPool == nil {
		return 0
	}
	apr := decimal.NewFromBigInt(rewardPool, 0).
		Mul(decimal.NewFromInt(365 * 100)).
		Div(decimal.NewFromBigInt(totalStaked, 0).Mul(decimal.NewFromInt(rewardPeriodDays)))
	f, _ := apr.Float64()
	return f
}

// FormatStats renders token amounts for display.
func FormatStats(stats *PoolStats) map[string]interface{} {
	return map[string]interface{}{
		"total_staked":     units.FormatEther(stats.TotalStaked),
		"reward_per_token": units.FormatEther(stats.RewardPerToken),
		"user_staked":      units.FormatEther(stats.UserStaked),
		"earned":           units.FormatEther(stats.Earned),
		"reward_pool":      units.FormatEther(stats.RewardPool),
		"apr":              stats.APR,
	}
}
