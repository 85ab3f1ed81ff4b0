package action

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/stakebet/internal/contracts"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// SnapshotSource returns the latest polled balances for an account.
type SnapshotSource interface {
	Get(account common.Address) *models.BalanceSnapshot
}

// ClaimScreen pays out bet winnings and staking rewards. Each claim is
// enabled only while the matching snapshot field is positive.
type ClaimScreen struct {
	b         *contracts.Bindings
	snapshots SnapshotSource
	winnings  *Flow
	rewards   *Flow
}

func newClaimScreen(b *contracts.Bindings, snapshots SnapshotSource, waiter Waiter, opts ...FlowOption) *ClaimScreen {
	account := b.Signer.Address()
	return &ClaimScreen{
		b:         b,
		snapshots: snapshots,
		winnings:  NewFlow("claim_tokens", account, nil, waiter, opts...),
		rewards:   NewFlow("claim_reward", account, nil, waiter, opts...),
	}
}

// ClaimControls reports which claims are enabled.
type ClaimControls struct {
	Winnings Controls `json:"winnings"`
	Rewards  Controls `json:"rewards"`
}

// Controls combines flow state with the latest claimable amounts.
func (s *ClaimScreen) Controls() ClaimControls {
	w, r := s.winnings.Controls(), s.rewards.Controls()
	w.ActionEnabled = w.ActionEnabled && s.claimable(models.FieldClaimableFromManager) != nil
	r.ActionEnabled = r.ActionEnabled && s.claimable(models.FieldClaimableFromPool) != nil
	return ClaimControls{Winnings: w, Rewards: r}
}

// claimable returns the positive snapshot value of field, or nil.
func (s *ClaimScreen) claimable(field string) *big.Int {
	if s.snapshots == nil {
		return nil
	}
	snap := s.snapshots.Get(s.b.Signer.Address())
	if snap == nil {
		return nil
	}
	v := snap.Field(field)
	if v == nil || v.Sign() <= 0 {
		return nil
	}
	return v
}

func (s *ClaimScreen) requireClaimable(field string) error {
	if s.claimable(field) == nil {
		return utils.NewAppError(utils.ErrCodeValidation, "nothing to claim", field)
	}
	return nil
}

// ClaimWinnings claims tokens won on settled betting sessions.
func (s *ClaimScreen) ClaimWinnings(ctx context.Context) (*Result, error) {
	return s.winnings.Submit(ctx, Act{
		Name: "claim_tokens",
		Validate: func(ctx context.Context) error {
			return s.requireClaimable(models.FieldClaimableFromManager)
		},
		Send: func(ctx context.Context) (*types.Transaction, error) {
			return s.b.Manager.ClaimTokens(ctx)
		},
		Events:        s.b.Manager,
		ExpectedEvent: contracts.EventTokenClaimed,
	})
}

// ClaimReward collects the pending staking reward.
func (s *ClaimScreen) ClaimReward(ctx context.Context) (*Result, error) {
	return s.rewards.Submit(ctx, Act{
		Name: "claim_reward",
		Validate: func(ctx context.Context) error {
			return s.requireClaimable(models.FieldClaimableFromPool)
		},
		Send:          s.b.Pool.GetReward,
		Events:        s.b.Pool,
		ExpectedEvent: contracts.EventRewardPaid,
	})
}
