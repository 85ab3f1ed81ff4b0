package action

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/stakebet/internal/session"
)

// Screens are the action forms for one connected account. A signer change
// builds a fresh set, which discards any in-progress slip.
type Screens struct {
	Account common.Address
	Swap    *SwapScreen
	Bet     *BetScreen
	Stake   *StakeScreen
	Claim   *ClaimScreen
	Admin   *AdminScreen
}

// NewScreens builds the screens for a connected session state.
func NewScreens(state *session.State, snapshots SnapshotSource, waiter Waiter, opts ...FlowOption) *Screens {
	b := state.Bindings
	return &Screens{
		Account: state.Account(),
		Swap:    newSwapScreen(b, waiter, opts...),
		Bet:     newBetScreen(b, waiter, opts...),
		Stake:   newStakeScreen(b, waiter, opts...),
		Claim:   newClaimScreen(b, snapshots, waiter, opts...),
		Admin:   newAdminScreen(b, waiter, opts...),
	}
}

// Refresh re-reads every gated allowance.
func (s *Screens) Refresh(ctx context.Context) error {
	for _, f := range s.GatedFlows() {
		if _, err := f.Refresh(ctx); err != nil {
			return err
		}
	}
	return nil
}

// GatedFlows returns the flows that need an approval.
func (s *Screens) GatedFlows() []*Flow {
	return []*Flow{
		s.Swap.flows[DirectionDeposit],
		s.Swap.flows[DirectionBurn],
		s.Bet.flow,
		s.Stake.stake,
	}
}

// Observers fans transaction events out to several observers.
type Observers []Observer

func (o Observers) TransactionSent(ctx context.Context, action string, account common.Address, tx *types.Transaction, expectedEvent string) {
	for _, obs := range o {
		obs.TransactionSent(ctx, action, account, tx, expectedEvent)
	}
}

func (o Observers) TransactionSettled(ctx context.Context, result *Result) {
	for _, obs := range o {
		obs.TransactionSettled(ctx, result)
	}
}
