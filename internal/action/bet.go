package action

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/stakebet/internal/betting"
	"github.com/smartdevs17/stakebet/internal/contracts"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// BetScreen builds a slip and places it on one betting session. Placing
// spends bet tokens, so the manager must hold an allowance first.
type BetScreen struct {
	b    *contracts.Bindings
	flow *Flow
	slip *betting.Slip
	now  func() time.Time
}

func newBetScreen(b *contracts.Bindings, waiter Waiter, opts ...FlowOption) *BetScreen {
	account := b.Signer.Address()
	gate := &Gate{Token: b.BetToken, Owner: account, Spender: b.Manager.Address()}
	return &BetScreen{
		b:    b,
		flow: NewFlow("place_bets", account, gate, waiter, opts...),
		slip: betting.NewSlip(),
		now:  time.Now,
	}
}

// Flow returns the placement flow.
func (s *BetScreen) Flow() *Flow {
	return s.flow
}

// Slip returns the working bet slip.
func (s *BetScreen) Slip() *betting.Slip {
	return s.slip
}

// Approve lets the bet manager spend the caller's bet tokens.
func (s *BetScreen) Approve(ctx context.Context) (*Result, error) {
	return s.flow.Approve(ctx)
}

// Limits reads the contract limits for the caller on session id.
func (s *BetScreen) Limits(ctx context.Context, id *big.Int) (betting.WagerLimits, error) {
	var limits betting.WagerLimits
	account := s.b.Signer.Address()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		limits.PerBet, err = s.b.Manager.TokenAmountPerBet(gctx)
		return err
	})
	g.Go(func() (err error) {
		limits.MaxPerSession, err = s.b.Manager.MaxTokensPerSession(gctx)
		return err
	})
	g.Go(func() (err error) {
		limits.AlreadyWagered, err = s.b.Manager.WageredBy(gctx, id, account)
		return err
	})
	g.Go(func() (err error) {
		limits.Balance, err = s.b.BetToken.BalanceOf(gctx, account)
		return err
	})
	if err := g.Wait(); err != nil {
		return betting.WagerLimits{}, err
	}
	return limits, nil
}

// Place submits the slip on session id. It is refused locally when the
// session is not open or the wager checks fail. The slip is discarded as
// soon as the node accepts the transaction.
func (s *BetScreen) Place(ctx context.Context, id *big.Int) (*Result, error) {
	var entries []models.BetEntry

	return s.flow.Submit(ctx, Act{
		Name: "place_bets",
		Validate: func(ctx context.Context) error {
			if id == nil || id.Sign() < 0 {
				return utils.NewAppError(utils.ErrCodeValidation, "invalid betting session id")
			}
			session, err := s.b.Manager.Session(ctx, id)
			if err != nil {
				return err
			}
			if !betting.AcceptsBets(session, s.now()) {
				return utils.NewAppError(utils.ErrCodeValidation, "betting session is not open",
					string(betting.DisplayState(session, s.now())))
			}
			entries = s.slip.Entries()
			var total uint64
			for _, e := range entries {
				total += e.Multiplier
			}
			if total == 0 {
				return betting.CheckWager(0, betting.WagerLimits{})
			}
			limits, err := s.Limits(ctx, id)
			if err != nil {
				return err
			}
			return betting.CheckWager(total, limits)
		},
		Send: func(ctx context.Context) (*types.Transaction, error) {
			return s.b.Manager.PlaceBets(ctx, id, entries)
		},
		Events:        s.b.Manager,
		ExpectedEvent: contracts.EventBetsPlaced,
		OnSent:        s.slip.Clear,
	})
}
