package action

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/stakebet/internal/contracts"
	"github.com/smartdevs17/stakebet/pkg/units"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// Direction of a stable swap.
type Direction string

const (
	// DirectionDeposit trades stable tokens for bet tokens.
	DirectionDeposit Direction = "deposit"
	// DirectionBurn trades bet tokens back for stable tokens.
	DirectionBurn Direction = "burn"
)

// ParseDirection validates a direction name.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionDeposit, DirectionBurn:
		return Direction(s), nil
	}
	return "", utils.NewAppError(utils.ErrCodeValidation, "unknown swap direction", s)
}

// SwapView is what the swap screen shows.
type SwapView struct {
	Direction  Direction `json:"direction"`
	Controls   Controls  `json:"controls"`
	BalanceIn  string    `json:"balance_in"`
	BalanceOut string    `json:"balance_out"`
	Ratio      string    `json:"ratio"`
}

// SwapScreen converts between the stable and the bet token. Each direction
// has its own approval flow with the swap contract as spender.
type SwapScreen struct {
	b     *contracts.Bindings
	flows map[Direction]*Flow

	mu        sync.Mutex
	direction Direction
}

func newSwapScreen(b *contracts.Bindings, waiter Waiter, opts ...FlowOption) *SwapScreen {
	account := b.Signer.Address()
	spender := b.Swap.Address()
	return &SwapScreen{
		b: b,
		flows: map[Direction]*Flow{
			DirectionDeposit: NewFlow("swap_deposit", account, &Gate{Token: b.StableToken, Owner: account, Spender: spender}, waiter, opts...),
			DirectionBurn:    NewFlow("swap_burn", account, &Gate{Token: b.BetToken, Owner: account, Spender: spender}, waiter, opts...),
		},
		direction: DirectionDeposit,
	}
}

// Direction returns the selected direction.
func (s *SwapScreen) Direction() Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direction
}

// SetDirection selects a direction.
func (s *SwapScreen) SetDirection(d Direction) error {
	if _, err := ParseDirection(string(d)); err != nil {
		return err
	}
	s.mu.Lock()
	s.direction = d
	s.mu.Unlock()
	return nil
}

// Toggle flips the direction and returns the new one.
func (s *SwapScreen) Toggle() Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.direction == DirectionDeposit {
		s.direction = DirectionBurn
	} else {
		s.direction = DirectionDeposit
	}
	return s.direction
}

// Flow returns the flow for the selected direction.
func (s *SwapScreen) Flow() *Flow {
	return s.flows[s.Direction()]
}

func (s *SwapScreen) tokens(d Direction) (in, out *contracts.Token) {
	if d == DirectionBurn {
		return s.b.BetToken, s.b.StableToken
	}
	return s.b.StableToken, s.b.BetToken
}

// Quote returns what amountIn yields in the selected direction.
func (s *SwapScreen) Quote(ctx context.Context, amountIn *big.Int) (*big.Int, error) {
	ratio, err := s.b.Swap.SwapRatio(ctx)
	if err != nil {
		return nil, err
	}
	return quote(s.Direction(), amountIn, ratio)
}

func quote(d Direction, amountIn, ratio *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "amount must not be negative")
	}
	if d == DirectionDeposit {
		return new(big.Int).Mul(amountIn, ratio), nil
	}
	if ratio.Sign() == 0 {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "swap ratio is zero")
	}
	return new(big.Int).Quo(amountIn, ratio), nil
}

// View refreshes the active flow and reads both balances.
func (s *SwapScreen) View(ctx context.Context) (*SwapView, error) {
	d := s.Direction()
	flow := s.flows[d]
	if _, err := flow.Refresh(ctx); err != nil {
		return nil, err
	}
	in, out := s.tokens(d)
	account := s.b.Signer.Address()

	balIn, err := in.BalanceOf(ctx, account)
	if err != nil {
		return nil, err
	}
	balOut, err := out.BalanceOf(ctx, account)
	if err != nil {
		return nil, err
	}
	ratio, err := s.b.Swap.SwapRatio(ctx)
	if err != nil {
		return nil, err
	}
	return &SwapView{
		Direction:  d,
		Controls:   flow.Controls(),
		BalanceIn:  units.FormatEther(balIn),
		BalanceOut: units.FormatEther(balOut),
		Ratio:      ratio.String(),
	}, nil
}

// Approve grants the swap contract an unlimited allowance of the token-in.
func (s *SwapScreen) Approve(ctx context.Context) (*Result, error) {
	return s.Flow().Approve(ctx)
}

// Swap trades amount of the token-in. Success is decided by receipt status.
func (s *SwapScreen) Swap(ctx context.Context, amount *big.Int) (*Result, error) {
	d := s.Direction()
	in, _ := s.tokens(d)
	account := s.b.Signer.Address()

	return s.flows[d].Submit(ctx, Act{
		Name: "swap_" + string(d),
		Validate: func(ctx context.Context) error {
			balance, err := in.BalanceOf(ctx, account)
			if err != nil {
				return err
			}
			return checkAmount(amount, balance)
		},
		Send: func(ctx context.Context) (*types.Transaction, error) {
			if d == DirectionBurn {
				return s.b.Swap.BurnBet(ctx, amount)
			}
			return s.b.Swap.DepositStable(ctx, amount)
		},
	})
}

// checkAmount requires 0 < amount <= balance.
func checkAmount(amount, balance *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "amount must be greater than zero")
	}
	if amount.Cmp(balance) > 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "amount exceeds balance",
			units.FormatEther(amount)+" > "+units.FormatEther(balance))
	}
	return nil
}
