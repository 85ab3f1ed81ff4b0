package action

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/stakebet/internal/contracts"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// AdminScreen lets a session manager end betting sessions.
type AdminScreen struct {
	b    *contracts.Bindings
	flow *Flow
}

func newAdminScreen(b *contracts.Bindings, waiter Waiter, opts ...FlowOption) *AdminScreen {
	return &AdminScreen{
		b:    b,
		flow: NewFlow("end_session", b.Signer.Address(), nil, waiter, opts...),
	}
}

// IsManager reports whether the connected account holds the manager role.
func (s *AdminScreen) IsManager(ctx context.Context) (bool, error) {
	return s.b.Manager.IsSessionManager(ctx, s.b.Signer.Address())
}

// EndSession ends betting session id. Only managers may call it and
// success is decided by receipt status.
func (s *AdminScreen) EndSession(ctx context.Context, id *big.Int) (*Result, error) {
	return s.flow.Submit(ctx, Act{
		Name: "end_session",
		Validate: func(ctx context.Context) error {
			if id == nil || id.Sign() < 0 {
				return utils.NewAppError(utils.ErrCodeValidation, "invalid betting session id")
			}
			ok, err := s.IsManager(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return utils.ErrUnauthorized
			}
			return nil
		},
		Send: func(ctx context.Context) (*types.Transaction, error) {
			return s.b.Manager.EndBettingSession(ctx, id)
		},
	})
}
