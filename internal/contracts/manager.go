package contracts

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/internal/wallet"
)

// Receipt events emitted by the bet manager.
const (
	EventBetsPlaced   = "BetsPlaced"
	EventTokenClaimed = "TokenClaimed"
)

// BetInput is the on-chain tuple for one slip line.
type BetInput struct {
	Guess      *big.Int
	Multiplier *big.Int
}

// BetManager binds the bet-manager contract.
type BetManager struct {
	*contract
}

// NewBetManager binds the bet manager at address.
func NewBetManager(address common.Address, backend bind.ContractBackend, signer wallet.Signer, m *metrics.Manager) *BetManager {
	return &BetManager{contract: newContract("bet_manager", address, betManagerABI, backend, signer, m)}
}

// SessionCount returns the number of betting sessions ever created.
func (b *BetManager) SessionCount(ctx context.Context) (uint64, error) {
	n, err := b.callBig(ctx, "getSessionIdsLength")
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, b.decodeError("getSessionIdsLength", n.String())
	}
	return n.Uint64(), nil
}

// SessionIDs returns the ids in [start, end).
func (b *BetManager) SessionIDs(ctx context.Context, start, end uint64) ([]*big.Int, error) {
	out, err := b.call(ctx, "getBettingSessionIdsBySlice", new(big.Int).SetUint64(start), new(big.Int).SetUint64(end))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, b.decodeError("getBettingSessionIdsBySlice", "empty result")
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, b.decodeError("getBettingSessionIdsBySlice", fmt.Sprintf("unexpected type %T", out[0]))
	}
	return ids, nil
}

// Session reads one betting session record.
func (b *BetManager) Session(ctx context.Context, id *big.Int) (*models.BettingSession, error) {
	out, err := b.call(ctx, "bettingSessions", id)
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, b.decodeError("bettingSessions", fmt.Sprintf("expected 6 outputs, got %d", len(out)))
	}

	start, ok1 := out[0].(*big.Int)
	end, ok2 := out[1].(*big.Int)
	subject, ok3 := out[2].(string)
	result, ok4 := out[3].(*big.Int)
	total, ok5 := out[4].(*big.Int)
	state, ok6 := out[5].(uint8)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return nil, b.decodeError("bettingSessions", "unexpected output types")
	}

	return &models.BettingSession{
		ID:           new(big.Int).Set(id),
		StartTime:    time.Unix(start.Int64(), 0).UTC(),
		EndTime:      time.Unix(end.Int64(), 0).UTC(),
		SubjectID:    subject,
		Result:       result,
		TotalWagered: total,
		State:        models.SessionState(state),
	}, nil
}

// WageredBy returns how many tokens user has already bet on session id.
func (b *BetManager) WageredBy(ctx context.Context, id *big.Int, user common.Address) (*big.Int, error) {
	return b.callBig(ctx, "totalTokensBetPerSessionIdPerUser", id, user)
}

// TokensToClaim returns winnings user can claim.
func (b *BetManager) TokensToClaim(ctx context.Context, user common.Address) (*big.Int, error) {
	return b.callBig(ctx, "tokensToClaim", user)
}

// TokenAmountPerBet is the token cost of a multiplier of one.
func (b *BetManager) TokenAmountPerBet(ctx context.Context) (*big.Int, error) {
	return b.callBig(ctx, "TOKEN_AMOUNT_PER_BET")
}

// MaxTokensPerSession caps one user's wager on a session.
func (b *BetManager) MaxTokensPerSession(ctx context.Context) (*big.Int, error) {
	return b.callBig(ctx, "MAX_TOKENS_PER_SESSION")
}

// IsSessionManager reports whether user holds the session manager role.
func (b *BetManager) IsSessionManager(ctx context.Context, user common.Address) (bool, error) {
	out, err := b.call(ctx, "BETTING_SESSION_MANAGER_ROLE")
	if err != nil {
		return false, err
	}
	if len(out) == 0 {
		return false, b.decodeError("BETTING_SESSION_MANAGER_ROLE", "empty result")
	}
	role, ok := out[0].([32]byte)
	if !ok {
		return false, b.decodeError("BETTING_SESSION_MANAGER_ROLE", fmt.Sprintf("unexpected type %T", out[0]))
	}

	out, err = b.call(ctx, "hasRole", role, user)
	if err != nil {
		return false, err
	}
	if len(out) == 0 {
		return false, b.decodeError("hasRole", "empty result")
	}
	has, ok := out[0].(bool)
	if !ok {
		return false, b.decodeError("hasRole", fmt.Sprintf("unexpected type %T", out[0]))
	}
	return has, nil
}

// PlaceBets submits a slip on session id.
func (b *BetManager) PlaceBets(ctx context.Context, id *big.Int, bets []models.BetEntry) (*types.Transaction, error) {
	inputs := make([]BetInput, len(bets))
	for i, bet := range bets {
		inputs[i] = BetInput{
			Guess:      new(big.Int).SetUint64(bet.Guess),
			Multiplier: new(big.Int).SetUint64(bet.Multiplier),
		}
	}
	return b.transact(ctx, "placeBets", id, inputs)
}

// ClaimTokens withdraws the caller's winnings.
func (b *BetManager) ClaimTokens(ctx context.Context) (*types.Transaction, error) {
	return b.transact(ctx, "claimTokens")
}

// EndBettingSession closes session id. Only session managers may call it.
func (b *BetManager) EndBettingSession(ctx context.Context, id *big.Int) (*types.Transaction, error) {
	return b.transact(ctx, "endBettingSession", id)
}
