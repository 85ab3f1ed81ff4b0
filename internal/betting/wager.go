package betting

import (
	"math/big"

	"github.com/smartdevs17/stakebet/pkg/units"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// WagerLimits are the contract values a new slip is checked against.
type WagerLimits struct {
	PerBet         *big.Int
	MaxPerSession  *big.Int
	AlreadyWagered *big.Int
	Balance        *big.Int
}

// WagerCost is what a slip with totalMultiplier costs in tokens.
func WagerCost(totalMultiplier uint64, perBet *big.Int) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(totalMultiplier), perBet)
}

// CheckWager blocks a slip locally when the caller's total stake on the
// session would pass the per-session maximum, or when the new stake exceeds
// the caller's balance. The contract enforces the same rules.
func CheckWager(totalMultiplier uint64, limits WagerLimits) error {
	if totalMultiplier == 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "bet slip is empty")
	}
	if limits.PerBet == nil || limits.MaxPerSession == nil || limits.Balance == nil {
		return utils.NewAppError(utils.ErrCodeValidation, "wager limits unavailable")
	}

	cost := WagerCost(totalMultiplier, limits.PerBet)
	already := limits.AlreadyWagered
	if already == nil {
		already = new(big.Int)
	}

	total := new(big.Int).Add(already, cost)
	if total.Cmp(limits.MaxPerSession) > 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "wager exceeds per-session maximum",
			units.FormatEther(total)+" > "+units.FormatEther(limits.MaxPerSession))
	}
	if cost.Cmp(limits.Balance) > 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "insufficient token balance",
			units.FormatEther(cost)+" > "+units.FormatEther(limits.Balance))
	}
	return nil
}
