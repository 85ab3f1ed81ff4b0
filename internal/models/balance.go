package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Balance fields refreshed on every block.
const (
	FieldTokenBalance         = "token_balance"
	FieldClaimableFromManager = "claimable_from_manager"
	FieldClaimableFromPool    = "claimable_from_pool"
)

// BalanceSnapshot is the latest known view of an account's balances.
// A nil field has not been read yet.
type BalanceSnapshot struct {
	Account              common.Address `json:"account" db:"account"`
	TokenBalance         *big.Int       `json:"token_balance" db:"token_balance"`
	ClaimableFromManager *big.Int       `json:"claimable_from_manager" db:"claimable_from_manager"`
	ClaimableFromPool    *big.Int       `json:"claimable_from_pool" db:"claimable_from_pool"`
	BlockNumber          uint64         `json:"block_number" db:"block_number"`
	UpdatedAt            time.Time      `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy.
func (s *BalanceSnapshot) Clone() *BalanceSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.TokenBalance = cloneBig(s.TokenBalance)
	out.ClaimableFromManager = cloneBig(s.ClaimableFromManager)
	out.ClaimableFromPool = cloneBig(s.ClaimableFromPool)
	return &out
}

// Field returns the value of a named field.
func (s *BalanceSnapshot) Field(name string) *big.Int {
	switch name {
	case FieldTokenBalance:
		return s.TokenBalance
	case FieldClaimableFromManager:
		return s.ClaimableFromManager
	case FieldClaimableFromPool:
		return s.ClaimableFromPool
	}
	return nil
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
