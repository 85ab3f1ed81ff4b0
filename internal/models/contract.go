package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// Contract names used in logs, metrics and the API.
const (
	ContractBetToken    = "bet_token"
	ContractStableToken = "stable_token"
	ContractStableSwap  = "bet_stable_swap"
	ContractBetManager  = "bet_manager"
	ContractBetPool     = "bet_pool"
)

// Contract identifies one deployed contract the client talks to
type Contract struct {
	Name    string         `json:"name"`
	Address common.Address `json:"address"`
}
