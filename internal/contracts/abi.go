package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// TokenABI is the fungible-token surface used for both the bet and the stable token.
const TokenABI = `[
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"event","name":"Approval","anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":true,"name":"spender","type":"address"},{"indexed":false,"name":"value","type":"uint256"}]},
 {"type":"event","name":"Transfer","anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}]}
]`

// StableSwapABI converts between the stable token and the bet token.
const StableSwapABI = `[
 {"type":"function","name":"SWAP_RATIO","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"depositStableTokenForBetToken","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"burnBetTokenForStableToken","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// BetManagerABI holds betting sessions and pays out winnings.
const BetManagerABI = `[
 {"type":"function","name":"getSessionIdsLength","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getBettingSessionIdsBySlice","stateMutability":"view","inputs":[{"name":"start","type":"uint256"},{"name":"end","type":"uint256"}],"outputs":[{"name":"","type":"uint256[]"}]},
 {"type":"function","name":"bettingSessions","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
   {"name":"startTimestamp","type":"uint256"},
   {"name":"endTimestamp","type":"uint256"},
   {"name":"twitterUserId","type":"string"},
   {"name":"betResult","type":"uint256"},
   {"name":"totalTokensBet","type":"uint256"},
   {"name":"state","type":"uint8"}]},
 {"type":"function","name":"totalTokensBetPerSessionIdPerUser","stateMutability":"view","inputs":[{"name":"","type":"uint256"},{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"tokensToClaim","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"TOKEN_AMOUNT_PER_BET","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"MAX_TOKENS_PER_SESSION","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"BETTING_SESSION_MANAGER_ROLE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
 {"type":"function","name":"hasRole","stateMutability":"view","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"placeBets","stateMutability":"nonpayable","inputs":[{"name":"bettingSessionId","type":"uint256"},{"name":"bets","type":"tuple[]","components":[{"name":"guess","type":"uint256"},{"name":"multiplier","type":"uint256"}]}],"outputs":[]},
 {"type":"function","name":"claimTokens","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"function","name":"endBettingSession","stateMutability":"nonpayable","inputs":[{"name":"bettingSessionId","type":"uint256"}],"outputs":[]},
 {"type":"event","name":"BetsPlaced","anonymous":false,"inputs":[{"indexed":true,"name":"bettingSessionId","type":"uint256"},{"indexed":true,"name":"user","type":"address"},{"indexed":false,"name":"tokens","type":"uint256"}]},
 {"type":"event","name":"TokenClaimed","anonymous":false,"inputs":[{"indexed":true,"name":"user","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}]}
]`

// StakingPoolABI is a staking-rewards pool over the bet token.
const StakingPoolABI = `[
 {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"rewardPerTokenStored","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"earned","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"stake","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"getReward","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"function","name":"exit","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"event","name":"Staked","anonymous":false,"inputs":[{"indexed":true,"name":"user","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}]},
 {"type":"event","name":"Withdrawn","anonymous":false,"inputs":[{"indexed":true,"name":"user","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}]},
 {"type":"event","name":"RewardPaid","anonymous":false,"inputs":[{"indexed":true,"name":"user","type":"address"},{"indexed":false,"name":"reward","type":"uint256"}]}
]`

var (
	tokenABI       = mustParseABI(TokenABI)
	stableSwapABI  = mustParseABI(StableSwapABI)
	betManagerABI  = mustParseABI(BetManagerABI)
	stakingPoolABI = mustParseABI(StakingPoolABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
