package action

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/contracts"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/internal/session"
	"github.com/smartdevs17/stakebet/pkg/units"
	"github.com/smartdevs17/stakebet/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddrs = config.Addresses{
	BetToken:      common.HexToAddress("0x1000000000000000000000000000000000000001"),
	BetStableSwap: common.HexToAddress("0x1000000000000000000000000000000000000002"),
	StableToken:   common.HexToAddress("0x1000000000000000000000000000000000000003"),
	BetManager:    common.HexToAddress("0x1000000000000000000000000000000000000004"),
	BetPool:       common.HexToAddress("0x1000000000000000000000000000000000000005"),
}

// chain answers eth_call per contract address and method name.
type chain struct {
	bind.ContractBackend

	mu      sync.Mutex
	abis    map[common.Address]abi.ABI
	results map[common.Address]map[string][]interface{}
	calls   []string
}

func newChain(t *testing.T) *chain {
	t.Helper()
	parse := func(raw string) abi.ABI {
		parsed, err := abi.JSON(strings.NewReader(raw))
		require.NoError(t, err)
		return parsed
	}
	c := &chain{
		abis:    make(map[common.Address]abi.ABI),
		results: make(map[common.Address]map[string][]interface{}),
	}
	c.abis[testAddrs.BetToken] = parse(contracts.TokenABI)
	c.abis[testAddrs.StableToken] = parse(contracts.TokenABI)
	c.abis[testAddrs.BetStableSwap] = parse(contracts.StableSwapABI)
	c.abis[testAddrs.BetManager] = parse(contracts.BetManagerABI)
	c.abis[testAddrs.BetPool] = parse(contracts.StakingPoolABI)
	return c
}

func (c *chain) set(addr common.Address, method string, out ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results[addr] == nil {
		c.results[addr] = make(map[string][]interface{})
	}
	c.results[addr][method] = out
}

func (c *chain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	parsed, ok := c.abis[*msg.To]
	if !ok {
		return nil, errors.New("unknown contract")
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	c.calls = append(c.calls, method.Name)
	out, ok := c.results[*msg.To][method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(out...)
}

func (c *chain) CodeAt(ctx context.Context, contract common.Address, block *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (c *chain) called(method string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.calls {
		if m == method {
			return true
		}
	}
	return false
}

// refusingSigner has an address but cannot sign, so every send is rejected.
type refusingSigner struct{}

func (refusingSigner) Address() common.Address { return owner }

func (refusingSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return nil, errors.New("user rejected request")
}

type staticSnapshots struct{ snap *models.BalanceSnapshot }

func (s staticSnapshots) Get(account common.Address) *models.BalanceSnapshot { return s.snap }

func newScreens(t *testing.T, snaps SnapshotSource) (*Screens, *chain) {
	t.Helper()
	c := newChain(t)
	b := contracts.NewBindings(testAddrs, c, refusingSigner{}, nil)
	state := &session.State{Signer: refusingSigner{}, Bindings: b}
	return NewScreens(state, snaps, &fakeWaiter{status: types.ReceiptStatusSuccessful}), c
}

func TestScreensStartGated(t *testing.T) {
	s, c := newScreens(t, nil)
	c.set(testAddrs.StableToken, "allowance", big.NewInt(0))
	c.set(testAddrs.BetToken, "allowance", units.Ether(1))

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, StateNeedsApproval, s.Swap.flows[DirectionDeposit].State())
	assert.Equal(t, StateReady, s.Swap.flows[DirectionBurn].State())
	assert.Equal(t, StateReady, s.Bet.Flow().State())
	assert.Equal(t, StateReady, s.Stake.StakeFlow().State())
	assert.Equal(t, StateReady, s.Stake.UnstakeFlow().State())
}

func TestSwapDirectionAndQuote(t *testing.T) {
	s, c := newScreens(t, nil)
	c.set(testAddrs.BetStableSwap, "SWAP_RATIO", big.NewInt(4))
	ctx := context.Background()

	assert.Equal(t, DirectionDeposit, s.Swap.Direction())
	out, err := s.Swap.Quote(ctx, units.Ether(3))
	require.NoError(t, err)
	assert.Equal(t, units.Ether(12), out)

	assert.Equal(t, DirectionBurn, s.Swap.Toggle())
	out, err = s.Swap.Quote(ctx, units.Ether(12))
	require.NoError(t, err)
	assert.Equal(t, units.Ether(3), out)

	assert.Error(t, s.Swap.SetDirection("sideways"))
	require.NoError(t, s.Swap.SetDirection(DirectionDeposit))
	assert.Same(t, s.Swap.flows[DirectionDeposit], s.Swap.Flow())

	_, err = quote(DirectionBurn, big.NewInt(1), big.NewInt(0))
	assert.Error(t, err)
}

func TestSwapAmountGuard(t *testing.T) {
	s, c := newScreens(t, nil)
	c.set(testAddrs.StableToken, "balanceOf", units.Ether(5))
	c.set(testAddrs.StableToken, "allowance", units.Ether(5))
	ctx := context.Background()
	_, err := s.Swap.Flow().Refresh(ctx)
	require.NoError(t, err)

	_, err = s.Swap.Swap(ctx, big.NewInt(0))
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = s.Swap.Swap(ctx, units.Ether(6))
	assert.ErrorIs(t, err, utils.ErrValidation)

	// Valid amount reaches the signer, which refuses.
	res, err := s.Swap.Swap(ctx, units.Ether(5))
	assert.ErrorIs(t, err, utils.ErrTransaction)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, StateReady, s.Swap.Flow().State())
}

func TestBetPlaceGuards(t *testing.T) {
	s, c := newScreens(t, nil)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s.Bet.now = func() time.Time { return now }

	setSession := func(start int64, state uint8) {
		c.set(testAddrs.BetManager, "bettingSessions",
			big.NewInt(start), big.NewInt(start+3600), "42", big.NewInt(0), big.NewInt(0), state)
	}
	c.set(testAddrs.BetManager, "TOKEN_AMOUNT_PER_BET", units.Ether(10))
	c.set(testAddrs.BetManager, "MAX_TOKENS_PER_SESSION", units.Ether(100))
	c.set(testAddrs.BetManager, "totalTokensBetPerSessionIdPerUser", units.Ether(40))
	c.set(testAddrs.BetToken, "balanceOf", units.Ether(1000))
	c.set(testAddrs.BetToken, "allowance", units.Ether(1000))
	_, err := s.Bet.Flow().Refresh(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Bet.Slip().Add(7, 3))

	t.Run("session already started", func(t *testing.T) {
		setSession(now.Unix()-1, uint8(models.SessionStateOpen))
		_, err := s.Bet.Place(ctx, big.NewInt(1))
		assert.ErrorIs(t, err, utils.ErrValidation)
		assert.Equal(t, 1, s.Bet.Slip().Len())
	})

	t.Run("settled session", func(t *testing.T) {
		setSession(now.Unix()+60, uint8(models.SessionStateSettled))
		_, err := s.Bet.Place(ctx, big.NewInt(1))
		assert.ErrorIs(t, err, utils.ErrValidation)
	})

	t.Run("over session maximum", func(t *testing.T) {
		setSession(now.Unix()+60, uint8(models.SessionStateOpen))
		require.NoError(t, s.Bet.Slip().Add(8, 4))
		_, err := s.Bet.Place(ctx, big.NewInt(1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "per-session maximum")
		assert.Equal(t, 2, s.Bet.Slip().Len())
		assert.False(t, c.called("placeBets"))
		s.Bet.Slip().Remove(8)
	})

	t.Run("valid slip is sent and kept on rejection", func(t *testing.T) {
		setSession(now.Unix()+60, uint8(models.SessionStateOpen))
		res, err := s.Bet.Place(ctx, big.NewInt(1))
		assert.ErrorIs(t, err, utils.ErrTransaction)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Equal(t, 1, s.Bet.Slip().Len())
	})
}

func TestStakeGuards(t *testing.T) {
	s, c := newScreens(t, nil)
	ctx := context.Background()
	c.set(testAddrs.BetToken, "balanceOf", units.Ether(2))
	c.set(testAddrs.BetPool, "balanceOf", big.NewInt(0))

	_, err := s.Stake.Unstake(ctx)
	assert.ErrorIs(t, err, utils.ErrValidation)
	assert.Equal(t, StateReady, s.Stake.UnstakeFlow().State())

	// stake flow is gated until an allowance is read
	_, err = s.Stake.Stake(ctx, units.Ether(1))
	assert.ErrorIs(t, err, utils.ErrInvalidState)
}

func TestPoolStats(t *testing.T) {
	s, c := newScreens(t, nil)
	c.set(testAddrs.BetPool, "totalSupply", units.Ether(1000))
	c.set(testAddrs.BetPool, "rewardPerTokenStored", big.NewInt(5))
	c.set(testAddrs.BetPool, "balanceOf", units.Ether(100))
	c.set(testAddrs.BetPool, "earned", units.Ether(1))
	c.set(testAddrs.BetToken, "balanceOf", units.Ether(1070))

	stats, err := s.Stake.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, units.Ether(70), stats.RewardPool)
	assert.InDelta(t, 365.0, stats.APR, 1e-9)
	assert.Equal(t, "70", FormatStats(stats)["reward_pool"])
}

func TestAPR(t *testing.T) {
	assert.Equal(t, float64(0), APR(units.Ether(10), big.NewInt(0)))
	assert.InDelta(t, 521.428571, APR(units.Ether(1), units.Ether(10)), 1e-5)
	assert.Equal(t, int64(0), RewardPool(units.Ether(1), units.Ether(2)).Int64())
}

func TestClaimEnabledBySnapshot(t *testing.T) {
	snap := &models.BalanceSnapshot{
		Account:              owner,
		TokenBalance:         units.Ether(1),
		ClaimableFromManager: big.NewInt(0),
		ClaimableFromPool:    units.Ether(2),
	}
	s, _ := newScreens(t, staticSnapshots{snap: snap})

	controls := s.Claim.Controls()
	assert.False(t, controls.Winnings.ActionEnabled)
	assert.True(t, controls.Rewards.ActionEnabled)

	_, err := s.Claim.ClaimWinnings(context.Background())
	assert.ErrorIs(t, err, utils.ErrValidation)

	res, err := s.Claim.ClaimReward(context.Background())
	assert.ErrorIs(t, err, utils.ErrTransaction)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	none, _ := newScreens(t, staticSnapshots{})
	assert.False(t, none.Claim.Controls().Rewards.ActionEnabled)
}

func TestEndSessionRequiresManager(t *testing.T) {
	s, c := newScreens(t, nil)
	var role [32]byte
	c.set(testAddrs.BetManager, "BETTING_SESSION_MANAGER_ROLE", role)
	c.set(testAddrs.BetManager, "hasRole", false)

	_, err := s.Admin.EndSession(context.Background(), big.NewInt(3))
	assert.ErrorIs(t, err, utils.ErrUnauthorized)

	c.set(testAddrs.BetManager, "hasRole", true)
	ok, err := s.Admin.IsManager(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
