package contracts

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChain answers eth_call with ABI-packed canned outputs. Any other
// backend method panics through the nil embedded interface.
type fakeChain struct {
	bind.ContractBackend

	mu      sync.Mutex
	abis    map[common.Address]abi.ABI
	results map[string][]interface{}
	fail    map[string]error
	calls   []string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		abis:    make(map[common.Address]abi.ABI),
		results: make(map[string][]interface{}),
		fail:    make(map[string]error),
	}
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parsed, ok := f.abis[*msg.To]
	if !ok {
		return nil, errors.New("unknown contract")
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, method.Name)
	if err := f.fail[method.Name]; err != nil {
		return nil, err
	}
	return method.Outputs.Pack(f.results[method.Name]...)
}

func (f *fakeChain) CodeAt(ctx context.Context, contract common.Address, block *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

var testAddrs = config.Addresses{
	BetToken:      common.HexToAddress("0x1000000000000000000000000000000000000001"),
	BetStableSwap: common.HexToAddress("0x1000000000000000000000000000000000000002"),
	StableToken:   common.HexToAddress("0x1000000000000000000000000000000000000003"),
	BetManager:    common.HexToAddress("0x1000000000000000000000000000000000000004"),
	BetPool:       common.HexToAddress("0x1000000000000000000000000000000000000005"),
}

func newTestBindings(t *testing.T) (*Bindings, *fakeChain) {
	t.Helper()
	chain := newFakeChain()
	chain.abis[testAddrs.BetToken] = tokenABI
	chain.abis[testAddrs.StableToken] = tokenABI
	chain.abis[testAddrs.BetStableSwap] = stableSwapABI
	chain.abis[testAddrs.BetManager] = betManagerABI
	chain.abis[testAddrs.BetPool] = stakingPoolABI
	return NewBindings(testAddrs, chain, nil, nil), chain
}

func TestBalanceViews(t *testing.T) {
	b, chain := newTestBindings(t)
	ctx := context.Background()
	owner := common.HexToAddress("0xabc")

	chain.results["balanceOf"] = []interface{}{big.NewInt(42)}
	chain.results["tokensToClaim"] = []interface{}{big.NewInt(7)}
	chain.results["earned"] = []interface{}{big.NewInt(3)}

	v, err := b.TokenBalance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int64())

	v, err = b.ClaimableFromManager(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.Int64())

	v, err = b.ClaimableFromPool(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Int64())

	chain.fail["earned"] = errors.New("execution reverted")
	_, err = b.ClaimableFromPool(ctx, owner)
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeBlockchain, utils.CodeOf(err))
}

func TestBetManagerReads(t *testing.T) {
	b, chain := newTestBindings(t)
	ctx := context.Background()

	chain.results["getSessionIdsLength"] = []interface{}{big.NewInt(250)}
	chain.results["getBettingSessionIdsBySlice"] = []interface{}{[]*big.Int{big.NewInt(1), big.NewInt(2)}}
	chain.results["bettingSessions"] = []interface{}{
		big.NewInt(1700000000), big.NewInt(1700086400), "12345", big.NewInt(0), big.NewInt(500), uint8(1),
	}

	count, err := b.Manager.SessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), count)

	ids, err := b.Manager.SessionIDs(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	session, err := b.Manager.Session(ctx, big.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, "12345", session.SubjectID)
	assert.Equal(t, int64(1700000000), session.StartTime.Unix())
	assert.Equal(t, models.SessionStateResultRequested, session.State)
	assert.Equal(t, int64(500), session.TotalWagered.Int64())
	assert.Equal(t, int64(2), session.ID.Int64())
}

func TestIsSessionManager(t *testing.T) {
	b, chain := newTestBindings(t)

	var role [32]byte
	copy(role[:], []byte("manager"))
	chain.results["BETTING_SESSION_MANAGER_ROLE"] = []interface{}{role}
	chain.results["hasRole"] = []interface{}{true}

	ok, err := b.Manager.IsSessionManager(context.Background(), common.HexToAddress("0xabc"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"BETTING_SESSION_MANAGER_ROLE", "hasRole"}, chain.calls)
}

func TestTransactWithoutSigner(t *testing.T) {
	b, _ := newTestBindings(t)

	_, err := b.Pool.Stake(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, utils.ErrNotConnected)

	_, err = b.BetToken.ApproveMax(context.Background(), testAddrs.BetPool)
	assert.ErrorIs(t, err, utils.ErrNotConnected)
}

func TestHasEvent(t *testing.T) {
	b, _ := newTestBindings(t)

	staked, ok := b.Pool.EventID(EventStaked)
	require.True(t, ok)

	receipt := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{
			{Address: testAddrs.BetPool, Topics: []common.Hash{staked}},
		},
	}
	assert.True(t, b.Pool.HasEvent(receipt, EventStaked))
	assert.False(t, b.Pool.HasEvent(receipt, EventWithdrawn))
	assert.False(t, b.Pool.HasEvent(receipt, "NoSuchEvent"))
	assert.False(t, b.Pool.HasEvent(nil, EventStaked))

	// Same topic from a different emitter does not count.
	assert.False(t, b.Manager.HasEvent(&types.Receipt{
		Logs: []*types.Log{{Address: testAddrs.BetToken, Topics: []common.Hash{staked}}},
	}, EventStaked))
}

func TestBindingsContracts(t *testing.T) {
	b, _ := newTestBindings(t)
	list := b.Contracts()
	require.Len(t, list, 5)
	assert.Equal(t, models.ContractBetToken, list[0].Name)
	assert.Equal(t, testAddrs.BetPool, list[4].Address)
}
