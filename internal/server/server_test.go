package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"github.com/smartdevs17/stakebet/internal/betting"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/contracts"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/internal/monitor"
	"github.com/smartdevs17/stakebet/internal/session"
	"github.com/smartdevs17/stakebet/internal/storage"
	"github.com/smartdevs17/stakebet/internal/wallet"
	"github.com/smartdevs17/stakebet/pkg/units"
	"github.com/smartdevs17/stakebet/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	betToken    = common.HexToAddress("0x2000000000000000000000000000000000000001")
	stableSwap  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	stableToken = common.HexToAddress("0x2000000000000000000000000000000000000003")
	betManager  = common.HexToAddress("0x2000000000000000000000000000000000000004")
	betPool     = common.HexToAddress("0x2000000000000000000000000000000000000005")

	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// chain answers eth_call per contract address and method name.
type chain struct {
	bind.ContractBackend

	mu      sync.Mutex
	abis    map[common.Address]abi.ABI
	results map[common.Address]map[string][]interface{}
}

func newChain(t *testing.T) *chain {
	t.Helper()
	parse := func(raw string) abi.ABI {
		parsed, err := abi.JSON(strings.NewReader(raw))
		require.NoError(t, err)
		return parsed
	}
	return &chain{
		abis: map[common.Address]abi.ABI{
			betToken:    parse(contracts.TokenABI),
			stableToken: parse(contracts.TokenABI),
			stableSwap:  parse(contracts.StableSwapABI),
			betManager:  parse(contracts.BetManagerABI),
			betPool:     parse(contracts.StakingPoolABI),
		},
		results: make(map[common.Address]map[string][]interface{}),
	}
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
	out, ok := c.results[*msg.To][method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(out...)
}

func (c *chain) CodeAt(ctx context.Context, contract common.Address, block *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

// refusingSigner has an address but cannot sign.
type refusingSigner struct{ addr common.Address }

func (s refusingSigner) Address() common.Address { return s.addr }

func (s refusingSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return nil, errors.New("user rejected request")
}

type fakeSessions struct {
	sessions []*models.BettingSession
}

func (f *fakeSessions) SessionCount(ctx context.Context) (uint64, error) {
	return uint64(len(f.sessions)), nil
}

func (f *fakeSessions) SessionIDs(ctx context.Context, start, end uint64) ([]*big.Int, error) {
	var ids []*big.Int
	for i := start; i < end && i < uint64(len(f.sessions)); i++ {
		ids = append(ids, f.sessions[i].ID)
	}
	return ids, nil
}

func (f *fakeSessions) Session(ctx context.Context, id *big.Int) (*models.BettingSession, error) {
	for _, s := range f.sessions {
		if s.ID.Cmp(id) == 0 {
			return s, nil
		}
	}
	return nil, utils.NewAppError(utils.ErrCodeNotFound, "Betting session not found", id.String())
}

func (f *fakeSessions) WageredBy(ctx context.Context, id *big.Int, user common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

type noWaiter struct{}

func (noWaiter) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return nil, errors.New("no transactions expected")
}

type testServer struct {
	*HTTPServer
	chain     *chain
	session   *session.Session
	snapshots *monitor.SnapshotStore
	signer    wallet.Signer
}

func newTestServer(t *testing.T, mutate func(*Dependencies)) *testServer {
	t.Helper()
	c := newChain(t)
	sess, err := session.New(config.ContractsConfig{
		BetToken:      betToken.Hex(),
		BetStableSwap: stableSwap.Hex(),
		StableToken:   stableToken.Hex(),
		BetManager:    betManager.Hex(),
		BetPool:       betPool.Hex(),
	}, c, nil)
	require.NoError(t, err)

	now := time.Now()
	sessions := &fakeSessions{sessions: []*models.BettingSession{
		{ID: big.NewInt(0), StartTime: now.Add(-time.Hour), State: models.SessionStateOpen, TotalWagered: units.Ether(3)},
		{ID: big.NewInt(1), StartTime: now.Add(time.Hour), State: models.SessionStateOpen, TotalWagered: big.NewInt(0)},
		{ID: big.NewInt(2), StartTime: now.Add(-2 * time.Hour), State: models.SessionStateSettled, TotalWagered: big.NewInt(0)},
	}}

	ts := &testServer{
		chain:     c,
		session:   sess,
		snapshots: monitor.NewSnapshotStore(),
		signer:    refusingSigner{addr: alice},
	}
	deps := Dependencies{
		Session:   sess,
		Connect:   func(ctx context.Context) (wallet.Signer, error) { return ts.signer, nil },
		Snapshots: ts.snapshots,
		Loader:    betting.LoaderConfig{},
		SessionSource: func(*session.State) betting.SessionSource {
			return sessions
		},
		Waiter:  noWaiter{},
		Version: "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := NewHTTPServer(&config.ServerConfig{Host: "127.0.0.1", Port: 0}, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop() })
	ts.HTTPServer = srv
	ts.snapshots.AddSink(srv.deps.Hub)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func (ts *testServer) connect(t *testing.T) {
	t.Helper()
	code, _ := ts.do(t, http.MethodPost, "/api/v1/session/connect", nil)
	require.Equal(t, http.StatusOK, code)
}

func TestNewHTTPServerRequiresDependencies(t *testing.T) {
	_, err := NewHTTPServer(&config.ServerConfig{}, Dependencies{})
	assert.ErrorIs(t, err, utils.ErrConfiguration)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	code, body := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["connected"])
	assert.Equal(t, "test", body["version"])
}

func TestActionsRequireConnection(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/api/v1/bets/slip", "/api/v1/swap", "/api/v1/staking", "/api/v1/rewards", "/api/v1/balances"} {
		code, body := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusConflict, code, path)
		assert.Equal(t, utils.ErrCodeNotConnected, body["code"], path)
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	ts := newTestServer(t, nil)

	code, body := ts.do(t, http.MethodPost, "/api/v1/session/connect", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, alice.Hex(), body["account"])
	assert.Len(t, body["contracts"], 5)

	code, body = ts.do(t, http.MethodPost, "/api/v1/session/disconnect", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["connected"])

	code, _ = ts.do(t, http.MethodGet, "/api/v1/bets/slip", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestConnectWithoutWallet(t *testing.T) {
	ts := newTestServer(t, func(d *Dependencies) { d.Connect = nil })

	code, _ := ts.do(t, http.MethodPost, "/api/v1/session/connect", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, ts.session.Connected())
}

func TestSlipEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.chain.set(betToken, "allowance", units.Ether(1))
	ts.connect(t)

	code, body := ts.do(t, http.MethodPost, "/api/v1/bets/slip", slipEntryRequest{Guess: 3, Multiplier: 2})
	require.Equal(t, http.StatusCreated, code)
	assert.EqualValues(t, 2, body["total_multiplier"])

	code, body = ts.do(t, http.MethodPost, "/api/v1/bets/slip", slipEntryRequest{Guess: 3, Multiplier: 1})
	require.Equal(t, http.StatusCreated, code)
	assert.EqualValues(t, 3, body["total_multiplier"])
	assert.Len(t, body["entries"], 1)

	code, _ = ts.do(t, http.MethodPost, "/api/v1/bets/slip", slipEntryRequest{Guess: 4, Multiplier: 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = ts.do(t, http.MethodGet, "/api/v1/bets/slip", nil)
	require.Equal(t, http.StatusOK, code)
	controls := body["controls"].(map[string]interface{})
	assert.Equal(t, "ready", controls["state"])

	code, _ = ts.do(t, http.MethodDelete, "/api/v1/bets/slip/9", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = ts.do(t, http.MethodDelete, "/api/v1/bets/slip/3", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["entries"])
}

func TestSlipDroppedOnSignerChange(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.connect(t)

	code, _ := ts.do(t, http.MethodPost, "/api/v1/bets/slip", slipEntryRequest{Guess: 1, Multiplier: 1})
	require.Equal(t, http.StatusCreated, code)

	ts.signer = refusingSigner{addr: bob}
	ts.connect(t)

	screens, err := ts.currentScreens()
	require.NoError(t, err)
	assert.Equal(t, bob, screens.Account)
	assert.Zero(t, screens.Bet.Slip().Len())
}

func TestBettingSessionsNeedConnection(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/api/v1/betting-sessions", "/api/v1/betting-sessions/1"} {
		code, body := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusConflict, code, path)
		assert.Equal(t, utils.ErrCodeNotConnected, body["code"], path)
	}
	assert.Zero(t, ts.session.BindingsBuilt())

	ts.connect(t)
	code, _ := ts.do(t, http.MethodGet, "/api/v1/betting-sessions", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, ts.session.BindingsBuilt())

	code, _ = ts.do(t, http.MethodPost, "/api/v1/session/disconnect", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, http.MethodGet, "/api/v1/betting-sessions", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestBettingSessionReadsSessionBindings(t *testing.T) {
	ts := newTestServer(t, func(d *Dependencies) { d.SessionSource = nil })
	start := big.NewInt(time.Now().Add(time.Hour).Unix())
	ts.chain.set(betManager, "bettingSessions", start, start, "subject", big.NewInt(0), units.Ether(2), uint8(0))
	ts.connect(t)

	code, body := ts.do(t, http.MethodGet, "/api/v1/betting-sessions/4", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Open", body["display_state"])
	assert.Equal(t, "2", body["total_wagered_display"])
}

func TestBettingSessions(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.connect(t)

	code, body := ts.do(t, http.MethodGet, "/api/v1/betting-sessions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["total"])

	sessions := body["sessions"].([]interface{})
	states := make([]string, 0, len(sessions))
	for _, raw := range sessions {
		states = append(states, raw.(map[string]interface{})["display_state"].(string))
	}
	assert.Equal(t, []string{"Closed", "Open", "Settled"}, states)
	assert.Equal(t, "3", sessions[0].(map[string]interface{})["total_wagered_display"])

	code, body = ts.do(t, http.MethodGet, "/api/v1/betting-sessions/1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["accepts_bets"])

	code, _ = ts.do(t, http.MethodGet, "/api/v1/betting-sessions/x", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/betting-sessions/99", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPlaceBetsOnClosedSession(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.chain.set(betToken, "allowance", units.Ether(1))
	past := big.NewInt(time.Now().Add(-time.Hour).Unix())
	ts.chain.set(betManager, "bettingSessions", past, past, "subject", big.NewInt(0), big.NewInt(0), uint8(0))
	ts.connect(t)

	code, _ := ts.do(t, http.MethodPost, "/api/v1/bets/slip", slipEntryRequest{Guess: 7, Multiplier: 1})
	require.Equal(t, http.StatusCreated, code)

	code, body := ts.do(t, http.MethodPost, "/api/v1/bets/place", placeBetsRequest{SessionID: "0"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "betting session is not open", body["error"])

	// A locally blocked slip is kept.
	screens, err := ts.currentScreens()
	require.NoError(t, err)
	assert.Equal(t, 1, screens.Bet.Slip().Len())

	code, _ = ts.do(t, http.MethodPost, "/api/v1/bets/place", placeBetsRequest{SessionID: "-1"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStakeAmountValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.chain.set(betToken, "allowance", units.Ether(100))
	ts.chain.set(betToken, "balanceOf", units.Ether(1))
	ts.connect(t)

	code, body := ts.do(t, http.MethodPost, "/api/v1/staking/stake", amountRequest{Amount: "5"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, utils.ErrCodeValidation, body["code"])

	code, _ = ts.do(t, http.MethodPost, "/api/v1/staking/stake", amountRequest{Amount: "1.0000000000000000001"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSwapSendRejected(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.chain.set(stableToken, "allowance", units.Ether(100))
	ts.chain.set(stableToken, "balanceOf", units.Ether(10))
	ts.connect(t)

	code, body := ts.do(t, http.MethodPost, "/api/v1/swap", amountRequest{Amount: "1"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, utils.ErrCodeTransaction, body["code"])

	result := body["result"].(map[string]interface{})
	assert.Equal(t, "failed", result["outcome"])
	controls := body["controls"].(map[string]interface{})
	assert.Equal(t, "ready", controls["state"])
}

func TestSwapDirectionAndQuote(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.chain.set(stableToken, "allowance", big.NewInt(0))
	ts.chain.set(betToken, "allowance", units.Ether(1))
	ts.chain.set(stableToken, "balanceOf", units.Ether(10))
	ts.chain.set(betToken, "balanceOf", units.Ether(20))
	ts.chain.set(stableSwap, "SWAP_RATIO", big.NewInt(2))
	ts.connect(t)

	code, body := ts.do(t, http.MethodGet, "/api/v1/swap?amount=1.5", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "3", body["quote"])
	view := body["swap"].(map[string]interface{})
	assert.Equal(t, "deposit", view["direction"])
	assert.Equal(t, "needs_approval", view["controls"].(map[string]interface{})["state"])

	code, body = ts.do(t, http.MethodPost, "/api/v1/swap/direction", directionRequest{Direction: "burn"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "burn", body["direction"])
	assert.Equal(t, "ready", body["controls"].(map[string]interface{})["state"])

	code, _ = ts.do(t, http.MethodPost, "/api/v1/swap/direction", directionRequest{Direction: "sideways"})
	assert.Equal(t, http.StatusBadRequest, code)

	// Approving a flow that already has an allowance is out of order.
	code, _ = ts.do(t, http.MethodPost, "/api/v1/swap/approve", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestBalances(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.connect(t)

	code, _ := ts.do(t, http.MethodGet, "/api/v1/balances", nil)
	assert.Equal(t, http.StatusNotFound, code)

	ts.snapshots.Apply(context.Background(), alice, 12, map[string]*big.Int{
		models.FieldTokenBalance: units.MustParseEther("1.5"),
	})

	code, body := ts.do(t, http.MethodGet, "/api/v1/balances", nil)
	require.Equal(t, http.StatusOK, code)
	display := body["display"].(map[string]interface{})
	assert.Equal(t, "1.5", display[models.FieldTokenBalance])
	assert.Equal(t, "0", display[models.FieldClaimableFromPool])

	code, _ = ts.do(t, http.MethodGet, "/api/v1/balances?account=nope", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRewardsControls(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.connect(t)
	ts.snapshots.Apply(context.Background(), alice, 3, map[string]*big.Int{
		models.FieldClaimableFromManager: units.Ether(2),
		models.FieldClaimableFromPool:    big.NewInt(0),
	})

	code, body := ts.do(t, http.MethodGet, "/api/v1/rewards", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2", body["winnings"])
	controls := body["controls"].(map[string]interface{})
	assert.Equal(t, true, controls["winnings"].(map[string]interface{})["action_enabled"])
	assert.Equal(t, false, controls["rewards"].(map[string]interface{})["action_enabled"])

	code, body = ts.do(t, http.MethodPost, "/api/v1/staking/claim", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, utils.ErrCodeValidation, body["code"])
}

func TestTransactionsJournal(t *testing.T) {
	store, err := storage.NewStorage(&config.StorageConfig{Type: "sqlite", ConnectionString: ":memory:", MaxConnections: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SaveTransaction(context.Background(), &models.Transaction{
		ID:        "tx-1",
		Action:    "stake",
		Account:   alice.Hex(),
		TxHash:    "0x" + strings.Repeat("ab", 32),
		Status:    models.TxStatusPending,
		CreatedAt: time.Now().UTC(),
	}))

	ts := newTestServer(t, func(d *Dependencies) { d.Storage = store })

	code, body := ts.do(t, http.MethodGet, "/api/v1/transactions?account="+alice.Hex(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	code, body = ts.do(t, http.MethodGet, "/api/v1/transactions/0x"+strings.Repeat("ab", 32), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "tx-1", body["id"])

	code, _ = ts.do(t, http.MethodGet, "/api/v1/transactions/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPersistedBalances(t *testing.T) {
	store, err := storage.NewStorage(&config.StorageConfig{Type: "sqlite", ConnectionString: ":memory:", MaxConnections: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	journal := storage.NewJournal(store)
	ts := newTestServer(t, func(d *Dependencies) { d.Storage = store })
	ts.snapshots.AddSink(journal)

	t.Run("stored snapshot", func(t *testing.T) {
		ts.snapshots.Apply(context.Background(), alice, 9, map[string]*big.Int{
			models.FieldTokenBalance:         units.Ether(4),
			models.FieldClaimableFromManager: big.NewInt(0),
			models.FieldClaimableFromPool:    units.Ether(1),
		})

		code, body := ts.do(t, http.MethodGet, "/api/v1/balances/persisted?account="+alice.Hex(), nil)
		require.Equal(t, http.StatusOK, code)
		display := body["display"].(map[string]interface{})
		assert.Equal(t, "4", display[models.FieldTokenBalance])
		assert.Equal(t, "1", display[models.FieldClaimableFromPool])
		assert.EqualValues(t, 9, body["snapshot"].(map[string]interface{})["block_number"])
	})

	t.Run("unknown account", func(t *testing.T) {
		code, body := ts.do(t, http.MethodGet, "/api/v1/balances/persisted?account="+bob.Hex(), nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, utils.ErrCodeNotFound, body["code"])
	})
}

func TestTransactionsWithoutStorage(t *testing.T) {
	ts := newTestServer(t, nil)

	code, _ := ts.do(t, http.MethodGet, "/api/v1/transactions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/balances/persisted?account="+alice.Hex(), nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestBalanceStream(t *testing.T) {
	ts := newTestServer(t, nil)
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/balances/stream?account=" + alice.Hex()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.deps.Hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	// Another account's snapshot is not delivered.
	ts.snapshots.Apply(context.Background(), bob, 1, map[string]*big.Int{models.FieldTokenBalance: big.NewInt(1)})
	ts.snapshots.Apply(context.Background(), alice, 2, map[string]*big.Int{models.FieldTokenBalance: big.NewInt(7)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "balances", msg.Type)
	assert.Equal(t, alice, msg.Snapshot.Account)
	assert.Equal(t, uint64(2), msg.Snapshot.BlockNumber)
	assert.Equal(t, int64(7), msg.Snapshot.TokenBalance.Int64())
}

func TestStatusFor(t *testing.T) {
	cases := map[string]int{
		utils.ErrCodeValidation:    http.StatusBadRequest,
		utils.ErrCodeNotFound:      http.StatusNotFound,
		utils.ErrCodeState:         http.StatusConflict,
		utils.ErrCodeNotConnected:  http.StatusConflict,
		utils.ErrCodeUnauthorized:  http.StatusForbidden,
		utils.ErrCodeAmbiguous:     http.StatusAccepted,
		utils.ErrCodeTransaction:   http.StatusBadGateway,
		utils.ErrCodeConfiguration: http.StatusServiceUnavailable,
		utils.ErrCodeInternal:      http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, statusFor(utils.NewAppError(code, "x")), code)
	}
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("plain")))
}
