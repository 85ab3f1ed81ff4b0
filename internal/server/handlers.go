package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/stakebet/internal/action"
	"github.com/smartdevs17/stakebet/internal/betting"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/units"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

type amountRequest struct {
	Amount string `json:"amount"`
}

type directionRequest struct {
	Direction string `json:"direction"`
}

type slipEntryRequest struct {
	Guess      uint64 `json:"guess"`
	Multiplier uint64 `json:"multiplier"`
}

type placeBetsRequest struct {
	SessionID string `json:"session_id"`
}

// actionResponse reports a settled approval or action together with the
// controls that follow from it.
type actionResponse struct {
	Result   *action.Result   `json:"result,omitempty"`
	Controls *action.Controls `json:"controls,omitempty"`
	Code     string           `json:"code,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type sessionView struct {
	Connected bool              `json:"connected"`
	Account   string            `json:"account,omitempty"`
	ChainID   string            `json:"chain_id,omitempty"`
	IsManager *bool             `json:"is_manager,omitempty"`
	Contracts []models.Contract `json:"contracts"`
}

type bettingSessionView struct {
	*models.BettingSession
	DisplayState models.DisplayState `json:"display_state"`
	AcceptsBets  bool                `json:"accepts_bets"`
	TotalDisplay string              `json:"total_wagered_display"`
}

type slipView struct {
	Entries         []models.BetEntry `json:"entries"`
	TotalMultiplier uint64            `json:"total_multiplier"`
	Controls        action.Controls   `json:"controls"`
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return utils.WrapError(utils.ErrCodeValidation, "Invalid request body", err)
	}
	return nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, err := units.ParseEther(raw)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeValidation, "Invalid amount", err)
	}
	return amount, nil
}

func parseSessionID(raw string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok || id.Sign() < 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid betting session id", raw)
	}
	return id, nil
}

// writeResult writes an action outcome. An ambiguous outcome is reported
// as accepted, never as plain success.
func (s *HTTPServer) writeResult(w http.ResponseWriter, flow *action.Flow, result *action.Result, err error) {
	resp := actionResponse{Result: result}
	if flow != nil {
		controls := flow.Controls()
		resp.Controls = &controls
	}
	if err == nil {
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
	if result == nil {
		s.writeAppError(w, err)
		return
	}

	resp.Code = utils.CodeOf(err)
	resp.Error = messageOf(err)
	status := statusFor(err)
	s.logger.WithFields(logrus.Fields{
		"action":  result.Action,
		"outcome": result.Outcome,
		"tx_hash": result.TxHash.Hex(),
		"status":  status,
	}).Debug("Action did not succeed")
	s.writeJSON(w, status, resp)
}

// refreshFlow settles a gated flow against the current allowance.
func (s *HTTPServer) refreshFlow(w http.ResponseWriter, r *http.Request, flow *action.Flow) bool {
	if _, err := flow.Refresh(r.Context()); err != nil {
		s.writeAppError(w, err)
		return false
	}
	return true
}

// Session Handlers

func (s *HTTPServer) sessionView(r *http.Request) sessionView {
	addrs := s.deps.Session.Addresses()
	view := sessionView{
		Contracts: []models.Contract{
			{Name: models.ContractBetToken, Address: addrs.BetToken},
			{Name: models.ContractStableToken, Address: addrs.StableToken},
			{Name: models.ContractStableSwap, Address: addrs.BetStableSwap},
			{Name: models.ContractBetManager, Address: addrs.BetManager},
			{Name: models.ContractBetPool, Address: addrs.BetPool},
		},
	}

	state := s.deps.Session.Current()
	if state == nil {
		return view
	}
	view.Connected = true
	view.Account = state.Account().Hex()
	view.Contracts = state.Bindings.Contracts()
	if c, ok := state.Signer.(interface{ ChainID() *big.Int }); ok && c.ChainID() != nil {
		view.ChainID = c.ChainID().String()
	}
	if screens, err := s.currentScreens(); err == nil {
		if ok, err := screens.Admin.IsManager(r.Context()); err == nil {
			view.IsManager = &ok
		}
	}
	return view
}

// getSessionHandler returns the wallet session
func (s *HTTPServer) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sessionView(r))
}

// connectHandler connects the configured wallet
func (s *HTTPServer) connectHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Connect == nil {
		s.writeError(w, http.StatusServiceUnavailable, "No wallet configured", nil)
		return
	}
	signer, err := s.deps.Connect(r.Context())
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if signer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "No wallet configured", nil)
		return
	}
	s.deps.Session.SetSigner(signer)
	s.writeJSON(w, http.StatusOK, s.sessionView(r))
}

// disconnectHandler drops the signer
func (s *HTTPServer) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	s.deps.Session.Disconnect()
	s.writeJSON(w, http.StatusOK, s.sessionView(r))
}

// Balance Handlers

func (s *HTTPServer) accountParam(r *http.Request) (common.Address, error) {
	if v := r.URL.Query().Get("account"); v != "" {
		if !common.IsHexAddress(v) {
			return common.Address{}, utils.NewAppError(utils.ErrCodeValidation, "Invalid account address", v)
		}
		return common.HexToAddress(v), nil
	}
	state := s.deps.Session.Current()
	if state == nil {
		return common.Address{}, utils.ErrNotConnected
	}
	return state.Account(), nil
}

// balancesHandler returns the latest polled balances
func (s *HTTPServer) balancesHandler(w http.ResponseWriter, r *http.Request) {
	account, err := s.accountParam(r)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	snap := s.deps.Snapshots.Get(account)
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "No balances read yet", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceView(snap))
}

// persistedBalancesHandler returns the last snapshot the journal stored for
// the account. It survives restarts, unlike the in-memory view.
func (s *HTTPServer) persistedBalancesHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireStorage(w) {
		return
	}
	account, err := s.accountParam(r)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	snap, err := s.deps.Storage.GetSnapshot(r.Context(), account)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceView(snap))
}

func balanceView(snap *models.BalanceSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"snapshot": snap,
		"display": map[string]string{
			models.FieldTokenBalance:         units.FormatEther(snap.TokenBalance),
			models.FieldClaimableFromManager: units.FormatEther(snap.ClaimableFromManager),
			models.FieldClaimableFromPool:    units.FormatEther(snap.ClaimableFromPool),
		},
	}
}

// balanceStreamHandler pushes every new snapshot for the account
func (s *HTTPServer) balanceStreamHandler(w http.ResponseWriter, r *http.Request) {
	account, err := s.accountParam(r)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.deps.Hub.Serve(w, r, account)
}

// Betting Session Handlers

func (s *HTTPServer) viewSession(bs *models.BettingSession) bettingSessionView {
	now := s.now()
	return bettingSessionView{
		BettingSession: bs,
		DisplayState:   betting.DisplayState(bs, now),
		AcceptsBets:    betting.AcceptsBets(bs, now),
		TotalDisplay:   units.FormatEther(bs.TotalWagered),
	}
}

// listBettingSessionsHandler loads every betting session together with the
// connected caller's wagered amount.
func (s *HTTPServer) listBettingSessionsHandler(w http.ResponseWriter, r *http.Request) {
	_, loader, err := s.currentSessions()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	var caller *common.Address
	if state := s.deps.Session.Current(); state != nil {
		account := state.Account()
		caller = &account
	}

	sessions, err := loader.Load(r.Context(), caller, func(percent int) {
		s.logger.WithField("percent", percent).Debug("Loading betting sessions")
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	views := make([]bettingSessionView, 0, len(sessions))
	for _, bs := range sessions {
		views = append(views, s.viewSession(bs))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": views,
		"total":    len(views),
	})
}

// getBettingSessionHandler reads one betting session
func (s *HTTPServer) getBettingSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(mux.Vars(r)["id"])
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	source, _, err := s.currentSessions()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	bs, err := source.Session(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.viewSession(bs))
}

// wagerLimitsHandler reports the limits the current slip is checked against
func (s *HTTPServer) wagerLimitsHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	id, err := parseSessionID(mux.Vars(r)["id"])
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	limits, err := screens.Bet.Limits(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	total := screens.Bet.Slip().TotalMultiplier()
	resp := map[string]interface{}{
		"per_bet":          units.FormatEther(limits.PerBet),
		"max_per_session":  units.FormatEther(limits.MaxPerSession),
		"already_wagered":  units.FormatEther(limits.AlreadyWagered),
		"balance":          units.FormatEther(limits.Balance),
		"total_multiplier": total,
		"cost":             units.FormatEther(betting.WagerCost(total, limits.PerBet)),
	}
	if err := betting.CheckWager(total, limits); err != nil {
		resp["blocked"] = messageOf(err)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// endBettingSessionHandler ends a session; session managers only
func (s *HTTPServer) endBettingSessionHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	id, err := parseSessionID(mux.Vars(r)["id"])
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	result, err := screens.Admin.EndSession(r.Context(), id)
	s.writeResult(w, nil, result, err)
}

// Swap Handlers

// swapViewHandler shows the swap screen; with ?amount it also quotes
func (s *HTTPServer) swapViewHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	view, err := screens.Swap.View(r.Context())
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	resp := map[string]interface{}{"swap": view}
	if raw := r.URL.Query().Get("amount"); raw != "" {
		amount, err := parseAmount(raw)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		out, err := screens.Swap.Quote(r.Context(), amount)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		resp["quote"] = units.FormatEther(out)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// swapDirectionHandler selects a direction; an empty body toggles
func (s *HTTPServer) swapDirectionHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	var req directionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeAppError(w, err)
			return
		}
	}
	if req.Direction == "" {
		screens.Swap.Toggle()
	} else {
		d, err := action.ParseDirection(req.Direction)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		if err := screens.Swap.SetDirection(d); err != nil {
			s.writeAppError(w, err)
			return
		}
	}

	flow := screens.Swap.Flow()
	if !s.refreshFlow(w, r, flow) {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"direction": screens.Swap.Direction(),
		"controls":  flow.Controls(),
	})
}

// swapApproveHandler approves the token-in for the swap contract
func (s *HTTPServer) swapApproveHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	result, err := screens.Swap.Approve(r.Context())
	s.writeResult(w, screens.Swap.Flow(), result, err)
}

// swapHandler executes a swap in the selected direction
func (s *HTTPServer) swapHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if !s.refreshFlow(w, r, screens.Swap.Flow()) {
		return
	}
	result, err := screens.Swap.Swap(r.Context(), amount)
	s.writeResult(w, screens.Swap.Flow(), result, err)
}

// Bet Handlers

func (s *HTTPServer) writeSlip(w http.ResponseWriter, screens *action.Screens, status int) {
	slip := screens.Bet.Slip()
	s.writeJSON(w, status, slipView{
		Entries:         slip.Entries(),
		TotalMultiplier: slip.TotalMultiplier(),
		Controls:        screens.Bet.Flow().Controls(),
	})
}

// getSlipHandler returns the working bet slip
func (s *HTTPServer) getSlipHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if !s.refreshFlow(w, r, screens.Bet.Flow()) {
		return
	}
	s.writeSlip(w, screens, http.StatusOK)
}

// addSlipEntryHandler adds one guess to the slip
func (s *HTTPServer) addSlipEntryHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	var req slipEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, err)
		return
	}
	if err := screens.Bet.Slip().Add(req.Guess, req.Multiplier); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeSlip(w, screens, http.StatusCreated)
}

// removeSlipEntryHandler removes one guess from the slip
func (s *HTTPServer) removeSlipEntryHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	guess, err := strconv.ParseUint(mux.Vars(r)["guess"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid guess", err)
		return
	}
	if !screens.Bet.Slip().Remove(guess) {
		s.writeError(w, http.StatusNotFound, "Guess not on slip", nil)
		return
	}
	s.writeSlip(w, screens, http.StatusOK)
}

// clearSlipHandler empties the slip
func (s *HTTPServer) clearSlipHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	screens.Bet.Slip().Clear()
	s.writeSlip(w, screens, http.StatusOK)
}

// betApproveHandler lets the bet manager spend bet tokens
func (s *HTTPServer) betApproveHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	result, err := screens.Bet.Approve(r.Context())
	s.writeResult(w, screens.Bet.Flow(), result, err)
}

// placeBetsHandler submits the slip on a session
func (s *HTTPServer) placeBetsHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	var req placeBetsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, err)
		return
	}
	id, err := parseSessionID(req.SessionID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if !s.refreshFlow(w, r, screens.Bet.Flow()) {
		return
	}
	result, err := screens.Bet.Place(r.Context(), id)
	s.writeResult(w, screens.Bet.Flow(), result, err)
}

// Staking Handlers

// stakingHandler returns pool statistics and the stake controls
func (s *HTTPServer) stakingHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if !s.refreshFlow(w, r, screens.Stake.StakeFlow()) {
		return
	}
	stats, err := screens.Stake.Stats(r.Context())
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":            stats,
		"display":          action.FormatStats(stats),
		"stake_controls":   screens.Stake.StakeFlow().Controls(),
		"unstake_controls": screens.Stake.UnstakeFlow().Controls(),
	})
}

// stakeApproveHandler lets the pool spend bet tokens
func (s *HTTPServer) stakeApproveHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	result, err := screens.Stake.Approve(r.Context())
	s.writeResult(w, screens.Stake.StakeFlow(), result, err)
}

// stakeHandler stakes an amount into the pool
func (s *HTTPServer) stakeHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if !s.refreshFlow(w, r, screens.Stake.StakeFlow()) {
		return
	}
	result, err := screens.Stake.Stake(r.Context(), amount)
	s.writeResult(w, screens.Stake.StakeFlow(), result, err)
}

// unstakeHandler exits the pool
func (s *HTTPServer) unstakeHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	result, err := screens.Stake.Unstake(r.Context())
	s.writeResult(w, screens.Stake.UnstakeFlow(), result, err)
}

// claimRewardHandler pays out staking rewards
func (s *HTTPServer) claimRewardHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	result, err := screens.Claim.ClaimReward(r.Context())
	s.writeResult(w, nil, result, err)
}

// Reward Handlers

// rewardsHandler returns what the account can claim
func (s *HTTPServer) rewardsHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	resp := map[string]interface{}{
		"controls": screens.Claim.Controls(),
	}
	if snap := s.deps.Snapshots.Get(screens.Account); snap != nil {
		resp["winnings"] = units.FormatEther(snap.ClaimableFromManager)
		resp["rewards"] = units.FormatEther(snap.ClaimableFromPool)
		resp["block_number"] = snap.BlockNumber
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// claimWinningsHandler pays out bet winnings
func (s *HTTPServer) claimWinningsHandler(w http.ResponseWriter, r *http.Request) {
	screens, err := s.currentScreens()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	result, err := screens.Claim.ClaimWinnings(r.Context())
	s.writeResult(w, nil, result, err)
}
