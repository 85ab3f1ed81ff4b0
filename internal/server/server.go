// Package server exposes the betting, staking and swap screens over HTTP and
// streams balance snapshots over websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/stakebet/internal/action"
	"github.com/smartdevs17/stakebet/internal/betting"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/internal/monitor"
	"github.com/smartdevs17/stakebet/internal/notification"
	"github.com/smartdevs17/stakebet/internal/session"
	"github.com/smartdevs17/stakebet/internal/storage"
	"github.com/smartdevs17/stakebet/internal/wallet"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// Connector produces the signer used when a client asks to connect.
// Keys are never accepted over HTTP.
type Connector func(ctx context.Context) (wallet.Signer, error)

// HealthChecker is implemented by the RPC connection manager.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SessionSourceFunc picks the betting-session reader for a connected wallet.
type SessionSourceFunc func(state *session.State) betting.SessionSource

// BetManagerSource reads betting sessions through the session's own
// bet-manager binding.
func BetManagerSource(state *session.State) betting.SessionSource {
	return state.Bindings.Manager
}

// Dependencies are the components the server drives. Storage,
// Notification, Chain, Connect and SessionSource may be nil.
type Dependencies struct {
	Session       *session.Session
	Connect       Connector
	Snapshots     *monitor.SnapshotStore
	Poller        *monitor.BalancePoller
	Loader        betting.LoaderConfig
	SessionSource SessionSourceFunc
	Waiter        action.Waiter
	Observers     action.Observers
	Storage       storage.Storage
	Notification  *notification.NotificationManager
	Chain         HealthChecker
	Hub           *Hub
	Metrics       *metrics.Manager
	Version       string
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	deps           Dependencies
	metricsManager *metrics.Manager
	logger         *logrus.Entry
	now            func() time.Time

	unsubscribe func()
	done        chan struct{}
	stopOnce    sync.Once

	mu       sync.RWMutex
	screens  *action.Screens
	sessions betting.SessionSource
	loader   *betting.Loader
}

// NewHTTPServer creates a new HTTP server and starts following the session.
func NewHTTPServer(cfg *config.ServerConfig, deps Dependencies) (*HTTPServer, error) {
	if deps.Session == nil || deps.Snapshots == nil || deps.Waiter == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "server dependencies incomplete")
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Snapshots.Get)
	}
	if deps.SessionSource == nil {
		deps.SessionSource = BetManagerSource
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := &HTTPServer{
		config:         cfg,
		deps:           deps,
		metricsManager: deps.Metrics,
		logger:         utils.Component("http_server"),
		now:            time.Now,
		done:           make(chan struct{}),
	}

	s.setupRouter()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	s.unsubscribe = deps.Session.Subscribe(s.onSession)
	return s, nil
}

// Handler returns the router.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// onSession rebuilds the screens and the session loader for every signer
// change. Any slip in progress belongs to the previous screens and is
// dropped with them. While disconnected the server holds neither.
func (s *HTTPServer) onSession(state *session.State) {
	var (
		screens  *action.Screens
		sessions betting.SessionSource
		loader   *betting.Loader
	)
	if state != nil {
		screens = action.NewScreens(state, s.deps.Snapshots, s.deps.Waiter,
			action.WithObserver(s.deps.Observers),
			action.WithMetrics(s.metricsManager),
		)
		sessions = s.deps.SessionSource(state)
		loader = betting.NewLoader(sessions, s.deps.Loader, s.metricsManager)
	}

	s.mu.Lock()
	s.screens = screens
	s.sessions = sessions
	s.loader = loader
	s.mu.Unlock()
}

func (s *HTTPServer) currentSessions() (betting.SessionSource, *betting.Loader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sessions == nil {
		return nil, nil, utils.ErrNotConnected
	}
	return s.sessions, s.loader, nil
}

func (s *HTTPServer) currentScreens() (*action.Screens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.screens == nil {
		return nil, utils.ErrNotConnected
	}
	return s.screens, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health and statistics
	api.HandleFunc("/health", s.healthHandler).Methods("GET")
	api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	api.HandleFunc("/stats", s.statsHandler).Methods("GET")

	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
	}

	// Wallet session
	api.HandleFunc("/session", s.getSessionHandler).Methods("GET")
	api.HandleFunc("/session/connect", s.connectHandler).Methods("POST")
	api.HandleFunc("/session/disconnect", s.disconnectHandler).Methods("POST")

	// Balances
	api.HandleFunc("/balances", s.balancesHandler).Methods("GET")
	api.HandleFunc("/balances/stream", s.balanceStreamHandler).Methods("GET")
	api.HandleFunc("/balances/persisted", s.persistedBalancesHandler).Methods("GET")

	// Betting sessions
	api.HandleFunc("/betting-sessions", s.listBettingSessionsHandler).Methods("GET")
	api.HandleFunc("/betting-sessions/{id}", s.getBettingSessionHandler).Methods("GET")
	api.HandleFunc("/betting-sessions/{id}/limits", s.wagerLimitsHandler).Methods("GET")
	api.HandleFunc("/betting-sessions/{id}/end", s.endBettingSessionHandler).Methods("POST")

	// Swap
	api.HandleFunc("/swap", s.swapViewHandler).Methods("GET")
	api.HandleFunc("/swap", s.swapHandler).Methods("POST")
	api.HandleFunc("/swap/direction", s.swapDirectionHandler).Methods("POST")
	api.HandleFunc("/swap/approve", s.swapApproveHandler).Methods("POST")

	// Bets
	api.HandleFunc("/bets/slip", s.getSlipHandler).Methods("GET")
	api.HandleFunc("/bets/slip", s.addSlipEntryHandler).Methods("POST")
	api.HandleFunc("/bets/slip", s.clearSlipHandler).Methods("DELETE")
	api.HandleFunc("/bets/slip/{guess}", s.removeSlipEntryHandler).Methods("DELETE")
	api.HandleFunc("/bets/approve", s.betApproveHandler).Methods("POST")
	api.HandleFunc("/bets/place", s.placeBetsHandler).Methods("POST")

	// Staking
	api.HandleFunc("/staking", s.stakingHandler).Methods("GET")
	api.HandleFunc("/staking/approve", s.stakeApproveHandler).Methods("POST")
	api.HandleFunc("/staking/stake", s.stakeHandler).Methods("POST")
	api.HandleFunc("/staking/unstake", s.unstakeHandler).Methods("POST")
	api.HandleFunc("/staking/claim", s.claimRewardHandler).Methods("POST")

	// Rewards
	api.HandleFunc("/rewards", s.rewardsHandler).Methods("GET")
	api.HandleFunc("/rewards/claim", s.claimWinningsHandler).Methods("POST")

	// Journal and notices
	api.HandleFunc("/transactions", s.listTransactionsHandler).Methods("GET")
	api.HandleFunc("/transactions/{id}", s.getTransactionHandler).Methods("GET")
	api.HandleFunc("/notices", s.noticesHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateComponentMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Give the server a moment to start and check for immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.updateComponentMetrics()
		}
	}
}

func (s *HTTPServer) updateComponentMetrics() {
	s.metricsManager.UpdateSystemMetrics()
	pm := s.metricsManager.GetPrometheusMetrics()
	if pm == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for name, healthy := range s.componentHealth(ctx) {
		pm.UpdateComponentHealth(name, healthy)
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping HTTP server")
		close(s.done)
		s.unsubscribe()
		s.deps.Hub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err = s.server.Shutdown(ctx)
	})
	return err
}

// Health Handlers

func (s *HTTPServer) componentHealth(ctx context.Context) map[string]bool {
	health := map[string]bool{
		"session": true,
	}
	if s.deps.Poller != nil {
		health["poller"] = s.deps.Poller.GetStats().IsRunning
	}
	if s.deps.Chain != nil {
		health["chain"] = s.deps.Chain.HealthCheck(ctx) == nil
	}
	if s.deps.Storage != nil {
		health["storage"] = s.deps.Storage.Ping() == nil
	}
	if s.deps.Notification != nil {
		health["notification"] = s.deps.Notification.IsHealthy()
	}
	return health
}

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
		"version":   s.deps.Version,
		"connected": s.deps.Session.Connected(),
	})
}

// detailedHealthHandler reports each component and degrades the overall
// status when any of them is unhealthy.
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	components := s.componentHealth(r.Context())
	status, code := "healthy", http.StatusOK
	for _, ok := range components {
		if !ok {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}
	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  s.now().UTC(),
		"version":    s.deps.Version,
		"components": components,
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp":      s.now().UTC(),
		"bindings_built": s.deps.Session.BindingsBuilt(),
		"stream_clients": s.deps.Hub.ClientCount(),
	}
	if s.deps.Poller != nil {
		stats["poller"] = s.deps.Poller.GetStats()
	}
	if s.deps.Notification != nil {
		stats["notification"] = s.deps.Notification.GetStats()
	}
	if s.deps.Storage != nil {
		storageStats, err := s.deps.Storage.GetStorageStats()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
			return
		}
		stats["storage"] = storageStats
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// Journal Handlers

func (s *HTTPServer) requireStorage(w http.ResponseWriter) bool {
	if s.deps.Storage == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Transaction journal is disabled", nil)
		return false
	}
	return true
}

// listTransactionsHandler lists journaled transactions
func (s *HTTPServer) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireStorage(w) {
		return
	}
	q := r.URL.Query()
	filter := models.TransactionFilter{
		Limit:  queryInt(q.Get("limit"), 50),
		Offset: queryInt(q.Get("offset"), 0),
	}
	if v := q.Get("account"); v != "" {
		if !common.IsHexAddress(v) {
			s.writeError(w, http.StatusBadRequest, "Invalid account address", nil)
			return
		}
		account := common.HexToAddress(v).Hex()
		filter.Account = &account
	}
	if v := q.Get("action"); v != "" {
		filter.Action = &v
	}
	if v := q.Get("status"); v != "" {
		status := models.TxStatus(v)
		filter.Status = &status
	}

	txs, err := s.deps.Storage.GetTransactions(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve transactions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"limit":        filter.Limit,
		"offset":       filter.Offset,
		"total":        len(txs),
	})
}

// getTransactionHandler gets one journal record by id or transaction hash
func (s *HTTPServer) getTransactionHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireStorage(w) {
		return
	}
	id := mux.Vars(r)["id"]

	var (
		tx  *models.Transaction
		err error
	)
	if len(id) == 66 && id[:2] == "0x" {
		tx, err = s.deps.Storage.GetTransactionByHash(r.Context(), id)
	} else {
		tx, err = s.deps.Storage.GetTransaction(r.Context(), id)
	}
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

// noticesHandler lists recent notices, newest first
func (s *HTTPServer) noticesHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notification == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"notices": []*models.Notice{}, "total": 0})
		return
	}
	notices := s.deps.Notification.Recent(queryInt(r.URL.Query().Get("limit"), 20))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notices": notices,
		"total":   len(notices),
	})
}

// Utility Methods

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// statusFor maps an error code to the HTTP status a client sees.
func statusFor(err error) int {
	switch utils.CodeOf(err) {
	case utils.ErrCodeValidation:
		return http.StatusBadRequest
	case utils.ErrCodeNotFound:
		return http.StatusNotFound
	case utils.ErrCodeState, utils.ErrCodeNotConnected:
		return http.StatusConflict
	case utils.ErrCodeUnauthorized:
		return http.StatusForbidden
	case utils.ErrCodeAmbiguous:
		return http.StatusAccepted
	case utils.ErrCodeTransaction, utils.ErrCodeBlockchain, utils.ErrCodeConnection:
		return http.StatusBadGateway
	case utils.ErrCodeConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func messageOf(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": s.now().UTC(),
	}

	if err != nil {
		errorResponse["code"] = utils.CodeOf(err)
		errorResponse["details"] = err.Error()

		entry := s.logger.WithFields(logrus.Fields{"status": status, "message": message, "error": err})
		if status >= http.StatusInternalServerError {
			entry.Error("HTTP error")
		} else {
			entry.Debug("HTTP error")
		}
	}

	s.writeJSON(w, status, errorResponse)
}

// writeAppError derives status and message from err.
func (s *HTTPServer) writeAppError(w http.ResponseWriter, err error) {
	s.writeError(w, statusFor(err), messageOf(err), err)
}
