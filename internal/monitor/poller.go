// File: internal/monitor/poller.go
package monitor

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/internal/session"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// BalanceReader reads the three refreshed views for an account.
type BalanceReader interface {
	TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	ClaimableFromManager(ctx context.Context, owner common.Address) (*big.Int, error)
	ClaimableFromPool(ctx context.Context, owner common.Address) (*big.Int, error)
}

// Target is the account being refreshed and the reader bound to it.
type Target struct {
	Account common.Address
	Reader  BalanceReader
}

// PollerConfig holds balance poller configuration
type PollerConfig struct {
	ReadTimeout    time.Duration `json:"read_timeout"`
	ResubscribeGap time.Duration `json:"resubscribe_gap"`
}

// PollerStats provides balance poller statistics
type PollerStats struct {
	IsRunning           bool      `json:"is_running"`
	Account             string    `json:"account,omitempty"`
	BlocksObserved      uint64    `json:"blocks_observed"`
	LatestBlock         uint64    `json:"latest_block"`
	ReadFailures        uint64    `json:"read_failures"`
	ActiveSubscriptions int       `json:"active_subscriptions"`
	SubscriptionsOpened uint64    `json:"subscriptions_opened"`
	LastBlockAt         time.Time `json:"last_block_at,omitempty"`
}

// BalancePoller re-reads balances on every new block for the current
// target. Changing the target tears the previous subscription down before
// a new one is opened.
type BalancePoller struct {
	source         HeadSource
	store          *SnapshotStore
	config         PollerConfig
	metricsManager *metrics.Manager
	logger         *logrus.Entry

	mu      sync.Mutex
	running bool
	baseCtx context.Context
	target  *Target
	cancel  context.CancelFunc
	done    chan struct{}

	active atomic.Int32
	opened atomic.Uint64

	statsMu sync.RWMutex
	stats   PollerStats
}

// NewBalancePoller creates a balance poller
func NewBalancePoller(source HeadSource, store *SnapshotStore, config PollerConfig, metricsManager *metrics.Manager) *BalancePoller {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.ResubscribeGap <= 0 {
		config.ResubscribeGap = 5 * time.Second
	}
	return &BalancePoller{
		source:         source,
		store:          store,
		config:         config,
		metricsManager: metricsManager,
		logger:         utils.Component("balance_poller"),
	}
}

// Start enables polling; any target set before or after Start is followed.
func (bp *BalancePoller) Start(ctx context.Context) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Balance poller already running")
	}
	bp.running = true
	bp.baseCtx = ctx
	bp.setStats(func(s *PollerStats) { s.IsRunning = true })

	if bp.target != nil {
		bp.launch(bp.target)
	}
	bp.logger.Info("Balance poller started")
	return nil
}

// Stop tears down the active subscription and waits for it to exit.
func (bp *BalancePoller) Stop() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if !bp.running {
		return nil
	}
	bp.teardown()
	bp.running = false
	bp.setStats(func(s *PollerStats) { s.IsRunning = false })
	bp.logger.Info("Balance poller stopped")
	return nil
}

// Retarget switches polling to t. A nil t stops polling without stopping
// the poller.
func (bp *BalancePoller) Retarget(t *Target) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	bp.teardown()
	bp.target = t

	account := ""
	if t != nil {
		account = t.Account.Hex()
	}
	bp.setStats(func(s *PollerStats) { s.Account = account })

	if bp.running && t != nil {
		bp.launch(t)
	}
}

// Watch follows the session's signer. The returned function stops following.
func (bp *BalancePoller) Watch(s *session.Session) func() {
	return s.Subscribe(func(state *session.State) {
		if state == nil {
			bp.Retarget(nil)
			return
		}
		bp.Retarget(&Target{Account: state.Account(), Reader: state.Bindings})
	})
}

// ActiveSubscriptions is the number of block streams currently open.
func (bp *BalancePoller) ActiveSubscriptions() int {
	return int(bp.active.Load())
}

// GetStats returns poller statistics
func (bp *BalancePoller) GetStats() PollerStats {
	bp.statsMu.RLock()
	defer bp.statsMu.RUnlock()
	out := bp.stats
	out.ActiveSubscriptions = bp.ActiveSubscriptions()
	out.SubscriptionsOpened = bp.opened.Load()
	return out
}

// launch must be called with mu held and no run active.
func (bp *BalancePoller) launch(t *Target) {
	ctx, cancel := context.WithCancel(bp.baseCtx)
	done := make(chan struct{})
	bp.cancel = cancel
	bp.done = done

	go func() {
		defer close(done)
		bp.run(ctx, t)
	}()
}

// teardown must be called with mu held.
func (bp *BalancePoller) teardown() {
	if bp.cancel == nil {
		return
	}
	bp.cancel()
	<-bp.done
	bp.cancel = nil
	bp.done = nil
}

func (bp *BalancePoller) run(ctx context.Context, t *Target) {
	logger := bp.logger.WithField("account", t.Account.Hex())

	bp.refresh(ctx, t, 0)
	for {
		err := bp.consume(ctx, t)
		if ctx.Err() != nil {
			return
		}
		logger.WithError(err).Warn("Block stream ended, resubscribing")

		select {
		case <-ctx.Done():
			return
		case <-time.After(bp.config.ResubscribeGap):
		}
	}
}

// consume owns one stream from open to close.
func (bp *BalancePoller) consume(ctx context.Context, t *Target) error {
	stream, err := bp.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	bp.active.Add(1)
	bp.opened.Add(1)
	if pm := bp.metricsManager.GetPrometheusMetrics(); pm != nil {
		pm.SubscriptionOpened()
	}
	defer func() {
		stream.Close()
		bp.active.Add(-1)
		if pm := bp.metricsManager.GetPrometheusMetrics(); pm != nil {
			pm.SubscriptionClosed()
		}
	}()

	for {
		header, err := stream.Next(ctx)
		if err != nil {
			return err
		}

		number := header.Number.Uint64()
		bp.setStats(func(s *PollerStats) {
			s.BlocksObserved++
			s.LatestBlock = number
			s.LastBlockAt = time.Now()
		})
		if pm := bp.metricsManager.GetPrometheusMetrics(); pm != nil {
			pm.RecordBlockObserved(number)
		}

		bp.refresh(ctx, t, number)
	}
}

// refresh issues the three reads concurrently. A failed read leaves its
// field unchanged for this block.
func (bp *BalancePoller) refresh(ctx context.Context, t *Target, block uint64) {
	reads := map[string]func(context.Context, common.Address) (*big.Int, error){
		models.FieldTokenBalance:         t.Reader.TokenBalance,
		models.FieldClaimableFromManager: t.Reader.ClaimableFromManager,
		models.FieldClaimableFromPool:    t.Reader.ClaimableFromPool,
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		values = make(map[string]*big.Int, len(reads))
	)
	for field, read := range reads {
		wg.Add(1)
		go func(field string, read func(context.Context, common.Address) (*big.Int, error)) {
			defer wg.Done()

			readCtx, cancel := context.WithTimeout(ctx, bp.config.ReadTimeout)
			defer cancel()

			v, err := read(readCtx, t.Account)
			if pm := bp.metricsManager.GetPrometheusMetrics(); pm != nil {
				pm.RecordBalanceRead(field, err == nil)
			}
			if err != nil {
				bp.setStats(func(s *PollerStats) { s.ReadFailures++ })
				bp.logger.WithFields(logrus.Fields{"field": field, "block": block, "error": err}).Debug("Balance read failed")
				return
			}

			mu.Lock()
			values[field] = v
			mu.Unlock()
		}(field, read)
	}
	wg.Wait()

	if ctx.Err() != nil || len(values) == 0 {
		return
	}
	bp.store.Apply(ctx, t.Account, block, values)
}

func (bp *BalancePoller) setStats(fn func(*PollerStats)) {
	bp.statsMu.Lock()
	fn(&bp.stats)
	bp.statsMu.Unlock()
}
