// File: internal/notification/notification.go
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/action"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// Channel delivers notices to one destination
type Channel interface {
	Name() string
	Send(ctx context.Context, notice *models.Notice) error
}

// NotificationManagerConfig holds notification manager configuration
type NotificationManagerConfig struct {
	QueueSize           int           `json:"queue_size"`
	Workers             int           `json:"workers"`
	NotificationTimeout time.Duration `json:"notification_timeout"`
	RetryAttempts       int           `json:"retry_attempts"`
	RetryDelay          time.Duration `json:"retry_delay"`
	History             int           `json:"history"`
}

// ManagerConfigFrom maps the loaded notification config.
func ManagerConfigFrom(cfg config.NotificationConfig) *NotificationManagerConfig {
	return &NotificationManagerConfig{
		QueueSize:           cfg.QueueSize,
		Workers:             cfg.Workers,
		NotificationTimeout: cfg.NotificationTimeout,
		RetryAttempts:       cfg.RetryAttempts,
		RetryDelay:          cfg.RetryDelay,
		History:             50,
	}
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	TotalQueued    uint64     `json:"total_queued"`
	TotalDelivered uint64     `json:"total_delivered"`
	TotalFailed    uint64     `json:"total_failed"`
	TotalDropped   uint64     `json:"total_dropped"`
	QueueLength    int        `json:"queue_length"`
	Channels       []string   `json:"channels"`
	LastError      *string    `json:"last_error,omitempty"`
	LastErrorTime  *time.Time `json:"last_error_time,omitempty"`
}

type NotificationHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// NotificationManager turns transaction outcomes into notices and
// dispatches them to its channels from a worker pool.
type NotificationManager struct {
	config  *NotificationManagerConfig
	logger  *logrus.Entry
	metrics *metrics.Manager

	mu       sync.RWMutex
	running  bool
	channels []Channel
	recent   []*models.Notice
	stats    NotificationStats

	queue  chan *models.Notice
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager(cfg *NotificationManagerConfig, m *metrics.Manager) *NotificationManager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.NotificationTimeout <= 0 {
		cfg.NotificationTimeout = 10 * time.Second
	}
	if cfg.History <= 0 {
		cfg.History = 50
	}
	return &NotificationManager{
		config:  cfg,
		logger:  utils.Component("notification"),
		metrics: m,
		queue:   make(chan *models.Notice, cfg.QueueSize),
	}
}

// AddChannel registers a delivery channel.
func (nm *NotificationManager) AddChannel(ch Channel) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.channels = append(nm.channels, ch)
	nm.logger.WithField("channel", ch.Name()).Info("Notification channel added")
}

// Start starts the worker pool
func (nm *NotificationManager) Start(ctx context.Context) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager already running")
	}

	nm.stopCh = make(chan struct{})
	for i := 0; i < nm.config.Workers; i++ {
		nm.wg.Add(1)
		go nm.worker(ctx)
	}
	nm.running = true
	nm.logger.WithField("workers", nm.config.Workers).Info("Notification manager started")
	return nil
}

// Stop stops the workers after they drain the queue
func (nm *NotificationManager) Stop() error {
	nm.mu.Lock()
	if !nm.running {
		nm.mu.Unlock()
		return nil
	}
	nm.running = false
	close(nm.stopCh)
	nm.mu.Unlock()

	nm.wg.Wait()
	nm.logger.Info("Notification manager stopped")
	return nil
}

// IsHealthy returns whether the notification manager is healthy
func (nm *NotificationManager) IsHealthy() bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.running
}

// Notify records notice and queues it for delivery. A full queue drops
// the notice; it stays visible through Recent.
func (nm *NotificationManager) Notify(notice *models.Notice) error {
	if notice.ID == "" {
		notice.ID = uuid.NewString()
	}
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = time.Now()
	}

	nm.mu.Lock()
	nm.recent = append(nm.recent, notice)
	if len(nm.recent) > nm.config.History {
		nm.recent = nm.recent[len(nm.recent)-nm.config.History:]
	}
	running := nm.running
	nm.mu.Unlock()

	if !running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager not running")
	}

	select {
	case nm.queue <- notice:
		nm.mu.Lock()
		nm.stats.TotalQueued++
		nm.mu.Unlock()
		return nil
	default:
		nm.mu.Lock()
		nm.stats.TotalDropped++
		nm.mu.Unlock()
		nm.logger.WithField("notice_id", notice.ID).Warn("Notification queue full, dropping notice")
		return utils.NewAppError(utils.ErrCodeInternal, "Notification queue full")
	}
}

// Recent returns up to limit notices, newest first.
func (nm *NotificationManager) Recent(limit int) []*models.Notice {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	if limit <= 0 || limit > len(nm.recent) {
		limit = len(nm.recent)
	}
	out := make([]*models.Notice, 0, limit)
	for i := len(nm.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, nm.recent[i])
	}
	return out
}

// TransactionSent announces a transaction the node accepted.
func (nm *NotificationManager) TransactionSent(ctx context.Context, name string, account common.Address, tx *types.Transaction, expectedEvent string) {
	_ = nm.Notify(&models.Notice{
		Kind:    models.NoticeInfo,
		Action:  name,
		Title:   "Transaction sent",
		Message: fmt.Sprintf("%s submitted, waiting for confirmation", name),
		TxHash:  tx.Hash().Hex(),
		Data: map[string]interface{}{
			"account":        account.Hex(),
			"expected_event": expectedEvent,
		},
	})
}

// TransactionSettled announces the outcome of a transaction.
func (nm *NotificationManager) TransactionSettled(ctx context.Context, result *action.Result) {
	_ = nm.Notify(NoticeFromResult(result))
}

// NoticeFromResult describes a settled result for the user.
func NoticeFromResult(r *action.Result) *models.Notice {
	n := &models.Notice{
		Action: r.Action,
		Data: map[string]interface{}{
			"account":  r.Account.Hex(),
			"duration": r.Duration.String(),
		},
	}
	if r.TxHash != (common.Hash{}) {
		n.TxHash = r.TxHash.Hex()
	}
	if r.BlockNumber > 0 {
		n.Data["block_number"] = r.BlockNumber
	}

	switch r.Outcome {
	case action.OutcomeSuccess:
		n.Kind = models.NoticeSuccess
		n.Title = "Transaction confirmed"
		n.Message = fmt.Sprintf("%s succeeded for %s", r.Action, utils.ShortAddress(r.Account))
	case action.OutcomeAmbiguous:
		n.Kind = models.NoticeAmbiguous
		n.Title = "Outcome unconfirmed"
		n.Message = utils.ErrAmbiguousOutcome.Message
	default:
		n.Kind = models.NoticeFailure
		n.Title = "Transaction failed"
		n.Message = r.Error
	}
	return n
}

func (nm *NotificationManager) worker(ctx context.Context) {
	defer nm.wg.Done()
	for {
		select {
		case notice := <-nm.queue:
			nm.dispatch(ctx, notice)
		case <-nm.stopCh:
			for {
				select {
				case notice := <-nm.queue:
					nm.dispatch(ctx, notice)
				default:
					return
				}
			}
		}
	}
}

func (nm *NotificationManager) dispatch(ctx context.Context, notice *models.Notice) {
	nm.mu.RLock()
	channels := append([]Channel(nil), nm.channels...)
	nm.mu.RUnlock()

	for _, ch := range channels {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), nm.config.NotificationTimeout)
		err := ch.Send(sendCtx, notice)
		cancel()
		nm.record(ch.Name(), notice, err)
	}
}

func (nm *NotificationManager) record(channel string, notice *models.Notice, err error) {
	pm := nm.metrics.GetPrometheusMetrics()

	nm.mu.Lock()
	defer nm.mu.Unlock()
	if err != nil {
		nm.stats.TotalFailed++
		msg := err.Error()
		now := time.Now()
		nm.stats.LastError = &msg
		nm.stats.LastErrorTime = &now
		if pm != nil {
			pm.RecordNotificationFailure(channel, string(notice.Kind))
		}
		nm.logger.WithFields(logrus.Fields{
			"channel":   channel,
			"notice_id": notice.ID,
		}).WithError(err).Warn("Failed to deliver notice")
		return
	}
	nm.stats.TotalDelivered++
	if pm != nil {
		pm.RecordNotificationSent(channel, string(notice.Kind))
	}
}

// GetStats returns notification statistics
func (nm *NotificationManager) GetStats() *NotificationStats {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	stats := nm.stats
	stats.QueueLength = len(nm.queue)
	stats.Channels = make([]string, 0, len(nm.channels))
	for _, ch := range nm.channels {
		stats.Channels = append(stats.Channels, ch.Name())
	}
	return &stats
}

func (nm *NotificationManager) GetHealth() *NotificationHealth {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	health := &NotificationHealth{Healthy: nm.running}
	if nm.stats.LastError != nil {
		health.Error = *nm.stats.LastError
	}
	return health
}
