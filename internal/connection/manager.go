package connection

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// Manager defines the connection manager interface
type Manager interface {
	Client(ctx context.Context) (*ethclient.Client, error)
	HealthCheck(ctx context.Context) error
	ChainID(ctx context.Context) (*big.Int, error)
	IsConnected() bool
	Close() error
	Stats() ConnectionStats
}

var _ Manager = (*ConnectionManager)(nil)

// ConnectionManager dials the configured endpoint, failing over to the
// backup endpoints in order.
type ConnectionManager struct {
	config         *config.ChainConfig
	urls           []string
	currentIndex   int
	client         *ethclient.Client
	chainID        *big.Int
	mu             sync.RWMutex
	logger         *logrus.Entry
	stats          ConnectionStats
	isHealthy      bool
	metricsManager *metrics.Manager
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	Reconnects      uint64    `json:"reconnects"`
	FailedDials     uint64    `json:"failed_dials"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
	ChainID         uint64    `json:"chain_id"`
	LatestBlock     uint64    `json:"latest_block"`
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(cfg *config.ChainConfig, metricsManager *metrics.Manager) *ConnectionManager {
	urls := append([]string{cfg.Endpoint}, cfg.BackupEndpoints...)

	return &ConnectionManager{
		config:         cfg,
		urls:           urls,
		logger:         utils.Component("connection"),
		metricsManager: metricsManager,
		stats: ConnectionStats{
			CurrentURL: cfg.Endpoint,
		},
	}
}

// Client returns the live client, dialing on first use.
func (cm *ConnectionManager) Client(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.RLock()
	client := cm.client
	cm.mu.RUnlock()

	if client != nil {
		return client, nil
	}
	return cm.connect(ctx)
}

func (cm *ConnectionManager) connect(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		return cm.client, nil
	}

	attempts := cm.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	urls := cm.rotatedURLs()

	for attempt := 0; attempt < attempts; attempt++ {
		for i, url := range urls {
			cm.logger.WithFields(logrus.Fields{"url": url, "attempt": attempt + 1}).Info("Attempting connection")

			client, chainID, err := cm.dial(ctx, url)
			if err != nil {
				cm.logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("Connection failed")
				cm.stats.FailedDials++
				if pm := cm.metricsManager.GetPrometheusMetrics(); pm != nil {
					pm.RecordConnectionError(url, "dial_failed")
				}
				continue
			}

			cm.client = client
			cm.chainID = chainID
			cm.currentIndex = (cm.currentIndex + i) % len(cm.urls)
			cm.stats.CurrentURL = url
			cm.stats.ChainID = chainID.Uint64()
			cm.stats.LastConnectedAt = time.Now()
			cm.stats.IsHealthy = true
			cm.isHealthy = true

			cm.logger.WithFields(logrus.Fields{"url": url, "chain_id": chainID}).Info("Connected to node")
			return client, nil
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cm.config.RetryDelay):
			}
		}
	}

	return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to any node",
		"All connection attempts exhausted")
}

// dial connects and verifies the chain id against the configured one.
func (cm *ConnectionManager) dial(ctx context.Context, url string) (*ethclient.Client, *big.Int, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cm.requestTimeout())
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, url)
	if err != nil {
		return nil, nil, err
	}

	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	if cm.config.ChainID != 0 && chainID.Int64() != cm.config.ChainID {
		client.Close()
		return nil, nil, fmt.Errorf("chain id mismatch: expected %d, got %s", cm.config.ChainID, chainID)
	}
	return client, chainID, nil
}

// Reconnect drops the current client and dials again, starting from the
// endpoint after the failed one.
func (cm *ConnectionManager) Reconnect(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.Lock()
	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
	}
	cm.currentIndex = (cm.currentIndex + 1) % len(cm.urls)
	cm.stats.Reconnects++
	cm.mu.Unlock()

	return cm.connect(ctx)
}

// HealthCheck verifies the node answers and records the head block.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	client, err := cm.Client(ctx)
	if err != nil {
		cm.setHealthy(false)
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, cm.requestTimeout())
	defer cancel()

	blockNumber, err := client.BlockNumber(checkCtx)
	if err != nil {
		cm.setHealthy(false)
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to get latest block", err.Error())
	}

	cm.mu.Lock()
	cm.stats.LatestBlock = blockNumber
	cm.stats.LastHealthCheck = time.Now()
	cm.mu.Unlock()
	cm.setHealthy(true)

	cm.logger.WithField("latest_block", blockNumber).Debug("Health check passed")
	return nil
}

func (cm *ConnectionManager) setHealthy(healthy bool) {
	cm.mu.Lock()
	cm.isHealthy = healthy
	cm.stats.IsHealthy = healthy
	cm.mu.Unlock()

	if pm := cm.metricsManager.GetPrometheusMetrics(); pm != nil {
		pm.UpdateComponentHealth("connection", healthy)
	}
}

// ChainID returns the chain id of the connected node.
func (cm *ConnectionManager) ChainID(ctx context.Context) (*big.Int, error) {
	if _, err := cm.Client(ctx); err != nil {
		return nil, err
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return new(big.Int).Set(cm.chainID), nil
}

// IsConnected returns whether the manager is connected
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client != nil && cm.isHealthy
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
	}

	cm.isHealthy = false
	cm.logger.Info("Connection manager closed")
	return nil
}

// Stats returns connection statistics
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.stats
}

func (cm *ConnectionManager) requestTimeout() time.Duration {
	if cm.config.RequestTimeout > 0 {
		return cm.config.RequestTimeout
	}
	return 30 * time.Second
}

// rotatedURLs returns all endpoints starting from the current index.
func (cm *ConnectionManager) rotatedURLs() []string {
	n := len(cm.urls)
	rotated := make([]string, n)
	for i := range cm.urls {
		rotated[i] = cm.urls[(cm.currentIndex+i)%n]
	}
	return rotated
}
