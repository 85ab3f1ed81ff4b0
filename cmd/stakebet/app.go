package main

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/stakebet/internal/action"
	"github.com/smartdevs17/stakebet/internal/betting"
	"github.com/smartdevs17/stakebet/internal/cache"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/connection"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/monitor"
	"github.com/smartdevs17/stakebet/internal/notification"
	"github.com/smartdevs17/stakebet/internal/server"
	"github.com/smartdevs17/stakebet/internal/session"
	"github.com/smartdevs17/stakebet/internal/storage"
	"github.com/smartdevs17/stakebet/internal/wallet"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// Application represents the main application
type Application struct {
	config       *config.Config
	logger       *logrus.Entry
	metrics      *metrics.Manager
	connection   *connection.ConnectionManager
	client       *ethclient.Client
	chainID      *big.Int
	session      *session.Session
	snapshots    *monitor.SnapshotStore
	poller       *monitor.BalancePoller
	storage      storage.Storage
	journal      *storage.Journal
	cache        *cache.SnapshotCache
	notification *notification.NotificationManager
	hub          *server.Hub
	server       *server.HTTPServer
	stopWatch    func()
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:  cfg,
		logger:  utils.Component("app"),
		metrics: metrics.NewManager(),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := app.initializeComponents(); err != nil {
		app.Stop()
		return nil, err
	}
	return app, nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeChain(); err != nil {
		return fmt.Errorf("failed to initialize chain connection: %w", err)
	}
	if err := app.initializeSession(); err != nil {
		return err
	}
	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initializeCache(); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	if err := app.initializeNotification(); err != nil {
		return fmt.Errorf("failed to initialize notification: %w", err)
	}
	app.initializeMonitor()
	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeChain dials the RPC endpoint and checks the chain id
func (app *Application) initializeChain() error {
	app.connection = connection.NewConnectionManager(&app.config.Chain, app.metrics)

	client, err := app.connection.Client(app.ctx)
	if err != nil {
		return err
	}
	chainID, err := app.connection.ChainID(app.ctx)
	if err != nil {
		return err
	}
	app.client = client
	app.chainID = chainID
	app.logger.WithField("chain_id", chainID).Info("Chain connection established")
	return nil
}

// initializeSession validates the contract addresses
func (app *Application) initializeSession() error {
	sess, err := session.New(app.config.Contracts, app.client, app.metrics)
	if err != nil {
		return err
	}
	app.session = sess
	return nil
}

// initializeStorage initializes the transaction journal
func (app *Application) initializeStorage() error {
	if !app.config.Storage.Enabled {
		return nil
	}

	store, err := storage.NewStorage(&app.config.Storage, app.metrics)
	if err != nil {
		return err
	}
	if err := store.Connect(); err != nil {
		return err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return err
	}

	app.storage = store
	app.journal = storage.NewJournal(store)
	app.logger.WithField("type", app.config.Storage.Type).Info("Storage initialized")
	return nil
}

// initializeCache connects the redis snapshot fan-out
func (app *Application) initializeCache() error {
	if !app.config.Redis.Enabled {
		return nil
	}
	c, err := cache.NewSnapshotCache(app.ctx, app.config.Redis)
	if err != nil {
		return err
	}
	app.cache = c
	return nil
}

// initializeNotification initializes the notification manager
func (app *Application) initializeNotification() error {
	if !app.config.Notifications.Enabled {
		return nil
	}

	cfg := notification.ManagerConfigFrom(app.config.Notifications)
	nm := notification.NewNotificationManager(cfg, app.metrics)
	nm.AddChannel(notification.NewLogChannel())
	if url := app.config.Notifications.WebhookURL; url != "" {
		nm.AddChannel(notification.NewWebhookChannel(url, cfg))
	}
	if err := nm.Start(app.ctx); err != nil {
		return err
	}
	app.notification = nm
	return nil
}

// initializeMonitor wires the balance poller and every snapshot sink
func (app *Application) initializeMonitor() {
	app.snapshots = monitor.NewSnapshotStore()
	app.hub = server.NewHub(app.snapshots.Get)
	app.snapshots.AddSink(app.hub)
	if app.journal != nil {
		app.snapshots.AddSink(app.journal)
	}
	if app.cache != nil {
		app.snapshots.AddSink(app.cache)
	}

	var source monitor.HeadSource
	if app.config.Monitor.UseSubscription {
		source = monitor.NewSubscriptionSource(app.client)
	} else {
		source = monitor.NewPollingSource(app.client, app.config.Monitor.PollInterval)
	}
	app.poller = monitor.NewBalancePoller(source, app.snapshots, monitor.PollerConfig{
		ReadTimeout: app.config.Monitor.ReadTimeout,
	}, app.metrics)
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	var observers action.Observers
	if app.journal != nil {
		observers = append(observers, app.journal)
	}
	if app.notification != nil {
		observers = append(observers, app.notification)
	}

	deps := server.Dependencies{
		Session:      app.session,
		Connect:      app.connectWallet,
		Snapshots:    app.snapshots,
		Poller:       app.poller,
		Loader:       loaderConfig(app.config),
		Waiter:       connection.NewTxWaiter(app.client, app.config.Chain.ConfirmationTimeout),
		Observers:    observers,
		Notification: app.notification,
		Chain:        app.connection,
		Hub:          app.hub,
		Metrics:      app.metrics,
		Version:      AppVersion,
	}
	if app.storage != nil {
		deps.Storage = app.storage
	}

	srv, err := server.NewHTTPServer(&app.config.Server, deps)
	if err != nil {
		return err
	}
	app.server = srv
	return nil
}

func loaderConfig(cfg *config.Config) betting.LoaderConfig {
	return betting.LoaderConfig{
		SliceSize:      cfg.Loader.SliceSize,
		MaxConcurrency: cfg.Loader.MaxConcurrency,
	}
}

// connectWallet builds the configured signer
func (app *Application) connectWallet(ctx context.Context) (wallet.Signer, error) {
	return wallet.FromConfig(app.config.Wallet, app.chainID)
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting stakebet")

	if err := app.poller.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start balance poller: %w", err)
	}
	app.stopWatch = app.poller.Watch(app.session)

	signer, err := app.connectWallet(app.ctx)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}
	if signer != nil {
		app.session.SetSigner(signer)
	} else {
		app.logger.Info("No wallet configured, starting disconnected")
	}

	if app.storage != nil && app.config.Storage.CleanupInterval > 0 {
		app.wg.Add(1)
		go app.retentionLoop()
	}

	if app.config.Server.Enabled {
		if err := app.server.Start(); err != nil {
			return err
		}
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"endpoint":       app.config.Chain.Endpoint,
		"connected":      app.session.Connected(),
	}).Info("stakebet started")
	return nil
}

// retentionLoop prunes settled journal records older than the retention window.
func (app *Application) retentionLoop() {
	defer app.wg.Done()

	ticker := time.NewTicker(app.config.Storage.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			if err := app.storage.Cleanup(app.ctx, app.config.Storage.RetentionDays); err != nil {
				app.logger.WithError(err).Warn("Journal cleanup failed")
			}
		}
	}
}

// Stop stops the application gracefully
func (app *Application) Stop() {
	app.logger.Info("Stopping stakebet")
	app.cancel()
	app.wg.Wait()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}
	if app.stopWatch != nil {
		app.stopWatch()
	}
	if app.poller != nil {
		if err := app.poller.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop balance poller")
		}
	}
	if app.notification != nil {
		if err := app.notification.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop notification manager")
		}
	}
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close cache")
		}
	}
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}
	if app.connection != nil {
		if err := app.connection.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close connection")
		}
	}

	app.logger.Info("stakebet stopped")
}
