// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/smartdevs17/stakebet/pkg/utils"
	"github.com/spf13/viper"
)

// ConfigErrorMessage is the only thing shown to a user when contract
// configuration is incomplete.
const ConfigErrorMessage = "App not working as expected. Please contact administrator"

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Chain         ChainConfig        `mapstructure:"chain"`
	Contracts     ContractsConfig    `mapstructure:"contracts"`
	Wallet        WalletConfig       `mapstructure:"wallet"`
	Monitor       MonitorConfig      `mapstructure:"monitor"`
	Loader        LoaderConfig       `mapstructure:"loader"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Redis         RedisConfig        `mapstructure:"redis"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ChainConfig contains RPC connection configuration
type ChainConfig struct {
	Endpoint            string        `mapstructure:"endpoint"`
	BackupEndpoints     []string      `mapstructure:"backup_endpoints"`
	ChainID             int64         `mapstructure:"chain_id"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	RetryAttempts       int           `mapstructure:"retry_attempts"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
}

// ContractsConfig holds the five deployed contract addresses.
type ContractsConfig struct {
	BetToken      string `mapstructure:"bet_token"`
	BetStableSwap string `mapstructure:"bet_stable_swap"`
	StableToken   string `mapstructure:"stable_token"`
	BetManager    string `mapstructure:"bet_manager"`
	BetPool       string `mapstructure:"bet_pool"`
}

// Addresses is the parsed form of ContractsConfig.
type Addresses struct {
	BetToken      common.Address
	BetStableSwap common.Address
	StableToken   common.Address
	BetManager    common.Address
	BetPool       common.Address
}

// WalletConfig selects the signing key. Leaving both fields empty starts
// the client disconnected.
type WalletConfig struct {
	PrivateKey       string `mapstructure:"private_key"`
	KeystorePath     string `mapstructure:"keystore_path"`
	KeystorePassword string `mapstructure:"keystore_password"`
}

// MonitorConfig contains block notification configuration
type MonitorConfig struct {
	UseSubscription bool          `mapstructure:"use_subscription"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
}

// LoaderConfig controls betting-session enumeration
type LoaderConfig struct {
	SliceSize      int `mapstructure:"slice_size"`
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
	RetentionDays    int           `mapstructure:"retention_days"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
}

// RedisConfig contains the snapshot fan-out configuration
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Channel     string        `mapstructure:"channel"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	QueueSize           int           `mapstructure:"queue_size"`
	Workers             int           `mapstructure:"workers"`
	WebhookURL          string        `mapstructure:"webhook_url"`
	NotificationTimeout time.Duration `mapstructure:"notification_timeout"`
	RetryAttempts       int           `mapstructure:"retry_attempts"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from an optional .env file, a config file and
// environment variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("STAKEBET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The contract addresses keep their deployment env names.
	_ = v.BindEnv("contracts.bet_token", "STAKEBET_CONTRACTS_BET_TOKEN", "BET_TOKEN")
	_ = v.BindEnv("contracts.bet_stable_swap", "STAKEBET_CONTRACTS_BET_STABLE_SWAP", "BET_STABLE_SWAP")
	_ = v.BindEnv("contracts.stable_token", "STAKEBET_CONTRACTS_STABLE_TOKEN", "STABLE_TOKEN")
	_ = v.BindEnv("contracts.bet_manager", "STAKEBET_CONTRACTS_BET_MANAGER", "BET_MANAGER")
	_ = v.BindEnv("contracts.bet_pool", "STAKEBET_CONTRACTS_BET_POOL", "BET_POOL")
	_ = v.BindEnv("wallet.private_key", "STAKEBET_WALLET_PRIVATE_KEY", "PRIVATE_KEY")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath == "" && errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if endpoint := os.Getenv("RPC_URL"); endpoint != "" {
		config.Chain.Endpoint = endpoint
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stakebet")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	v.SetDefault("chain.endpoint", "ws://127.0.0.1:8546")
	v.SetDefault("chain.chain_id", 0) // 0 asks the node
	v.SetDefault("chain.request_timeout", "30s")
	v.SetDefault("chain.retry_attempts", 3)
	v.SetDefault("chain.retry_delay", "5s")
	v.SetDefault("chain.health_check_interval", "30s")
	v.SetDefault("chain.confirmation_timeout", "5m")

	v.SetDefault("monitor.use_subscription", true)
	v.SetDefault("monitor.poll_interval", "4s")
	v.SetDefault("monitor.read_timeout", "10s")

	v.SetDefault("loader.slice_size", 100)
	v.SetDefault("loader.max_concurrency", 16)

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/stakebet.db")
	v.SetDefault("storage.max_connections", 10)
	v.SetDefault("storage.max_idle_time", "15m")
	v.SetDefault("storage.retention_days", 30)
	v.SetDefault("storage.cleanup_interval", "24h")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "stakebet:balances")
	v.SetDefault("redis.snapshot_ttl", "10m")

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.queue_size", 100)
	v.SetDefault("notifications.workers", 2)
	v.SetDefault("notifications.notification_timeout", "10s")
	v.SetDefault("notifications.retry_attempts", 3)
	v.SetDefault("notifications.retry_delay", "1s")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.enable_metrics", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
}

// Addresses parses the contract addresses. Every missing or malformed
// address is reported in a single configuration error.
func (c ContractsConfig) Addresses() (Addresses, error) {
	var (
		out      Addresses
		problems []string
	)
	fields := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"bet_token", c.BetToken, &out.BetToken},
		{"bet_stable_swap", c.BetStableSwap, &out.BetStableSwap},
		{"stable_token", c.StableToken, &out.StableToken},
		{"bet_manager", c.BetManager, &out.BetManager},
		{"bet_pool", c.BetPool, &out.BetPool},
	}
	for _, f := range fields {
		addr, err := utils.ParseAddress(f.raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("contracts.%s: %v", f.name, err))
			continue
		}
		*f.dst = addr
	}
	if len(problems) > 0 {
		return Addresses{}, utils.NewAppError(utils.ErrCodeConfiguration,
			"contract addresses missing or invalid", strings.Join(problems, "; "))
	}
	return out, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := c.Contracts.Addresses(); err != nil {
		return err
	}
	if c.Chain.Endpoint == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "chain endpoint is required")
	}
	if c.Wallet.PrivateKey != "" && c.Wallet.KeystorePath != "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "wallet.private_key and wallet.keystore_path are mutually exclusive")
	}
	if !c.Monitor.UseSubscription && c.Monitor.PollInterval <= 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "monitor poll interval must be positive")
	}
	if c.Loader.SliceSize <= 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "loader slice size must be positive")
	}
	if c.Storage.Enabled {
		switch c.Storage.Type {
		case "sqlite", "postgres":
		default:
			return utils.NewAppError(utils.ErrCodeConfiguration, "unsupported storage type", c.Storage.Type)
		}
		if c.Storage.ConnectionString == "" {
			return utils.NewAppError(utils.ErrCodeConfiguration, "storage connection string is required")
		}
		if c.Storage.RetentionDays <= 0 {
			return utils.NewAppError(utils.ErrCodeConfiguration, "storage retention days must be positive")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "redis address is required when redis is enabled")
	}
	return nil
}
