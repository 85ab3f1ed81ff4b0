package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/smartdevs17/stakebet/internal/betting"
	"github.com/smartdevs17/stakebet/internal/cache"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/connection"
	"github.com/smartdevs17/stakebet/internal/contracts"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/internal/wallet"
	"github.com/smartdevs17/stakebet/pkg/units"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// loadConfig loads, validates and applies logging configuration. A
// configuration error is returned as is so main can show the fixed
// user-facing message.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeConfiguration, "failed to load configuration", err)
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if viper.GetBool("debug") {
		cfg.Logging.Level = "debug"
	}
	if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "stakebet",
	Short:         "Betting, staking and swap client for the stakebet contracts",
	Long:          `A long-running client that follows a wallet's balances block by block and drives the swap, bet, stake and claim contracts over an HTTP API.`,
	Version:       AppVersion,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runServe,
}

// serveCmd runs the service
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the balance poller and HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return err
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		app.Stop()
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")
	app.Stop()
	return nil
}

// dialChain connects to the configured endpoint for one-shot commands.
func dialChain(ctx context.Context, cfg *config.Config) (*connection.ConnectionManager, *contracts.Bindings, *big.Int, error) {
	conn := connection.NewConnectionManager(&cfg.Chain, nil)
	client, err := conn.Client(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	chainID, err := conn.ChainID(ctx)
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	addrs, err := cfg.Contracts.Addresses()
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	return conn, contracts.NewBindings(addrs, client, nil, nil), chainID, nil
}

// balancesCmd reads one balance snapshot
var balancesCmd = &cobra.Command{
	Use:   "balances [address]",
	Short: "Print token balance and claimable amounts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		conn, b, chainID, err := dialChain(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		account, err := resolveAccount(cfg, chainID, args)
		if err != nil {
			return err
		}

		var tokens, winnings, rewards *big.Int
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			tokens, err = b.TokenBalance(gctx, account)
			return err
		})
		g.Go(func() (err error) {
			winnings, err = b.ClaimableFromManager(gctx, account)
			return err
		})
		g.Go(func() (err error) {
			rewards, err = b.ClaimableFromPool(gctx, account)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}
		printSnapshot(&models.BalanceSnapshot{
			Account:              account,
			TokenBalance:         tokens,
			ClaimableFromManager: winnings,
			ClaimableFromPool:    rewards,
		})

		follow, _ := cmd.Flags().GetBool("follow")
		if !follow {
			return nil
		}
		return followSnapshots(ctx, cfg, account)
	},
}

// followSnapshots prints the snapshots a running service publishes.
func followSnapshots(ctx context.Context, cfg *config.Config, account common.Address) error {
	if !cfg.Redis.Enabled {
		return utils.NewAppError(utils.ErrCodeConfiguration, "--follow needs redis enabled")
	}
	c, err := cache.NewSnapshotCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer c.Close()

	updates, err := c.Subscribe(ctx)
	if err != nil {
		return err
	}
	for snap := range updates {
		if snap.Account == account {
			printSnapshot(snap)
		}
	}
	return nil
}

func resolveAccount(cfg *config.Config, chainID *big.Int, args []string) (common.Address, error) {
	if len(args) == 1 {
		return utils.ParseAddress(args[0])
	}
	signer, err := wallet.FromConfig(cfg.Wallet, chainID)
	if err != nil {
		return common.Address{}, err
	}
	if signer == nil {
		return common.Address{}, utils.NewAppError(utils.ErrCodeValidation, "address argument required when no wallet is configured")
	}
	return signer.Address(), nil
}

func printSnapshot(s *models.BalanceSnapshot) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Account:\t%s\n", s.Account.Hex())
	if s.BlockNumber > 0 {
		fmt.Fprintf(w, "Block:\t%d\n", s.BlockNumber)
	}
	fmt.Fprintf(w, "Tokens:\t%s\n", units.FormatEther(s.TokenBalance))
	fmt.Fprintf(w, "Winnings to claim:\t%s\n", units.FormatEther(s.ClaimableFromManager))
	fmt.Fprintf(w, "Rewards to claim:\t%s\n", units.FormatEther(s.ClaimableFromPool))
	w.Flush()
}

// sessionsCmd lists every betting session
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List betting sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		conn, b, chainID, err := dialChain(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		var caller *common.Address
		if signer, err := wallet.FromConfig(cfg.Wallet, chainID); err == nil && signer != nil {
			account := signer.Address()
			caller = &account
		}

		sessions, err := betting.NewLoader(b.Manager, loaderConfig(cfg), nil).Load(ctx, caller, func(percent int) {
			fmt.Fprintf(os.Stderr, "\rLoading sessions... %d%%", percent)
		})
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}

		now := time.Now()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tSTART\tSUBJECT\tTOTAL WAGERED\tYOURS")
		for _, s := range sessions {
			yours := "-"
			if s.CallerWagered != nil {
				yours = units.FormatEther(s.CallerWagered)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				s.ID, betting.DisplayState(s, now), s.StartTime.Format(time.RFC3339),
				s.SubjectID, units.FormatEther(s.TotalWagered), yours)
		}
		return w.Flush()
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stakebet %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addrs, _ := cfg.Contracts.Addresses()

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Endpoint: %s\n", cfg.Chain.Endpoint)
		fmt.Printf("Bet token: %s\n", addrs.BetToken.Hex())
		fmt.Printf("Bet manager: %s\n", addrs.BetManager.Hex())
		fmt.Printf("Staking pool: %s\n", addrs.BetPool.Hex())
		fmt.Printf("Wallet configured: %t\n", cfg.Wallet.PrivateKey != "" || cfg.Wallet.KeystorePath != "")
		if cfg.Storage.Enabled {
			fmt.Printf("Database: %s\n", cfg.Storage.Type)
		}
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	balancesCmd.Flags().BoolP("follow", "f", false, "keep printing snapshots published by a running service")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(balancesCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, utils.ErrConfiguration) {
			utils.GetLogger().WithError(err).Debug("Configuration error")
			fmt.Fprintln(os.Stderr, config.ConfigErrorMessage)
			os.Exit(1)
		}
		log.Fatal(err)
	}
}
