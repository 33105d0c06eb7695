// Package main implements the Anchor daemon (anchord).
// Anchor is an off-chain signing relay: it accepts payloads signed by an
// upstream service, batches them, and submits them to an on-chain registry
// contract with retry, backoff, and confirmation tracking.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/concave-dev/anchor/internal/api"
	"github.com/concave-dev/anchor/internal/chain"
	"github.com/concave-dev/anchor/internal/config"
	"github.com/concave-dev/anchor/internal/logging"
	"github.com/concave-dev/anchor/internal/pipeline"
	"github.com/concave-dev/anchor/internal/scheduler"
	"github.com/concave-dev/anchor/internal/store"
	"github.com/concave-dev/anchor/internal/store/memory"
	"github.com/concave-dev/anchor/internal/store/postgres"
	"github.com/concave-dev/anchor/internal/validate"
	"github.com/concave-dev/anchor/internal/version"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// Flag values that override environment configuration when explicitly set
var flags struct {
	APIBindAddr string // REST API bind address
	RPCURL      string // Chain node JSON-RPC endpoint
	Contract    string // Registry contract address
	From        string // Relay sending account
	DatabaseURL string // Postgres DSN; empty selects the in-memory store
	LogLevel    string // Log level: DEBUG, INFO, WARN, ERROR
	NoScheduler bool   // Disable the cron scheduler (API-driven only)
}

// Root command
var rootCmd = &cobra.Command{
	Use:   "anchord",
	Short: "Anchor relay daemon for submitting signed payloads to an on-chain registry",
	Long: `Anchor daemon (anchord) relays off-chain signed payloads to a registry
smart contract.

Payloads arrive pre-signed from an upstream signing service, are persisted,
and flow through a batching pipeline with failure classification, exponential
backoff, and detached confirmation monitoring.`,
	Version:      version.AnchordVersion,
	SilenceUsage: true,
	Example: `  # Run against a local node with the in-memory store
  anchord --rpc-url=http://127.0.0.1:8545 \
    --contract=0x5FbDB2315678afecb367f032d93F642f64180aa3 \
    --from=0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266

  # Production: Postgres persistence, env-driven config
  ANCHOR_DATABASE_URL=postgres://anchor:secret@db/anchor anchord

  # API-only instance, batches triggered over REST
  anchord --no-scheduler`,
	RunE: runDaemon,
}

func init() {
	rootCmd.Flags().StringVar(&flags.APIBindAddr, "api", config.DefaultAPIBindAddr,
		"Address and port for the REST API (e.g., 0.0.0.0:7430)")
	rootCmd.Flags().StringVar(&flags.RPCURL, "rpc-url", "",
		"JSON-RPC endpoint of the chain node")
	rootCmd.Flags().StringVar(&flags.Contract, "contract", "",
		"Registry contract address")
	rootCmd.Flags().StringVar(&flags.From, "from", "",
		"Sending account (must be unlocked on the node)")
	rootCmd.Flags().StringVar(&flags.DatabaseURL, "db-url", "",
		"Postgres DSN for persistence (empty uses the in-memory store)")
	rootCmd.Flags().StringVar(&flags.LogLevel, "log-level", "",
		"Log level: DEBUG, INFO, WARN, ERROR")
	rootCmd.Flags().BoolVar(&flags.NoScheduler, "no-scheduler", false,
		"Disable scheduled batch and retry runs")
}

// loadConfig assembles the daemon configuration: environment first, then
// explicit flag overrides, then validation.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("api") {
		cfg.APIBindAddr = flags.APIBindAddr
	}
	if flags.RPCURL != "" {
		cfg.RPCURL = flags.RPCURL
	}
	if flags.Contract != "" {
		cfg.ContractAddress = flags.Contract
	}
	if flags.From != "" {
		cfg.FromAddress = flags.From
	}
	if flags.DatabaseURL != "" {
		cfg.DatabaseURL = flags.DatabaseURL
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore selects the persistence backend: Postgres when a DSN is
// configured, the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logging.Warn("No database configured, using in-memory store (payloads lost on restart)")
		return memory.New(), func() {}, nil
	}

	pg, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
	}
	logging.Info("Connected to Postgres payload store")
	return pg, func() {
		if err := pg.Close(); err != nil {
			logging.Error("Error closing postgres store: %v", err)
		}
	}, nil
}

// Runs the daemon with graceful shutdown handling
func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logging.SetLevel(cfg.LogLevel)

	logging.Info("Starting Anchor daemon v%s", version.AnchordVersion)
	logging.Info("Chain: rpc=%s contract=%s from=%s", cfg.RPCURL, cfg.ContractAddress, cfg.FromAddress)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	payloadStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Chain access
	contract := common.HexToAddress(cfg.ContractAddress)
	from := common.HexToAddress(cfg.FromAddress)
	chainClient, err := chain.NewRPCClient(cfg.RPCURL, contract, from, cfg.RPCTimeout)
	if err != nil {
		return fmt.Errorf("failed to create chain client: %w", err)
	}

	// Pipeline wiring
	tracker := pipeline.NewInFlightTracker()
	backoff := pipeline.NewBackoffPolicy(cfg.RetryDelay, cfg.MaxRetryDelay, cfg.BackoffMultiplier)
	selector := pipeline.NewBatchSelector(payloadStore, tracker, cfg.MaxRetries)
	executor := pipeline.NewSubmissionExecutor(payloadStore, chainClient, tracker, backoff,
		pipeline.ExecutorConfig{
			MaxRetries:          cfg.MaxRetries,
			GasSafetyMultiplier: cfg.GasSafetyMultiplier,
			FallbackGasLimit:    cfg.FallbackGasLimit,
			ConfirmationBlocks:  cfg.ConfirmationBlocks,
		})
	orchestrator := pipeline.NewBatchOrchestrator(payloadStore, selector, executor, tracker, backoff,
		pipeline.OrchestratorConfig{
			BatchSize:     cfg.BatchSize,
			PreserveOrder: cfg.PreserveOrder,
			MaxConcurrent: cfg.MaxConcurrent,
		})

	// Scheduler
	var sched *scheduler.Scheduler
	if flags.NoScheduler {
		logging.Info("Scheduler disabled, batches must be triggered via the API")
	} else {
		sched = scheduler.New(orchestrator, cfg.BatchCronSpec, cfg.RetryCronSpec)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// REST API
	bindAddr, err := validate.ParseBindAddress(cfg.APIBindAddr)
	if err != nil {
		return fmt.Errorf("invalid API bind address: %w", err)
	}
	apiServer := api.NewServer(api.Config{
		BindAddr:     bindAddr.Host,
		BindPort:     bindAddr.Port,
		Store:        payloadStore,
		Executor:     executor,
		Orchestrator: orchestrator,
		Tracker:      tracker,
		Chain:        chainClient,
		FromAddress:  from,
	})
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logging.Success("Anchor daemon started successfully")
	logging.Info("Daemon running... Press Ctrl+C to shutdown")

	select {
	case sig := <-sigCh:
		logging.Info("Received signal: %v", sig)
	case <-ctx.Done():
		logging.Info("Context cancelled")
	}

	// Graceful shutdown
	logging.Info("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop()
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("Error shutting down API server: %v", err)
	}

	// Let in-flight confirmation monitors persist their final state, but
	// never past the shutdown budget
	if err := executor.WaitMonitorsContext(shutdownCtx); err != nil {
		logging.Warn("Shutdown proceeding without monitor completion: %v", err)
	}

	logging.Success("Anchor daemon shutdown completed")
	return nil
}

// Main entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
