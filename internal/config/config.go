// Package config provides environment-sourced configuration for the Anchor
// relay with production-ready defaults for every tunable.
//
// Configuration is read from ANCHOR_-prefixed environment variables, with an
// optional .env file loaded via godotenv for development deployments. Every
// pipeline tunable has a default so a bare `anchord` with only RPC and
// contract settings is a working deployment. Daemon flags may override
// individual values after loading.
//
// CONFIGURATION AREAS:
//   - Pipeline: batch size, retry bounds, backoff schedule, concurrency
//   - Chain: node RPC endpoint, registry contract, sending account, gas safety
//   - Persistence: Postgres DSN (empty selects the in-memory store)
//   - Surfaces: API bind address, scheduler cron specs, log level
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/concave-dev/anchor/internal/logging"
	"github.com/concave-dev/anchor/internal/validate"
	"github.com/joho/godotenv"
)

const (
	// envPrefix is prepended to every configuration variable name.
	envPrefix = "ANCHOR_"

	// DefaultBatchSize is how many payloads one scheduled batch run selects.
	DefaultBatchSize = 10

	// DefaultMaxRetries bounds retry attempts beyond the first try, so a
	// payload sees at most DefaultMaxRetries+1 chain calls per submission.
	DefaultMaxRetries = 3

	// DefaultRetryDelay seeds the exponential backoff schedule.
	DefaultRetryDelay = 1 * time.Second

	// DefaultMaxRetryDelay caps the exponential backoff schedule.
	DefaultMaxRetryDelay = 30 * time.Second

	// DefaultBackoffMultiplier grows the delay between successive retries.
	DefaultBackoffMultiplier = 2.0

	// DefaultPreserveOrder selects sequential batch execution, trading
	// throughput for input-order results and serialized nonce usage.
	DefaultPreserveOrder = true

	// DefaultMaxConcurrent bounds fan-out per chunk in concurrent batch mode.
	DefaultMaxConcurrent = 5

	// DefaultGasSafetyMultiplier pads the node's gas estimate to absorb
	// state drift between estimation and inclusion.
	DefaultGasSafetyMultiplier = 1.2

	// DefaultFallbackGasLimit is used when gas estimation itself fails.
	// Conservative fixed ceiling rather than aborting the submission.
	DefaultFallbackGasLimit = 500_000

	// DefaultConfirmationBlocks is the confirmation depth the monitor waits
	// for before marking a payload confirmed.
	DefaultConfirmationBlocks = 1

	// DefaultRPCTimeout bounds individual chain RPC calls.
	DefaultRPCTimeout = 30 * time.Second

	// DefaultAPIBindAddr is the REST API listen address.
	DefaultAPIBindAddr = "0.0.0.0:7430"

	// DefaultLogLevel balances visibility against noise.
	DefaultLogLevel = "INFO"

	// DefaultBatchCronSpec runs the batch submitter every minute.
	DefaultBatchCronSpec = "* * * * *"

	// DefaultRetryCronSpec sweeps retryable failures every five minutes.
	DefaultRetryCronSpec = "*/5 * * * *"
)

// Config holds the full relay configuration assembled from environment
// variables and defaults.
type Config struct {
	// Pipeline tuning
	BatchSize           int
	MaxRetries          int
	RetryDelay          time.Duration
	MaxRetryDelay       time.Duration
	BackoffMultiplier   float64
	PreserveOrder       bool
	MaxConcurrent       int
	GasSafetyMultiplier float64
	FallbackGasLimit    uint64
	ConfirmationBlocks  uint64

	// Chain access
	RPCURL          string
	RPCTimeout      time.Duration
	ContractAddress string
	FromAddress     string

	// Persistence; empty selects the in-memory store
	DatabaseURL string

	// Surfaces
	APIBindAddr   string
	LogLevel      string
	BatchCronSpec string
	RetryCronSpec string
}

// Default returns a Config with every tunable at its default and chain
// access fields empty (they have no sensible defaults and must be supplied).
func Default() *Config {
	return &Config{
		BatchSize:           DefaultBatchSize,
		MaxRetries:          DefaultMaxRetries,
		RetryDelay:          DefaultRetryDelay,
		MaxRetryDelay:       DefaultMaxRetryDelay,
		BackoffMultiplier:   DefaultBackoffMultiplier,
		PreserveOrder:       DefaultPreserveOrder,
		MaxConcurrent:       DefaultMaxConcurrent,
		GasSafetyMultiplier: DefaultGasSafetyMultiplier,
		FallbackGasLimit:    DefaultFallbackGasLimit,
		ConfirmationBlocks:  DefaultConfirmationBlocks,
		RPCTimeout:          DefaultRPCTimeout,
		APIBindAddr:         DefaultAPIBindAddr,
		LogLevel:            DefaultLogLevel,
		BatchCronSpec:       DefaultBatchCronSpec,
		RetryCronSpec:       DefaultRetryCronSpec,
	}
}

// FromEnv builds a Config from ANCHOR_-prefixed environment variables on top
// of defaults. A .env file in the working directory is loaded first when
// present; a missing file is not an error.
func FromEnv() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logging.Debug("Config: loaded environment from .env file")
	}

	cfg := Default()
	var err error

	if cfg.BatchSize, err = envInt("BATCH_SIZE", cfg.BatchSize); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = envInt("MAX_RETRIES", cfg.MaxRetries); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = envDuration("RETRY_DELAY", cfg.RetryDelay); err != nil {
		return nil, err
	}
	if cfg.MaxRetryDelay, err = envDuration("MAX_RETRY_DELAY", cfg.MaxRetryDelay); err != nil {
		return nil, err
	}
	if cfg.BackoffMultiplier, err = envFloat("BACKOFF_MULTIPLIER", cfg.BackoffMultiplier); err != nil {
		return nil, err
	}
	if cfg.PreserveOrder, err = envBool("PRESERVE_ORDER", cfg.PreserveOrder); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrent, err = envInt("MAX_CONCURRENT", cfg.MaxConcurrent); err != nil {
		return nil, err
	}
	if cfg.GasSafetyMultiplier, err = envFloat("GAS_SAFETY_MULTIPLIER", cfg.GasSafetyMultiplier); err != nil {
		return nil, err
	}
	if cfg.FallbackGasLimit, err = envUint64("FALLBACK_GAS_LIMIT", cfg.FallbackGasLimit); err != nil {
		return nil, err
	}
	if cfg.ConfirmationBlocks, err = envUint64("CONFIRMATION_BLOCKS", cfg.ConfirmationBlocks); err != nil {
		return nil, err
	}
	if cfg.RPCTimeout, err = envDuration("RPC_TIMEOUT", cfg.RPCTimeout); err != nil {
		return nil, err
	}

	cfg.RPCURL = envString("RPC_URL", cfg.RPCURL)
	cfg.ContractAddress = envString("CONTRACT_ADDRESS", cfg.ContractAddress)
	cfg.FromAddress = envString("FROM_ADDRESS", cfg.FromAddress)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.APIBindAddr = envString("API_BIND_ADDR", cfg.APIBindAddr)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.BatchCronSpec = envString("BATCH_CRON", cfg.BatchCronSpec)
	cfg.RetryCronSpec = envString("RETRY_CRON", cfg.RetryCronSpec)

	return cfg, nil
}

// Validate checks every tunable for operational sanity and the chain access
// fields for well-formedness. Called once at daemon startup so bad settings
// fail fast with a clear message.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", c.MaxRetries)
	}
	if err := validate.ValidatePositiveTimeout(c.RetryDelay, "retry delay"); err != nil {
		return err
	}
	if err := validate.ValidatePositiveTimeout(c.MaxRetryDelay, "max retry delay"); err != nil {
		return err
	}
	if c.MaxRetryDelay < c.RetryDelay {
		return fmt.Errorf("max retry delay %v is below initial retry delay %v", c.MaxRetryDelay, c.RetryDelay)
	}
	if c.BackoffMultiplier < 1.0 {
		return fmt.Errorf("backoff multiplier must be at least 1.0, got %g", c.BackoffMultiplier)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.GasSafetyMultiplier < 1.0 {
		return fmt.Errorf("gas safety multiplier must be at least 1.0, got %g", c.GasSafetyMultiplier)
	}
	if c.FallbackGasLimit == 0 {
		return fmt.Errorf("fallback gas limit must be positive")
	}
	if c.ConfirmationBlocks == 0 {
		return fmt.Errorf("confirmation blocks must be positive")
	}
	if err := validate.ValidatePositiveTimeout(c.RPCTimeout, "rpc timeout"); err != nil {
		return err
	}

	if err := validate.ValidateRPCURL(c.RPCURL); err != nil {
		return err
	}
	if err := validate.ValidateChainAddress(c.ContractAddress, "contract address"); err != nil {
		return err
	}
	if err := validate.ValidateChainAddress(c.FromAddress, "from address"); err != nil {
		return err
	}

	if _, err := validate.ParseBindAddress(c.APIBindAddr); err != nil {
		return fmt.Errorf("invalid API bind address: %w", err)
	}
	if err := logging.ValidateLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// envString returns the named ANCHOR_ variable or the fallback when unset.
func envString(name, fallback string) string {
	if v := os.Getenv(envPrefix + name); v != "" {
		return v
	}
	return fallback
}

// envInt parses the named ANCHOR_ variable as an integer.
func envInt(name string, fallback int) (int, error) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %q is not an integer", envPrefix, name, v)
	}
	return n, nil
}

// envUint64 parses the named ANCHOR_ variable as an unsigned integer.
func envUint64(name string, fallback uint64) (uint64, error) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %q is not an unsigned integer", envPrefix, name, v)
	}
	return n, nil
}

// envFloat parses the named ANCHOR_ variable as a float.
func envFloat(name string, fallback float64) (float64, error) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %q is not a number", envPrefix, name, v)
	}
	return f, nil
}

// envBool parses the named ANCHOR_ variable as a boolean.
func envBool(name string, fallback bool) (bool, error) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s%s: %q is not a boolean", envPrefix, name, v)
	}
	return b, nil
}

// envDuration parses the named ANCHOR_ variable as a Go duration string.
func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %q is not a duration", envPrefix, name, v)
	}
	return d, nil
}
