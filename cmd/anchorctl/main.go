// Package main contains the CLI entrypoint and command definitions for
// anchorctl, the operator tool for the Anchor relay daemon.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/concave-dev/anchor/cmd/anchorctl/client"
	"github.com/concave-dev/anchor/internal/logging"
	"github.com/concave-dev/anchor/internal/version"
	"github.com/spf13/cobra"
)

const (
	DefaultAPIAddr = "127.0.0.1:7430" // Default daemon API address
)

// Global flags
var global struct {
	APIAddr  string // Daemon API address
	LogLevel string // Log level: DEBUG, INFO, WARN, ERROR
	Timeout  int    // Connection timeout in seconds
	Output   string // Output format: table, json
}

// Root command
var rootCmd = &cobra.Command{
	Use:   "anchorctl",
	Short: "CLI tool for operating the Anchor signed payload relay",
	Long: `Anchor CLI (anchorctl) is a command-line tool for operating an Anchor
relay daemon.

It registers signed payloads, triggers single and batch submissions to the
on-chain registry, retries failures, and inspects relay state.`,
	Version:           version.AnchorctlVersion,
	SilenceUsage:      true,
	PersistentPreRunE: validateGlobalFlags,
	Example: `  # Show relay statistics
  anchorctl stats

  # List pending payloads
  anchorctl payload ls --status=pending

  # Submit one payload now
  anchorctl payload submit 3f2a9c1e-...

  # Run a batch over explicit payload ids
  anchorctl batch run id1,id2,id3

  # Retry recent retryable failures
  anchorctl batch retry

  # Connect to a remote daemon with JSON output
  anchorctl --api=192.168.1.100:7430 -o json stats`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&global.APIAddr, "api", DefaultAPIAddr,
		"Daemon API address")
	rootCmd.PersistentFlags().StringVar(&global.LogLevel, "log-level", "ERROR",
		"Log level: DEBUG, INFO, WARN, ERROR")
	rootCmd.PersistentFlags().IntVar(&global.Timeout, "timeout", 8,
		"Connection timeout in seconds")
	rootCmd.PersistentFlags().StringVarP(&global.Output, "output", "o", "table",
		"Output format: table, json")

	rootCmd.AddCommand(payloadCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
}

// validateGlobalFlags checks global flag values before any command runs
func validateGlobalFlags(cmd *cobra.Command, args []string) error {
	if err := logging.ValidateLogLevel(global.LogLevel); err != nil {
		return err
	}
	logging.SetLevel(global.LogLevel)

	if global.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", global.Timeout)
	}
	if global.Output != "table" && global.Output != "json" {
		return fmt.Errorf("invalid output format: %s (must be table or json)", global.Output)
	}
	return nil
}

// apiClient builds a client from the global flags
func apiClient() *client.AnchorAPIClient {
	return client.NewAnchorAPIClient(global.APIAddr, time.Duration(global.Timeout)*time.Second)
}

// main is the main entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
