package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show relay statistics",
	Long:  `Show payload counts by status, attempt statistics, in-flight submissions, and the relay account balance.`,
	RunE:  handleStats,
}

// health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon health",
	RunE:  handleHealth,
}

// handleStats fetches and displays relay statistics
func handleStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient().Stats()
	if err != nil {
		return err
	}

	if global.Output == "json" {
		return printJSON(stats)
	}
	displayStats(stats)
	return nil
}

// handleHealth checks daemon reachability
func handleHealth(cmd *cobra.Command, args []string) error {
	health, err := apiClient().Health()
	if err != nil {
		return err
	}

	if global.Output == "json" {
		return printJSON(health)
	}
	fmt.Printf("Daemon %s: %s (uptime %s)\n", health.Version, health.Status, health.Uptime)
	return nil
}
