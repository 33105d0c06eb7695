package main

import (
	"strings"

	"github.com/spf13/cobra"
)

// Batch command flags
var batchFlags struct {
	BatchID string // Caller-supplied batch identifier
}

// Parent batch command
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run and retry submission batches",
	Long:  `Trigger batch submissions over explicit payload ids and retry sweeps over failed payloads.`,
}

// batch run
var batchRunCmd = &cobra.Command{
	Use:   "run <payload-ids>",
	Short: "Submit a comma-separated list of payload ids as one batch",
	Args:  cobra.ExactArgs(1),
	Example: `  # Submit three payloads as one batch
  anchorctl batch run id1,id2,id3

  # Tag the batch for log correlation
  anchorctl batch run id1,id2 --batch-id=nightly-42`,
	RunE: handleBatchRun,
}

// batch retry
var batchRetryCmd = &cobra.Command{
	Use:   "retry [payload-ids]",
	Short: "Retry failed payloads",
	Long: `Retry failed payloads. With an explicit comma-separated id list only
those payloads are retried; without arguments the daemon selects recent
retryable failures itself.`,
	Args: cobra.MaximumNArgs(1),
	RunE: handleBatchRetry,
}

func init() {
	batchRunCmd.Flags().StringVar(&batchFlags.BatchID, "batch-id", "",
		"Batch identifier (auto-generated if not provided)")

	batchCmd.AddCommand(batchRunCmd)
	batchCmd.AddCommand(batchRetryCmd)
}

// splitIDs parses a comma-separated id list, dropping empty segments
func splitIDs(arg string) []string {
	var ids []string
	for _, id := range strings.Split(arg, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// handleBatchRun runs a batch over explicit payload ids
func handleBatchRun(cmd *cobra.Command, args []string) error {
	result, err := apiClient().ProcessBatch(splitIDs(args[0]), batchFlags.BatchID)
	if err != nil {
		return err
	}

	if global.Output == "json" {
		return printJSON(result)
	}
	displayBatchResult(result)
	return nil
}

// handleBatchRetry retries explicit ids or the daemon's own selection
func handleBatchRetry(cmd *cobra.Command, args []string) error {
	var ids []string
	if len(args) == 1 {
		ids = splitIDs(args[0])
	}

	result, err := apiClient().RetryBatch(ids)
	if err != nil {
		return err
	}

	if global.Output == "json" {
		return printJSON(result)
	}
	displayBatchResult(result)
	return nil
}
