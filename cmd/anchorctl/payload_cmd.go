package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Payload command flags
var payloadFlags struct {
	StatusFilter string // Filter list by status
	File         string // JSON file for payload create
}

// Parent payload command
var payloadCmd = &cobra.Command{
	Use:   "payload",
	Short: "Manage signed payloads",
	Long:  `Register, inspect, list, and submit signed payloads.`,
}

// payload create
var payloadCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a signed payload from a JSON file",
	Example: `  # Register a payload exported by the signing service
  anchorctl payload create --file=payload.json

  # Read the payload body from stdin
  cat payload.json | anchorctl payload create --file=-`,
	RunE: handlePayloadCreate,
}

// payload ls
var payloadLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List payloads",
	Example: `  # List all payloads
  anchorctl payload ls

  # List only failures
  anchorctl payload ls --status=failed`,
	RunE: handlePayloadList,
}

// payload info
var payloadInfoCmd = &cobra.Command{
	Use:   "info <payload-id>",
	Short: "Show detailed payload information",
	Args:  cobra.ExactArgs(1),
	RunE:  handlePayloadInfo,
}

// payload submit
var payloadSubmitCmd = &cobra.Command{
	Use:   "submit <payload-id>",
	Short: "Submit one payload to the chain now",
	Args:  cobra.ExactArgs(1),
	RunE:  handlePayloadSubmit,
}

// payload verify
var payloadVerifyCmd = &cobra.Command{
	Use:   "verify <payload-id>",
	Short: "Verify a payload's signature against the registry without submitting",
	Args:  cobra.ExactArgs(1),
	RunE:  handlePayloadVerify,
}

func init() {
	payloadCreateCmd.Flags().StringVar(&payloadFlags.File, "file", "",
		"JSON file containing the signed payload (- for stdin)")
	payloadCreateCmd.MarkFlagRequired("file")

	payloadLsCmd.Flags().StringVar(&payloadFlags.StatusFilter, "status", "",
		"Filter by status: pending, submitted, confirmed, failed")

	payloadCmd.AddCommand(payloadCreateCmd)
	payloadCmd.AddCommand(payloadLsCmd)
	payloadCmd.AddCommand(payloadInfoCmd)
	payloadCmd.AddCommand(payloadSubmitCmd)
	payloadCmd.AddCommand(payloadVerifyCmd)
}

// handlePayloadCreate registers a new payload from a file or stdin
func handlePayloadCreate(cmd *cobra.Command, args []string) error {
	var body []byte
	var err error

	if payloadFlags.File == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(payloadFlags.File)
	}
	if err != nil {
		return fmt.Errorf("failed to read payload body: %w", err)
	}

	p, err := apiClient().CreatePayload(body)
	if err != nil {
		return err
	}

	if global.Output == "json" {
		return printJSON(p)
	}
	fmt.Printf("Payload %s registered (%s, %s)\n", p.ID, p.PayloadType, p.Status)
	return nil
}

// handlePayloadList lists payloads with optional status filter
func handlePayloadList(cmd *cobra.Command, args []string) error {
	list, err := apiClient().ListPayloads(payloadFlags.StatusFilter)
	if err != nil {
		return err
	}

	if global.Output == "json" {
		return printJSON(list)
	}
	displayPayloadTable(list.Payloads)
	return nil
}

// handlePayloadInfo shows one payload record
func handlePayloadInfo(cmd *cobra.Command, args []string) error {
	p, err := apiClient().GetPayload(args[0])
	if err != nil {
		return err
	}

	if global.Output == "json" {
		return printJSON(p)
	}
	displayPayloadDetail(p)
	return nil
}

// handlePayloadSubmit submits one payload and reports the outcome
func handlePayloadSubmit(cmd *cobra.Command, args []string) error {
	result, err := apiClient().SubmitPayload(args[0])
	if err != nil {
		return err
	}

	if global.Output == "json" {
		return printJSON(result)
	}
	displaySubmitResult(result)
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

// handlePayloadVerify runs the view-only registry verification
func handlePayloadVerify(cmd *cobra.Command, args []string) error {
	result, err := apiClient().VerifyPayload(args[0])
	if err != nil {
		return err
	}

	if global.Output == "json" {
		return printJSON(result)
	}
	if result.Verified {
		fmt.Printf("Payload %s verified by registry\n", result.PayloadID)
	} else {
		fmt.Printf("Payload %s NOT verified by registry\n", result.PayloadID)
		os.Exit(1)
	}
	return nil
}
