package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/concave-dev/anchor/cmd/anchorctl/client"
)

// printJSON renders any response as indented JSON on stdout
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter creates a consistently configured table writer
func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

// shortHash truncates long hex strings for table display
func shortHash(s string) string {
	if len(s) <= 14 {
		return s
	}
	return s[:10] + "..."
}

// displayPayloadTable renders a payload list as a table
func displayPayloadTable(payloads []client.Payload) {
	if len(payloads) == 0 {
		fmt.Println("No payloads found")
		return
	}

	w := newTabWriter()
	defer w.Flush()

	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tATTEMPTS\tTX\tCREATED")
	for _, p := range payloads {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.PayloadType, p.Status, p.SubmissionAttempts,
			shortHash(p.TransactionHash),
			p.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

// displayPayloadDetail renders one payload record
func displayPayloadDetail(p *client.Payload) {
	w := newTabWriter()
	defer w.Flush()

	fmt.Fprintf(w, "ID:\t%s\n", p.ID)
	fmt.Fprintf(w, "Type:\t%s\n", p.PayloadType)
	fmt.Fprintf(w, "Signer:\t%s\n", p.SignerAddress)
	fmt.Fprintf(w, "Nonce:\t%d\n", p.Nonce)
	fmt.Fprintf(w, "Status:\t%s\n", p.Status)
	fmt.Fprintf(w, "Attempts:\t%d\n", p.SubmissionAttempts)
	fmt.Fprintf(w, "Expires:\t%s\n", p.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	if p.TransactionHash != "" {
		fmt.Fprintf(w, "Transaction:\t%s\n", p.TransactionHash)
	}
	if p.BlockNumber != 0 {
		fmt.Fprintf(w, "Block:\t%d\n", p.BlockNumber)
	}
	if p.ErrorMessage != nil {
		fmt.Fprintf(w, "Last error:\t%s\n", *p.ErrorMessage)
	}
	fmt.Fprintf(w, "Created:\t%s\n", p.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Updated:\t%s\n", p.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
}

// displaySubmitResult renders one submission outcome
func displaySubmitResult(r *client.SubmitResult) {
	if r.Success {
		fmt.Printf("Payload %s submitted: tx %s (attempt %d)\n",
			r.PayloadID, r.TransactionHash, r.AttemptNumber)
		return
	}
	fmt.Printf("Payload %s failed (%s, attempt %d): %s\n",
		r.PayloadID, r.FailureType, r.AttemptNumber, r.Error)
}

// displayBatchResult renders a batch summary with per-payload rows
func displayBatchResult(r *client.BatchResult) {
	fmt.Printf("Batch %s: %d payloads, %d succeeded, %d failed (%dms)\n",
		r.BatchID, r.TotalPayloads, r.Successful, r.Failed, r.ElapsedMs)
	if len(r.Results) == 0 {
		return
	}

	w := newTabWriter()
	defer w.Flush()

	fmt.Fprintln(w, "PAYLOAD\tRESULT\tATTEMPT\tTX\tERROR")
	for _, res := range r.Results {
		outcome := "ok"
		if !res.Success {
			outcome = res.FailureType
			if outcome == "" {
				outcome = "failed"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			res.PayloadID, outcome, res.AttemptNumber,
			shortHash(res.TransactionHash), res.Error)
	}
}

// displayStats renders relay statistics
func displayStats(s *client.StatsResponse) {
	w := newTabWriter()
	defer w.Flush()

	fmt.Fprintf(w, "Pending:\t%d\n", s.StatusCounts["pending"])
	fmt.Fprintf(w, "Submitted:\t%d\n", s.StatusCounts["submitted"])
	fmt.Fprintf(w, "Confirmed:\t%d\n", s.StatusCounts["confirmed"])
	fmt.Fprintf(w, "Failed:\t%d\n", s.StatusCounts["failed"])
	fmt.Fprintf(w, "In flight:\t%d\n", s.InFlight)
	fmt.Fprintf(w, "Attempts:\t%d total, %.2f avg over %d payloads\n",
		s.Attempts.Total, s.Attempts.Average, s.Attempts.Count)
	if s.BalanceWei != "" {
		fmt.Fprintf(w, "Balance:\t%s wei\n", s.BalanceWei)
	}
	if s.BalanceError != "" {
		fmt.Fprintf(w, "Balance:\tunavailable (%s)\n", s.BalanceError)
	}
}
