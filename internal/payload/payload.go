// Package payload defines the signed payload record that the submission
// pipeline moves from off-chain signing to on-chain confirmation, along with
// its status state machine.
//
// A SignedPayload is the unit of work for the entire relay: an off-chain
// signed blob (oracle price update, agent-output attestation) that must be
// committed on-chain exactly-once-effectively. The record carries both the
// immutable signed content and the mutable submission lifecycle state
// (status, transaction hash, attempt counter, timestamps).
//
// LIFECYCLE:
//
//	pending → submitted → confirmed
//	pending → failed            (expired, unsigned, retries exhausted, permanent error)
//	submitted → failed          (reverted on-chain, monitoring failure)
//	failed → pending            (explicit retry only, never automatic)
//
// Status transitions are validated through IsValidTransition so that no
// component can skip the submitted state en route to confirmed.
package payload

import (
	"encoding/json"
	"time"
)

// Status represents the submission lifecycle state of a signed payload.
type Status string

const (
	// StatusPending indicates the payload is signed and awaiting submission.
	StatusPending Status = "pending"
	// StatusSubmitted indicates a chain transaction was accepted and is
	// awaiting confirmation.
	StatusSubmitted Status = "submitted"
	// StatusConfirmed is the terminal success state: the transaction was
	// mined with the configured number of confirmations.
	StatusConfirmed Status = "confirmed"
	// StatusFailed is the terminal failure state. Records with a retryable
	// last error and remaining attempts can be explicitly reset to pending.
	StatusFailed Status = "failed"
)

// Type classifies the signed content carried by a payload.
type Type string

const (
	// TypeOracleUpdate is an off-chain signed oracle price update.
	TypeOracleUpdate Type = "oracle_update"
	// TypeAgentAttestation is a signed attestation over agent output.
	TypeAgentAttestation Type = "agent_attestation"
)

// StateTransition describes one legal edge of the payload state machine.
type StateTransition struct {
	From Status
	To   Status
}

// ValidTransitions is the complete set of legal status transitions.
// failed → pending exists only for the explicit retry path; nothing in the
// pipeline performs it automatically.
var ValidTransitions = []StateTransition{
	{From: StatusPending, To: StatusSubmitted},
	{From: StatusSubmitted, To: StatusConfirmed},
	{From: StatusSubmitted, To: StatusFailed},
	{From: StatusPending, To: StatusFailed},
	{From: StatusFailed, To: StatusPending},
}

// IsValidTransition reports whether moving a payload from one status to
// another is a legal state machine edge.
func IsValidTransition(from, to Status) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// SignedPayload is the persisted record for one unit of relay work.
//
// The content fields (SignerAddress through Signature) are set once upstream
// when the payload is signed and are immutable afterwards. The lifecycle
// fields are owned by the pipeline and mutated only through the store.
// TransactionHash doubles as the idempotency key: once set, no component may
// issue a second chain transaction for this record.
type SignedPayload struct {
	ID          string `json:"id"`
	PayloadType Type   `json:"payload_type"`

	// Signed content, immutable after creation
	SignerAddress      string          `json:"signer_address"`
	Nonce              uint64          `json:"nonce"`
	Payload            json.RawMessage `json:"payload"`
	PayloadHash        string          `json:"payload_hash"`
	StructuredDataHash string          `json:"structured_data_hash"`
	Signature          string          `json:"signature"`
	ExpiresAt          time.Time       `json:"expires_at"`

	// Submission lifecycle, owned by the pipeline
	Status             Status  `json:"status"`
	TransactionHash    string  `json:"transaction_hash,omitempty"`
	BlockNumber        uint64  `json:"block_number,omitempty"`
	SubmissionAttempts int     `json:"submission_attempts"`
	ErrorMessage       *string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// IsTerminal reports whether the payload reached a terminal status.
// failed counts as terminal even though an explicit retry can revive it.
func (p *SignedPayload) IsTerminal() bool {
	return p.Status == StatusConfirmed || p.Status == StatusFailed
}

// IsExpired reports whether the payload's submission deadline has passed
// at the given instant. Expired payloads must never reach the chain.
func (p *SignedPayload) IsExpired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// HasSignature reports whether the payload carries a non-empty signature.
// Unsigned payloads cannot be submitted and are rejected during selection
// and validation alike.
func (p *SignedPayload) HasSignature() bool {
	return p.Signature != ""
}

// LastError returns the last recorded failure description, or an empty
// string when the payload has none.
func (p *SignedPayload) LastError() string {
	if p.ErrorMessage == nil {
		return ""
	}
	return *p.ErrorMessage
}

// SetError records a failure description on the payload.
func (p *SignedPayload) SetError(msg string) {
	p.ErrorMessage = &msg
}

// ClearError removes any recorded failure description. Called when a
// submission attempt succeeds.
func (p *SignedPayload) ClearError() {
	p.ErrorMessage = nil
}
