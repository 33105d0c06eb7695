// Package chain defines the minimal chain-client contract the submission
// pipeline depends on, along with a JSON-RPC implementation for EVM nodes.
//
// The pipeline never talks to a node directly: it issues gas estimates,
// transaction sends, confirmation waits, and fee/balance queries through the
// Client interface so tests can substitute a fake and the executor stays
// independent of any particular node transport.
//
// The on-chain contract surface is a single registry with:
//
//	submitPayload(string payloadType, bytes32 payloadHash, uint256 nonce,
//	              uint256 expiresAt, string data, bytes signature) → bool
//	verifyPayload(..., address expectedSigner) → bool   (view, off-path)
//
// submitPayload emits PayloadSubmitted(submitter, payloadHash, nonce,
// payloadType); the pipeline does not consume the event, it exists for
// external auditing.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrReceiptNotFound is returned by GetReceipt when the transaction is not
// yet mined.
var ErrReceiptNotFound = errors.New("transaction receipt not found")

// SubmitCall carries the arguments of one submitPayload contract call.
// Field values come straight off a SignedPayload record; the pipeline never
// re-derives or re-hashes signed content.
type SubmitCall struct {
	PayloadType string
	PayloadHash common.Hash
	Nonce       *big.Int
	ExpiresAt   *big.Int
	Data        string
	Signature   []byte
}

// Receipt is the mined-transaction result the confirmation monitor acts on.
// Status follows EVM semantics: 1 means success, 0 means the transaction
// reverted on-chain.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Status      uint64
	GasUsed     uint64
}

// Reverted reports whether the transaction executed but reverted.
func (r *Receipt) Reverted() bool {
	return r.Status == 0
}

// FeeData aggregates current network fee quotes. MaxPriorityFeePerGas may be
// nil on chains that do not expose eth_maxPriorityFeePerGas.
type FeeData struct {
	GasPrice             *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Client is the chain-node capability set the pipeline consumes. All calls
// are blocking network operations and honor context cancellation.
type Client interface {
	// EstimateGas returns the node's gas estimate for a submitPayload call.
	EstimateGas(ctx context.Context, call SubmitCall) (uint64, error)

	// SendTransaction submits a submitPayload transaction with the given
	// gas limit and returns the transaction hash accepted by the node.
	SendTransaction(ctx context.Context, call SubmitCall, gasLimit uint64) (common.Hash, error)

	// WaitForConfirmations blocks until the transaction is mined and the
	// chain head is at least confirmations blocks past its inclusion block,
	// then returns the receipt. Reverted transactions still return their
	// receipt; callers check Receipt.Reverted.
	WaitForConfirmations(ctx context.Context, txHash common.Hash, confirmations uint64) (*Receipt, error)

	// GetReceipt returns the receipt for a mined transaction or
	// ErrReceiptNotFound while it is still pending.
	GetReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)

	// GetBalance returns the wei balance of an account.
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)

	// GetFeeData returns current network fee quotes.
	GetFeeData(ctx context.Context) (*FeeData, error)
}

// Verifier is the optional view-call capability for off-path payload
// verification against the registry's verifyPayload function. It sits outside
// Client because the submission loop never verifies; only the inspection
// endpoints do, and fakes without it simply report the capability as absent.
type Verifier interface {
	// VerifyPayload checks a signed payload against the registry contract
	// without submitting it.
	VerifyPayload(ctx context.Context, call SubmitCall, expectedSigner common.Address) (bool, error)
}
