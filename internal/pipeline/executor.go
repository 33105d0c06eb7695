// SubmissionExecutor: idempotent single-payload submission with bounded
// retry, gas estimation with a safety margin, and detached confirmation
// monitoring.
//
// Submit is the idempotency boundary of the whole relay. A payload that
// already carries a transaction hash never causes a second chain send: a
// confirmed payload short-circuits with its cached hash and a submitted one
// resumes monitoring instead. Failures inside an attempt loop are resolved
// locally (retried after backoff or terminalized) and surface to the caller
// only once the pipeline has given up.
//
// Confirmation monitoring runs as a detached goroutine per submitted
// transaction, independent of the Submit caller. The monitor reloads the
// record before writing, but a concurrent manual retry can still race it;
// last write wins by design of the store contract.
package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/concave-dev/anchor/internal/chain"
	"github.com/concave-dev/anchor/internal/logging"
	"github.com/concave-dev/anchor/internal/payload"
	"github.com/concave-dev/anchor/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ExecutorConfig tunes the submission retry loop and confirmation monitor.
type ExecutorConfig struct {
	MaxRetries          int
	GasSafetyMultiplier float64
	FallbackGasLimit    uint64
	ConfirmationBlocks  uint64
}

// SubmitResult is the structured outcome of one submission request.
// AttemptNumber is the attempt within this Submit call on which the pipeline
// succeeded or gave up; for idempotent short-circuits it reports the
// record's stored attempt count.
type SubmitResult struct {
	PayloadID       string      `json:"payload_id"`
	Success         bool        `json:"success"`
	TransactionHash string      `json:"transaction_hash,omitempty"`
	AttemptNumber   int         `json:"attempt_number"`
	FailureType     FailureType `json:"failure_type,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// SubmissionExecutor submits single payloads to the chain idempotently.
type SubmissionExecutor struct {
	store   store.Store
	chain   chain.Client
	tracker *InFlightTracker
	backoff *BackoffPolicy
	cfg     ExecutorConfig

	monitorsMu sync.Mutex
	monitors   map[string]struct{}
	monitorWG  sync.WaitGroup

	// sleep is a test seam; production uses time.Sleep
	sleep func(time.Duration)
}

// NewSubmissionExecutor creates an executor over the given collaborators.
func NewSubmissionExecutor(s store.Store, c chain.Client, t *InFlightTracker, b *BackoffPolicy, cfg ExecutorConfig) *SubmissionExecutor {
	return &SubmissionExecutor{
		store:    s,
		chain:    c,
		tracker:  t,
		backoff:  b,
		cfg:      cfg,
		monitors: make(map[string]struct{}),
		sleep:    time.Sleep,
	}
}

// maxAttempts is the total chain-call budget per Submit call.
func (e *SubmissionExecutor) maxAttempts() int {
	return e.cfg.MaxRetries + 1
}

// Submit is the public idempotent entry point for single-payload submission.
// It takes the in-flight mark for the payload and releases it on every exit
// path; a payload already in flight is rejected with a validation error so
// two concurrent Submit calls yield at most one live chain send.
func (e *SubmissionExecutor) Submit(ctx context.Context, payloadID string) (*SubmitResult, error) {
	if !e.tracker.TryMark(payloadID) {
		return nil, NewValidationError(payloadID, "already in flight")
	}
	defer e.tracker.Clear(payloadID)

	return e.Execute(ctx, payloadID)
}

// Execute runs the submission procedure for a payload whose in-flight mark
// the caller already holds. The batch orchestrator dispatches through here;
// everyone else goes through Submit.
func (e *SubmissionExecutor) Execute(ctx context.Context, payloadID string) (*SubmitResult, error) {
	p, err := e.store.FindByID(ctx, payloadID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, NewValidationError(payloadID, "not found")
		}
		return nil, fmt.Errorf("failed to load payload %s: %w", payloadID, err)
	}

	// Idempotent short-circuit: an already confirmed payload returns its
	// cached hash without any chain interaction.
	if p.Status == payload.StatusConfirmed && p.TransactionHash != "" {
		logging.Debug("Executor: payload %s already confirmed in tx %s", p.ID, p.TransactionHash)
		return &SubmitResult{
			PayloadID:       p.ID,
			Success:         true,
			TransactionHash: p.TransactionHash,
			AttemptNumber:   p.SubmissionAttempts,
		}, nil
	}

	// A submitted-but-unconfirmed payload resumes monitoring and returns
	// the existing hash; no second transaction is issued.
	if p.Status == payload.StatusSubmitted && p.TransactionHash != "" {
		logging.Debug("Executor: payload %s already submitted in tx %s, resuming monitor", p.ID, p.TransactionHash)
		e.startMonitor(p.ID, common.HexToHash(p.TransactionHash))
		return &SubmitResult{
			PayloadID:       p.ID,
			Success:         true,
			TransactionHash: p.TransactionHash,
			AttemptNumber:   p.SubmissionAttempts,
		}, nil
	}

	if p.Status != payload.StatusPending {
		return nil, NewValidationError(p.ID, fmt.Sprintf("not submittable in status %s", p.Status))
	}
	if !p.HasSignature() {
		return nil, NewValidationError(p.ID, "missing signature")
	}

	if p.IsExpired(time.Now()) {
		p.Status = payload.StatusFailed
		p.SetError("payload expired before submission")
		if saveErr := e.store.Save(ctx, p); saveErr != nil {
			logging.Error("Executor: failed to expire payload %s: %v", p.ID, saveErr)
		}
		return nil, NewValidationError(p.ID, "expired")
	}

	return e.submitWithRetry(ctx, p)
}

// submitWithRetry runs the bounded attempt loop for a validated pending
// payload: estimate gas, send, classify failures, back off, and terminalize
// when the budget is spent or the failure is permanent.
func (e *SubmissionExecutor) submitWithRetry(ctx context.Context, p *payload.SignedPayload) (*SubmitResult, error) {
	call := buildSubmitCall(p)

	if fee, err := e.chain.GetFeeData(ctx); err == nil && fee.GasPrice != nil {
		logging.Debug("Executor: current gas price %s wei", fee.GasPrice.String())
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts(); attempt++ {
		gasLimit := e.estimateGasLimit(ctx, call)

		txHash, err := e.chain.SendTransaction(ctx, call, gasLimit)
		if err == nil {
			now := time.Now()
			p.Status = payload.StatusSubmitted
			p.TransactionHash = txHash.Hex()
			p.SubmittedAt = &now
			p.SubmissionAttempts += attempt
			p.ClearError()
			if saveErr := e.store.Save(ctx, p); saveErr != nil {
				return nil, fmt.Errorf("failed to persist submission of %s: %w", p.ID, saveErr)
			}

			logging.Success("Executor: payload %s submitted in tx %s (attempt %d)", p.ID, txHash.Hex(), attempt)
			e.startMonitor(p.ID, txHash)

			return &SubmitResult{
				PayloadID:       p.ID,
				Success:         true,
				TransactionHash: p.TransactionHash,
				AttemptNumber:   attempt,
			}, nil
		}

		lastErr = err
		failureType := Classify(err.Error())
		logging.Warn("Executor: payload %s attempt %d failed (%s): %v", p.ID, attempt, failureType, err)

		if failureType == FailurePermanent || attempt == e.maxAttempts() {
			p.Status = payload.StatusFailed
			p.SubmissionAttempts += attempt
			p.SetError(err.Error())
			if saveErr := e.store.Save(ctx, p); saveErr != nil {
				logging.Error("Executor: failed to persist failure of %s: %v", p.ID, saveErr)
			}

			subErr := &SubmissionError{PayloadID: p.ID, Type: failureType, Attempt: attempt, Err: err}
			return &SubmitResult{
				PayloadID:     p.ID,
				Success:       false,
				AttemptNumber: attempt,
				FailureType:   failureType,
				Error:         err.Error(),
			}, subErr
		}

		e.sleep(e.backoff.Delay(attempt))
	}

	// Unreachable: the loop always returns on success or final attempt
	return nil, fmt.Errorf("payload %s: retry loop exhausted: %w", p.ID, lastErr)
}

// estimateGasLimit pads the node's gas estimate with the configured safety
// multiplier. Estimation failures fall back to a fixed conservative limit
// rather than aborting the attempt: a wasted estimate must not cost a
// submission.
func (e *SubmissionExecutor) estimateGasLimit(ctx context.Context, call chain.SubmitCall) uint64 {
	estimate, err := e.chain.EstimateGas(ctx, call)
	if err != nil {
		logging.Warn("Executor: gas estimation failed, using fallback limit %d: %v", e.cfg.FallbackGasLimit, err)
		return e.cfg.FallbackGasLimit
	}
	return uint64(float64(estimate) * e.cfg.GasSafetyMultiplier)
}

// startMonitor spawns the detached confirmation monitor for a submitted
// transaction unless one is already running for this payload. The monitor
// outlives the Submit caller and owns the submitted → confirmed/failed
// transition.
func (e *SubmissionExecutor) startMonitor(payloadID string, txHash common.Hash) {
	e.monitorsMu.Lock()
	if _, running := e.monitors[payloadID]; running {
		e.monitorsMu.Unlock()
		return
	}
	e.monitors[payloadID] = struct{}{}
	e.monitorsMu.Unlock()

	e.monitorWG.Add(1)
	go func() {
		defer e.monitorWG.Done()
		defer func() {
			e.monitorsMu.Lock()
			delete(e.monitors, payloadID)
			e.monitorsMu.Unlock()
		}()
		e.monitor(payloadID, txHash)
	}()
}

// monitor blocks on the chain client's confirmation wait and records the
// outcome. It deliberately uses a background context: a stuck confirmation
// wait blocks only this goroutine, never the submission call that spawned
// it. The record is reloaded before writing; concurrent mutations are
// resolved last-write-wins.
func (e *SubmissionExecutor) monitor(payloadID string, txHash common.Hash) {
	ctx := context.Background()

	receipt, waitErr := e.chain.WaitForConfirmations(ctx, txHash, e.cfg.ConfirmationBlocks)

	p, err := e.store.FindByID(ctx, payloadID)
	if err != nil {
		logging.Error("Monitor: failed to reload payload %s: %v", payloadID, err)
		return
	}

	switch {
	case waitErr != nil:
		p.Status = payload.StatusFailed
		p.SetError(fmt.Sprintf("confirmation monitoring failed: %v", waitErr))
		logging.Error("Monitor: payload %s monitoring failed: %v", payloadID, waitErr)

	case receipt.Reverted():
		p.Status = payload.StatusFailed
		p.SetError("transaction reverted on-chain")
		p.BlockNumber = receipt.BlockNumber
		logging.Error("Monitor: payload %s reverted on-chain in block %d", payloadID, receipt.BlockNumber)

	default:
		now := time.Now()
		p.Status = payload.StatusConfirmed
		p.BlockNumber = receipt.BlockNumber
		p.ConfirmedAt = &now
		p.ClearError()
		logging.Success("Monitor: payload %s confirmed in block %d", payloadID, receipt.BlockNumber)
	}

	if err := e.store.Save(ctx, p); err != nil {
		logging.Error("Monitor: failed to persist outcome for payload %s: %v", payloadID, err)
	}
}

// Verify runs the registry's view-only verification for a payload without
// submitting it: the contract checks the stored signature against the
// payload's signer address. Requires a chain client with the Verifier
// capability; the submission path never calls this.
func (e *SubmissionExecutor) Verify(ctx context.Context, payloadID string) (bool, error) {
	p, err := e.store.FindByID(ctx, payloadID)
	if err != nil {
		if err == store.ErrNotFound {
			return false, NewValidationError(payloadID, "not found")
		}
		return false, fmt.Errorf("failed to load payload %s: %w", payloadID, err)
	}
	if !p.HasSignature() {
		return false, NewValidationError(payloadID, "missing signature")
	}

	verifier, ok := e.chain.(chain.Verifier)
	if !ok {
		return false, fmt.Errorf("chain client does not support payload verification")
	}

	return verifier.VerifyPayload(ctx, buildSubmitCall(p), common.HexToAddress(p.SignerAddress))
}

// MonitorRunning reports whether a confirmation monitor is active for the
// payload. Exposed for the stats endpoint and tests.
func (e *SubmissionExecutor) MonitorRunning(payloadID string) bool {
	e.monitorsMu.Lock()
	defer e.monitorsMu.Unlock()
	_, running := e.monitors[payloadID]
	return running
}

// WaitMonitors blocks until all detached confirmation monitors finish.
func (e *SubmissionExecutor) WaitMonitors() {
	e.monitorWG.Wait()
}

// WaitMonitorsContext waits for all detached confirmation monitors like
// WaitMonitors, but gives up when ctx expires. Used during daemon shutdown:
// a monitor stuck on a never-mined transaction must not hold the process
// past its shutdown budget.
func (e *SubmissionExecutor) WaitMonitorsContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.monitorWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("confirmation monitors still running: %w", ctx.Err())
	}
}

// buildSubmitCall maps a payload record onto the submitPayload contract
// call. Signatures are stored 0x-hex encoded; a malformed encoding is passed
// through as raw bytes and left for the contract to reject.
func buildSubmitCall(p *payload.SignedPayload) chain.SubmitCall {
	var sig []byte
	if strings.HasPrefix(p.Signature, "0x") {
		if decoded, err := hexutil.Decode(p.Signature); err == nil {
			sig = decoded
		}
	}
	if sig == nil {
		sig = []byte(p.Signature)
	}

	return chain.SubmitCall{
		PayloadType: string(p.PayloadType),
		PayloadHash: common.HexToHash(p.PayloadHash),
		Nonce:       new(big.Int).SetUint64(p.Nonce),
		ExpiresAt:   big.NewInt(p.ExpiresAt.Unix()),
		Data:        string(p.Payload),
		Signature:   sig,
	}
}
