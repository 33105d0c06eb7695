package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/concave-dev/anchor/internal/payload"
	"github.com/concave-dev/anchor/internal/store/memory"
)

// testPayload builds a minimal pending signed payload
func testPayload(id string) *payload.SignedPayload {
	return &payload.SignedPayload{
		ID:            id,
		PayloadType:   payload.TypeOracleUpdate,
		SignerAddress: "0x1111111111111111111111111111111111111111",
		Nonce:         7,
		Payload:       []byte(`{"price":"42.5"}`),
		PayloadHash:   "0xabc0000000000000000000000000000000000000000000000000000000000001",
		Signature:     "0xdeadbeef",
		ExpiresAt:     time.Now().Add(1 * time.Hour),
		Status:        payload.StatusPending,
	}
}

// testExecutor wires an executor over a memory store and fake chain with an
// instantaneous sleep that records requested delays
func testExecutor(maxRetries int) (*SubmissionExecutor, *memory.Store, *fakeChain, *[]time.Duration) {
	st := memory.New()
	ch := newFakeChain()
	tracker := NewInFlightTracker()
	backoff := NewBackoffPolicy(1*time.Second, 30*time.Second, 2.0)

	ex := NewSubmissionExecutor(st, ch, tracker, backoff, ExecutorConfig{
		MaxRetries:          maxRetries,
		GasSafetyMultiplier: 1.2,
		FallbackGasLimit:    500_000,
		ConfirmationBlocks:  1,
	})

	var delays []time.Duration
	ex.sleep = func(d time.Duration) { delays = append(delays, d) }
	return ex, st, ch, &delays
}

// TestSubmit_Success tests the happy path: one send, submitted then
// confirmed by the monitor
func TestSubmit_Success(t *testing.T) {
	ex, st, ch, _ := testExecutor(3)
	ctx := context.Background()

	p := testPayload("p1")
	if err := st.Save(ctx, p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	result, err := ex.Submit(ctx, "p1")
	if err != nil {
		t.Fatalf("Submit() error = %v, want nil", err)
	}
	if !result.Success {
		t.Error("Submit() result.Success = false, want true")
	}
	if result.TransactionHash == "" {
		t.Error("Submit() result should carry a transaction hash")
	}
	if result.AttemptNumber != 1 {
		t.Errorf("Submit() AttemptNumber = %d, want 1", result.AttemptNumber)
	}
	if ch.sendCount() != 1 {
		t.Errorf("SendTransaction calls = %d, want 1", ch.sendCount())
	}

	ex.WaitMonitors()

	stored, err := st.FindByID(ctx, "p1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if stored.Status != payload.StatusConfirmed {
		t.Errorf("stored status = %s, want confirmed", stored.Status)
	}
	if stored.BlockNumber != 42 {
		t.Errorf("stored block = %d, want 42", stored.BlockNumber)
	}
	if stored.SubmissionAttempts != 1 {
		t.Errorf("stored attempts = %d, want 1", stored.SubmissionAttempts)
	}
	if stored.ConfirmedAt == nil {
		t.Error("ConfirmedAt should be set after confirmation")
	}
}

// TestSubmit_RetryableThenSuccess tests that transient failures are retried
// with backoff until a send succeeds
func TestSubmit_RetryableThenSuccess(t *testing.T) {
	ex, st, ch, delays := testExecutor(3)
	ctx := context.Background()

	ch.scriptSendErrors(errors.New("network error: connection refused"), errors.New("timeout"), nil)
	st.Save(ctx, testPayload("p1"))

	result, err := ex.Submit(ctx, "p1")
	if err != nil {
		t.Fatalf("Submit() error = %v, want nil", err)
	}
	if result.AttemptNumber != 3 {
		t.Errorf("AttemptNumber = %d, want 3", result.AttemptNumber)
	}
	if ch.sendCount() != 3 {
		t.Errorf("SendTransaction calls = %d, want 3", ch.sendCount())
	}

	// One backoff pause after each failed attempt: 1s then 2s
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("recorded %d delays, want %d", len(*delays), len(want))
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], d)
		}
	}

	ex.WaitMonitors()
	stored, _ := st.FindByID(ctx, "p1")
	if stored.SubmissionAttempts != 3 {
		t.Errorf("stored attempts = %d, want 3", stored.SubmissionAttempts)
	}
	if stored.ErrorMessage != nil {
		t.Errorf("error message should be cleared on success, got %q", *stored.ErrorMessage)
	}
}

// TestSubmit_PermanentFailureStopsImmediately tests that a permanent failure
// terminalizes without burning the remaining attempt budget
func TestSubmit_PermanentFailureStopsImmediately(t *testing.T) {
	ex, st, ch, delays := testExecutor(3)
	ctx := context.Background()

	ch.scriptSendErrors(errors.New("execution reverted: unauthorized signer"))
	st.Save(ctx, testPayload("p1"))

	result, err := ex.Submit(ctx, "p1")
	if err == nil {
		t.Fatal("Submit() error = nil, want submission error")
	}
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("Submit() error type = %T, want *SubmissionError", err)
	}
	if subErr.Type != FailurePermanent {
		t.Errorf("failure type = %s, want permanent", subErr.Type)
	}
	if result == nil || result.Success {
		t.Error("Submit() should return a failure result")
	}
	if ch.sendCount() != 1 {
		t.Errorf("SendTransaction calls = %d, want 1 (no retries on permanent)", ch.sendCount())
	}
	if len(*delays) != 0 {
		t.Errorf("recorded %d backoff delays, want 0", len(*delays))
	}

	stored, _ := st.FindByID(ctx, "p1")
	if stored.Status != payload.StatusFailed {
		t.Errorf("stored status = %s, want failed", stored.Status)
	}
	if stored.LastError() == "" {
		t.Error("stored payload should carry the failure message")
	}
}

// TestSubmit_RetriesExhausted tests terminalization after the attempt budget
// is spent on retryable failures
func TestSubmit_RetriesExhausted(t *testing.T) {
	ex, st, ch, _ := testExecutor(2) // 3 total attempts
	ctx := context.Background()

	ch.scriptSendErrors(
		errors.New("timeout"),
		errors.New("timeout"),
		errors.New("timeout"),
	)
	st.Save(ctx, testPayload("p1"))

	result, err := ex.Submit(ctx, "p1")
	if err == nil {
		t.Fatal("Submit() error = nil, want submission error")
	}
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("Submit() error type = %T, want *SubmissionError", err)
	}
	if subErr.Type != FailureRetryable {
		t.Errorf("failure type = %s, want retryable", subErr.Type)
	}
	if result.AttemptNumber != 3 {
		t.Errorf("AttemptNumber = %d, want 3", result.AttemptNumber)
	}
	if ch.sendCount() != 3 {
		t.Errorf("SendTransaction calls = %d, want 3", ch.sendCount())
	}

	stored, _ := st.FindByID(ctx, "p1")
	if stored.Status != payload.StatusFailed {
		t.Errorf("stored status = %s, want failed", stored.Status)
	}
	if stored.SubmissionAttempts != 3 {
		t.Errorf("stored attempts = %d, want 3", stored.SubmissionAttempts)
	}
}

// TestSubmit_IdempotentConfirmed tests that a confirmed payload returns its
// cached hash without touching the chain
func TestSubmit_IdempotentConfirmed(t *testing.T) {
	ex, st, ch, _ := testExecutor(3)
	ctx := context.Background()

	p := testPayload("p1")
	p.Status = payload.StatusConfirmed
	p.TransactionHash = "0xcafe000000000000000000000000000000000000000000000000000000000001"
	p.SubmissionAttempts = 2
	st.Save(ctx, p)

	result, err := ex.Submit(ctx, "p1")
	if err != nil {
		t.Fatalf("Submit() error = %v, want nil", err)
	}
	if !result.Success {
		t.Error("Submit() on confirmed payload should succeed")
	}
	if result.TransactionHash != p.TransactionHash {
		t.Errorf("TransactionHash = %s, want cached %s", result.TransactionHash, p.TransactionHash)
	}
	if result.AttemptNumber != 2 {
		t.Errorf("AttemptNumber = %d, want stored attempt count 2", result.AttemptNumber)
	}
	if ch.sendCount() != 0 {
		t.Errorf("SendTransaction calls = %d, want 0", ch.sendCount())
	}
}

// TestSubmit_SubmittedResumesMonitoring tests that a submitted payload does
// not cause a second send but resumes the confirmation monitor
func TestSubmit_SubmittedResumesMonitoring(t *testing.T) {
	ex, st, ch, _ := testExecutor(3)
	ctx := context.Background()

	p := testPayload("p1")
	p.Status = payload.StatusSubmitted
	p.TransactionHash = "0xcafe000000000000000000000000000000000000000000000000000000000002"
	p.SubmissionAttempts = 1
	st.Save(ctx, p)

	result, err := ex.Submit(ctx, "p1")
	if err != nil {
		t.Fatalf("Submit() error = %v, want nil", err)
	}
	if result.TransactionHash != p.TransactionHash {
		t.Errorf("TransactionHash = %s, want existing %s", result.TransactionHash, p.TransactionHash)
	}
	if ch.sendCount() != 0 {
		t.Errorf("SendTransaction calls = %d, want 0", ch.sendCount())
	}

	ex.WaitMonitors()
	stored, _ := st.FindByID(ctx, "p1")
	if stored.Status != payload.StatusConfirmed {
		t.Errorf("stored status = %s, want confirmed after resumed monitor", stored.Status)
	}
}

// TestSubmit_Expired tests that an expired pending payload is terminalized
// without a chain call
func TestSubmit_Expired(t *testing.T) {
	ex, st, ch, _ := testExecutor(3)
	ctx := context.Background()

	p := testPayload("p1")
	p.ExpiresAt = time.Now().Add(-1 * time.Minute)
	st.Save(ctx, p)

	_, err := ex.Submit(ctx, "p1")
	if !IsValidationError(err) {
		t.Fatalf("Submit() error = %v, want validation error", err)
	}
	if ch.sendCount() != 0 {
		t.Errorf("SendTransaction calls = %d, want 0", ch.sendCount())
	}

	stored, _ := st.FindByID(ctx, "p1")
	if stored.Status != payload.StatusFailed {
		t.Errorf("stored status = %s, want failed", stored.Status)
	}
}

// TestSubmit_MissingSignature tests rejection of unsigned payloads
func TestSubmit_MissingSignature(t *testing.T) {
	ex, st, ch, _ := testExecutor(3)
	ctx := context.Background()

	p := testPayload("p1")
	p.Signature = ""
	st.Save(ctx, p)

	_, err := ex.Submit(ctx, "p1")
	if !IsValidationError(err) {
		t.Fatalf("Submit() error = %v, want validation error", err)
	}
	if ch.sendCount() != 0 {
		t.Errorf("SendTransaction calls = %d, want 0", ch.sendCount())
	}
}

// TestSubmit_NotFound tests rejection of unknown payload ids
func TestSubmit_NotFound(t *testing.T) {
	ex, _, _, _ := testExecutor(3)

	_, err := ex.Submit(context.Background(), "ghost")
	if !IsValidationError(err) {
		t.Fatalf("Submit() error = %v, want validation error", err)
	}
}

// TestSubmit_AlreadyInFlight tests that a marked payload is rejected before
// any store or chain access
func TestSubmit_AlreadyInFlight(t *testing.T) {
	ex, st, ch, _ := testExecutor(3)
	ctx := context.Background()
	st.Save(ctx, testPayload("p1"))

	ex.tracker.TryMark("p1")
	defer ex.tracker.Clear("p1")

	_, err := ex.Submit(ctx, "p1")
	if !IsValidationError(err) {
		t.Fatalf("Submit() error = %v, want validation error", err)
	}
	if ch.sendCount() != 0 {
		t.Errorf("SendTransaction calls = %d, want 0", ch.sendCount())
	}
}

// TestMonitor_RevertedTransaction tests submitted → failed on an on-chain
// revert
func TestMonitor_RevertedTransaction(t *testing.T) {
	ex, st, ch, _ := testExecutor(3)
	ctx := context.Background()

	ch.waitStatus = 0 // receipt reports revert
	st.Save(ctx, testPayload("p1"))

	result, err := ex.Submit(ctx, "p1")
	if err != nil {
		t.Fatalf("Submit() error = %v, want nil (revert surfaces via monitor)", err)
	}
	if !result.Success {
		t.Error("Submit() should report success; confirmation outcome is async")
	}

	ex.WaitMonitors()
	stored, _ := st.FindByID(ctx, "p1")
	if stored.Status != payload.StatusFailed {
		t.Errorf("stored status = %s, want failed after revert", stored.Status)
	}
	if stored.LastError() != "transaction reverted on-chain" {
		t.Errorf("stored error = %q, want revert message", stored.LastError())
	}
}

// TestMonitor_WaitFailure tests submitted → failed when confirmation
// monitoring itself errors out
func TestMonitor_WaitFailure(t *testing.T) {
	ex, st, ch, _ := testExecutor(3)
	ctx := context.Background()

	ch.waitErr = errors.New("rpc connection lost")
	st.Save(ctx, testPayload("p1"))

	if _, err := ex.Submit(ctx, "p1"); err != nil {
		t.Fatalf("Submit() error = %v, want nil", err)
	}

	ex.WaitMonitors()
	stored, _ := st.FindByID(ctx, "p1")
	if stored.Status != payload.StatusFailed {
		t.Errorf("stored status = %s, want failed after monitor error", stored.Status)
	}
}

// TestEstimateGasLimit tests the safety margin and the fallback path
func TestEstimateGasLimit(t *testing.T) {
	ex, _, ch, _ := testExecutor(3)
	ctx := context.Background()

	ch.estimateGas = 100_000
	got := ex.estimateGasLimit(ctx, buildSubmitCall(testPayload("p1")))
	if got != 120_000 {
		t.Errorf("estimateGasLimit() = %d, want 120000 (estimate x 1.2)", got)
	}

	ch.estimateErr = errors.New("estimation unsupported")
	got = ex.estimateGasLimit(ctx, buildSubmitCall(testPayload("p1")))
	if got != 500_000 {
		t.Errorf("estimateGasLimit() = %d, want fallback 500000", got)
	}
}

// TestVerify tests the view-only verification path: outcome pass-through,
// validation failures, and the missing-capability error
func TestVerify(t *testing.T) {
	ex, st, ch, _ := testExecutor(3)
	ctx := context.Background()

	st.Save(ctx, testPayload("p1"))

	ch.verifyOK = true
	ok, err := ex.Verify(ctx, "p1")
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
	if !ok {
		t.Error("Verify() = false, want true")
	}

	ch.verifyOK = false
	ok, err = ex.Verify(ctx, "p1")
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
	if ok {
		t.Error("Verify() = true, want false for a rejected signature")
	}

	if ch.sendCount() != 0 {
		t.Errorf("SendTransaction calls = %d, want 0 for view-only verification", ch.sendCount())
	}
}

// TestVerify_ValidationErrors tests unknown ids and unsigned payloads
func TestVerify_ValidationErrors(t *testing.T) {
	ex, st, _, _ := testExecutor(3)
	ctx := context.Background()

	if _, err := ex.Verify(ctx, "ghost"); !IsValidationError(err) {
		t.Errorf("Verify(ghost) error = %v, want validation error", err)
	}

	unsigned := testPayload("p1")
	unsigned.Signature = ""
	st.Save(ctx, unsigned)

	_, err := ex.Verify(ctx, "p1")
	if !IsValidationError(err) {
		t.Fatalf("Verify() error = %v, want validation error", err)
	}
	if !strings.Contains(err.Error(), "missing signature") {
		t.Errorf("error = %q, want missing signature", err.Error())
	}
}

// verifierlessChain hides the Verifier capability of the embedded fake
type verifierlessChain struct{ *fakeChain }

func (verifierlessChain) VerifyPayload() {}

// TestVerify_Unsupported tests the error when the chain client has no view
// call support
func TestVerify_Unsupported(t *testing.T) {
	st := memory.New()
	ch := verifierlessChain{newFakeChain()}
	ex := NewSubmissionExecutor(st, ch, NewInFlightTracker(),
		NewBackoffPolicy(time.Second, 30*time.Second, 2.0), ExecutorConfig{MaxRetries: 1})

	st.Save(context.Background(), testPayload("p1"))

	_, err := ex.Verify(context.Background(), "p1")
	if err == nil || !strings.Contains(err.Error(), "does not support") {
		t.Errorf("Verify() error = %v, want unsupported-capability error", err)
	}
}

// TestWaitMonitorsContext tests that the bounded wait gives up on a monitor
// stuck in its confirmation wait, then completes once the monitor finishes
func TestWaitMonitorsContext(t *testing.T) {
	ex, st, ch, _ := testExecutor(3)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	ch.waitStarted = started
	ch.waitRelease = release
	st.Save(ctx, testPayload("p1"))

	if _, err := ex.Submit(ctx, "p1"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started // monitor is now blocked waiting for confirmations

	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := ex.WaitMonitorsContext(tctx); err == nil {
		t.Error("WaitMonitorsContext() error = nil, want deadline error for a stuck monitor")
	}

	close(release)
	if err := ex.WaitMonitorsContext(context.Background()); err != nil {
		t.Errorf("WaitMonitorsContext() error = %v after release, want nil", err)
	}

	stored, _ := st.FindByID(ctx, "p1")
	if stored.Status != payload.StatusConfirmed {
		t.Errorf("stored status = %s, want confirmed once the monitor completes", stored.Status)
	}
}
