// BatchOrchestrator: sequential vs. concurrent batch execution, retry
// sweeps, aggregation, and statistics.
//
// A batch never fails as a whole: each payload's outcome is independent and
// captured in the result set, so one permanent failure cannot abort its
// batch mates. Sequential mode preserves input order and serializes chain
// sends with a pacing delay to keep nonce usage orderly; concurrent mode
// trades both guarantees for bounded-fan-out throughput.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/concave-dev/anchor/internal/logging"
	"github.com/concave-dev/anchor/internal/payload"
	"github.com/concave-dev/anchor/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// OrchestratorConfig tunes batch execution.
type OrchestratorConfig struct {
	BatchSize     int
	PreserveOrder bool
	MaxConcurrent int
}

// BatchResult aggregates the outcomes of one batch run.
type BatchResult struct {
	BatchID       string          `json:"batch_id"`
	TotalPayloads int             `json:"total_payloads"`
	Successful    int             `json:"successful"`
	Failed        int             `json:"failed"`
	Results       []*SubmitResult `json:"results"`
	ElapsedMs     int64           `json:"elapsed_ms"`
}

// BatchOrchestrator coordinates batch selection, dispatch, and aggregation.
type BatchOrchestrator struct {
	store    store.Store
	selector *BatchSelector
	executor *SubmissionExecutor
	tracker  *InFlightTracker
	backoff  *BackoffPolicy
	cfg      OrchestratorConfig
}

// NewBatchOrchestrator creates an orchestrator over the given collaborators.
func NewBatchOrchestrator(s store.Store, sel *BatchSelector, ex *SubmissionExecutor, t *InFlightTracker, b *BackoffPolicy, cfg OrchestratorConfig) *BatchOrchestrator {
	return &BatchOrchestrator{
		store:    s,
		selector: sel,
		executor: ex,
		tracker:  t,
		backoff:  b,
		cfg:      cfg,
	}
}

// pacingDelay is the small fixed delay applied between sequential items and
// between concurrent chunks to reduce nonce contention at the node.
func (o *BatchOrchestrator) pacingDelay() time.Duration {
	return o.backoff.Delay(1)
}

// newBatchID generates a batch identifier with the standard prefix.
func newBatchID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// SubmitPending is the scheduled entry point: select up to BatchSize
// eligible pending payloads (the selector takes their in-flight marks) and
// process them according to the configured execution mode.
func (o *BatchOrchestrator) SubmitPending(ctx context.Context) (*BatchResult, error) {
	selected, err := o.selector.SelectForBatch(ctx, o.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("batch selection failed: %w", err)
	}

	ids := make([]string, len(selected))
	for i, p := range selected {
		ids[i] = p.ID
	}
	return o.processMarked(ctx, newBatchID("batch"), ids, o.cfg.PreserveOrder), nil
}

// ProcessBatch processes exactly the given payload ids as one batch. Ids
// are validated with the same filters the executor applies (present, signed,
// unexpired, not already in flight); survivors are marked in-flight and
// dispatched. Every input id receives a result at its input position, so
// with PreserveOrder the result order equals the input order.
//
// batchID may be empty, in which case one is generated.
func (o *BatchOrchestrator) ProcessBatch(ctx context.Context, ids []string, batchID string) (*BatchResult, error) {
	if batchID == "" {
		batchID = newBatchID("batch")
	}
	started := time.Now()

	results := make([]*SubmitResult, len(ids))
	var dispatch []string
	dispatchIdx := make(map[string]int, len(ids))

	now := time.Now()
	for i, id := range ids {
		p, err := o.store.FindByID(ctx, id)
		if err != nil {
			results[i] = failedResult(id, "", fmt.Sprintf("validation failed: %v", err))
			continue
		}

		// Confirmed payloads pass straight through the executor's
		// idempotent short-circuit; everything else gets the standard
		// validation filters before an in-flight mark is taken.
		if p.Status != payload.StatusConfirmed {
			if p.Status == payload.StatusPending && !p.HasSignature() {
				results[i] = failedResult(id, "", "missing signature")
				continue
			}
			if p.Status == payload.StatusPending && p.IsExpired(now) {
				p.Status = payload.StatusFailed
				p.SetError("payload expired before submission")
				if saveErr := o.store.Save(ctx, p); saveErr != nil {
					logging.Error("Orchestrator: failed to expire payload %s: %v", p.ID, saveErr)
				}
				results[i] = failedResult(id, FailurePermanent, "payload expired before submission")
				continue
			}
		}

		if !o.tracker.TryMark(id) {
			results[i] = failedResult(id, "", "already in flight")
			continue
		}
		dispatch = append(dispatch, id)
		dispatchIdx[id] = i
	}

	partial := o.processMarked(ctx, batchID, dispatch, o.cfg.PreserveOrder)
	for _, r := range partial.Results {
		results[dispatchIdx[r.PayloadID]] = r
	}

	return aggregate(batchID, results, started), nil
}

// RetryBatch retries failed payloads: exactly the given ids, or whatever
// SelectRetryable returns when ids is empty. Every candidate, explicit or
// swept, must pass the same eligibility gates (failed status, attempt budget
// left, retryable error); survivors transition failed → pending (the
// explicit retry action, the only legal way back) and are then processed in
// bounded-concurrency chunks regardless of the configured execution mode.
func (o *BatchOrchestrator) RetryBatch(ctx context.Context, ids []string) (*BatchResult, error) {
	batchID := newBatchID("retry")
	started := time.Now()

	var candidates []*payload.SignedPayload
	if len(ids) == 0 {
		selected, err := o.selector.SelectRetryable(ctx, o.cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("retryable selection failed: %w", err)
		}
		candidates = selected
	} else {
		for _, id := range ids {
			p, err := o.store.FindByID(ctx, id)
			if err != nil {
				logging.Warn("Orchestrator: retry candidate %s not loadable: %v", id, err)
				continue
			}
			candidates = append(candidates, p)
		}
	}

	var results []*SubmitResult
	var dispatch []string
	for _, p := range candidates {
		// Explicit ids get the same eligibility gates as the automatic
		// sweep: failed status, attempt budget left, retryable error.
		if ok, reason := o.selector.RetryEligible(p); !ok {
			results = append(results, failedResult(p.ID, "", reason))
			continue
		}

		p.Status = payload.StatusPending
		p.ClearError()
		if err := o.store.Save(ctx, p); err != nil {
			results = append(results, failedResult(p.ID, "", fmt.Sprintf("failed to reset for retry: %v", err)))
			continue
		}
		if !o.tracker.TryMark(p.ID) {
			results = append(results, failedResult(p.ID, "", "already in flight"))
			continue
		}
		dispatch = append(dispatch, p.ID)
	}

	partial := o.processMarked(ctx, batchID, dispatch, false)
	results = append(results, partial.Results...)

	return aggregate(batchID, results, started), nil
}

// processMarked dispatches payloads whose in-flight marks the caller (or the
// selector) already holds, clearing every mark on completion regardless of
// outcome. Sequential mode iterates in input order with a pacing delay
// between items; concurrent mode partitions into MaxConcurrent-sized chunks,
// runs each chunk in parallel, and paces between chunks.
func (o *BatchOrchestrator) processMarked(ctx context.Context, batchID string, ids []string, sequential bool) *BatchResult {
	started := time.Now()
	defer func() {
		for _, id := range ids {
			o.tracker.Clear(id)
		}
	}()

	results := make([]*SubmitResult, len(ids))

	if sequential {
		for i, id := range ids {
			results[i] = o.executeOne(ctx, id)
			if i < len(ids)-1 {
				time.Sleep(o.pacingDelay())
			}
		}
	} else {
		for start := 0; start < len(ids); start += o.cfg.MaxConcurrent {
			end := start + o.cfg.MaxConcurrent
			if end > len(ids) {
				end = len(ids)
			}

			g, gctx := errgroup.WithContext(ctx)
			for i := start; i < end; i++ {
				g.Go(func() error {
					results[i] = o.executeOne(gctx, ids[i])
					// Individual failures are captured in the result,
					// never propagated: one payload cannot abort its
					// chunk mates.
					return nil
				})
			}
			// Every goroutine returns nil; errors live in the results
			_ = g.Wait()

			if end < len(ids) {
				time.Sleep(o.pacingDelay())
			}
		}
	}

	return aggregate(batchID, results, started)
}

// executeOne dispatches a single marked payload and folds validation errors
// into a structured result.
func (o *BatchOrchestrator) executeOne(ctx context.Context, id string) *SubmitResult {
	res, err := o.executor.Execute(ctx, id)
	if res != nil {
		return res
	}
	if err != nil {
		return failedResult(id, "", err.Error())
	}
	return failedResult(id, "", "no result")
}

// failedResult builds a failure entry for the batch result set.
func failedResult(id string, ft FailureType, msg string) *SubmitResult {
	return &SubmitResult{
		PayloadID:   id,
		Success:     false,
		FailureType: ft,
		Error:       msg,
	}
}

// aggregate folds per-payload results into a BatchResult.
func aggregate(batchID string, results []*SubmitResult, started time.Time) *BatchResult {
	br := &BatchResult{
		BatchID:       batchID,
		TotalPayloads: len(results),
		Results:       results,
		ElapsedMs:     time.Since(started).Milliseconds(),
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Success {
			br.Successful++
		} else {
			br.Failed++
		}
	}

	if br.TotalPayloads > 0 {
		logging.Info("Orchestrator: batch %s finished: %d/%d successful in %dms",
			batchID, br.Successful, br.TotalPayloads, br.ElapsedMs)
	}
	return br
}
