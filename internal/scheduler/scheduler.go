// Package scheduler drives the submission pipeline on a cron cadence: a
// batch job that submits eligible pending payloads and a retry job that
// sweeps recent retryable failures.
//
// The scheduler is a thin driver: all selection, dedup, and failure
// semantics live in the pipeline. Overlapping runs are prevented with a
// per-job running flag, and payloads a slow run still holds are naturally
// excluded from the next run by the pipeline's in-flight tracker.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/concave-dev/anchor/internal/logging"
	"github.com/concave-dev/anchor/internal/pipeline"
	"github.com/robfig/cron/v3"
)

// Scheduler periodically invokes batch submission and retry sweeps.
type Scheduler struct {
	orchestrator *pipeline.BatchOrchestrator
	cron         *cron.Cron

	batchSpec string
	retrySpec string

	batchRunning atomic.Bool
	retryRunning atomic.Bool
}

// New creates a scheduler with the given cron specs (standard five-field
// syntax) driving the orchestrator.
func New(o *pipeline.BatchOrchestrator, batchSpec, retrySpec string) *Scheduler {
	return &Scheduler{
		orchestrator: o,
		cron:         cron.New(),
		batchSpec:    batchSpec,
		retrySpec:    retrySpec,
	}
}

// Start registers both jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.batchSpec, s.runBatch); err != nil {
		return fmt.Errorf("invalid batch cron spec %q: %w", s.batchSpec, err)
	}
	if _, err := s.cron.AddFunc(s.retrySpec, s.runRetry); err != nil {
		return fmt.Errorf("invalid retry cron spec %q: %w", s.retrySpec, err)
	}

	s.cron.Start()
	logging.Info("Scheduler: started (batch %q, retry %q)", s.batchSpec, s.retrySpec)
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logging.Info("Scheduler: stopped")
}

// runBatch submits a batch of pending payloads unless the previous batch
// run is still active.
func (s *Scheduler) runBatch() {
	if !s.batchRunning.CompareAndSwap(false, true) {
		logging.Warn("Scheduler: previous batch run still active, skipping")
		return
	}
	defer s.batchRunning.Store(false)

	result, err := s.orchestrator.SubmitPending(context.Background())
	if err != nil {
		logging.Error("Scheduler: batch run failed: %v", err)
		return
	}
	if result.TotalPayloads > 0 {
		logging.Info("Scheduler: batch %s processed %d payloads (%d ok, %d failed)",
			result.BatchID, result.TotalPayloads, result.Successful, result.Failed)
	}
}

// runRetry sweeps recent retryable failures unless the previous sweep is
// still active.
func (s *Scheduler) runRetry() {
	if !s.retryRunning.CompareAndSwap(false, true) {
		logging.Warn("Scheduler: previous retry sweep still active, skipping")
		return
	}
	defer s.retryRunning.Store(false)

	result, err := s.orchestrator.RetryBatch(context.Background(), nil)
	if err != nil {
		logging.Error("Scheduler: retry sweep failed: %v", err)
		return
	}
	if result.TotalPayloads > 0 {
		logging.Info("Scheduler: retry %s processed %d payloads (%d ok, %d failed)",
			result.BatchID, result.TotalPayloads, result.Successful, result.Failed)
	}
}
