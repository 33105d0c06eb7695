package pipeline

import (
	"context"
	"time"

	"github.com/concave-dev/anchor/internal/logging"
	"github.com/concave-dev/anchor/internal/payload"
	"github.com/concave-dev/anchor/internal/store"
)

// retryableWindow bounds how far back SelectRetryable looks for failed
// payloads. Older failures belong to the external dead-letter process.
const retryableWindow = 24 * time.Hour

// overfetchFactor is how many extra candidates SelectForBatch pulls to
// absorb losses to expiry and in-flight filtering.
const overfetchFactor = 2

// BatchSelector queries the store for payloads eligible for submission,
// expiring stale candidates and excluding in-flight ones along the way.
type BatchSelector struct {
	store      store.Store
	tracker    *InFlightTracker
	maxRetries int
}

// NewBatchSelector creates a selector over the given store and tracker.
// maxRetries mirrors the executor's retry bound so retryable selection
// honors the same attempt ceiling.
func NewBatchSelector(s store.Store, t *InFlightTracker, maxRetries int) *BatchSelector {
	return &BatchSelector{store: s, tracker: t, maxRetries: maxRetries}
}

// maxAttempts is the total chain-call budget per payload: the first attempt
// plus maxRetries retries.
func (s *BatchSelector) maxAttempts() int {
	return s.maxRetries + 1
}

// SelectForBatch returns up to limit pending, signed, unexpired payloads,
// oldest first, and marks each returned payload in-flight.
//
// Candidates are over-fetched at twice the limit to absorb filtering losses.
// Expired candidates are terminalized on the spot: they transition to failed
// with an expiry error and are excluded, honoring the rule that a payload
// past its deadline never reaches the chain. Already in-flight candidates
// are skipped without side effects.
//
// Only signed payloads are selected. Selecting unsigned ones would be dead
// weight: the submission validation step rejects them anyway, so they would
// only burn batch slots.
func (s *BatchSelector) SelectForBatch(ctx context.Context, limit int) ([]*payload.SignedPayload, error) {
	candidates, err := s.store.List(ctx, store.Filter{
		Statuses:   []payload.Status{payload.StatusPending},
		Signature:  store.SignaturePresent,
		OrderByAge: true,
		Limit:      limit * overfetchFactor,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var selected []*payload.SignedPayload
	for _, p := range candidates {
		if len(selected) >= limit {
			break
		}

		if p.IsExpired(now) {
			p.Status = payload.StatusFailed
			p.SetError("payload expired before submission")
			if err := s.store.Save(ctx, p); err != nil {
				logging.Error("Selector: failed to expire payload %s: %v", p.ID, err)
			} else {
				logging.Warn("Selector: payload %s expired before submission", p.ID)
			}
			continue
		}

		if !s.tracker.TryMark(p.ID) {
			logging.Debug("Selector: payload %s already in flight, skipping", p.ID)
			continue
		}
		selected = append(selected, p)
	}

	logging.Debug("Selector: selected %d of %d candidates (limit %d)",
		len(selected), len(candidates), limit)
	return selected, nil
}

// SelectRetryable returns up to limit failed payloads from the trailing
// 24-hour window whose last error classifies as retryable and whose attempt
// counter is below the configured maximum. These are the candidates an
// explicit retry sweep may reset to pending.
//
// Unlike SelectForBatch, no in-flight marks are taken here: RetryBatch
// acquires them when it actually dispatches.
func (s *BatchSelector) SelectRetryable(ctx context.Context, limit int) ([]*payload.SignedPayload, error) {
	candidates, err := s.store.List(ctx, store.Filter{
		Statuses:     []payload.Status{payload.StatusFailed},
		UpdatedSince: time.Now().Add(-retryableWindow),
		OrderByAge:   true,
	})
	if err != nil {
		return nil, err
	}

	var retryable []*payload.SignedPayload
	for _, p := range candidates {
		if limit > 0 && len(retryable) >= limit {
			break
		}
		if ok, _ := s.RetryEligible(p); !ok {
			continue
		}
		retryable = append(retryable, p)
	}

	logging.Debug("Selector: found %d retryable of %d failed candidates",
		len(retryable), len(candidates))
	return retryable, nil
}

// RetryEligible reports whether a failed payload may legally transition back
// to pending: its attempt counter must be below the configured maximum and
// its last error must classify as retryable. Both the automatic sweep and
// explicit-id retries go through this check.
func (s *BatchSelector) RetryEligible(p *payload.SignedPayload) (bool, string) {
	if p.Status != payload.StatusFailed {
		return false, "not retryable in status " + string(p.Status)
	}
	if p.SubmissionAttempts >= s.maxAttempts() {
		return false, "retry attempts exhausted"
	}
	if Classify(p.LastError()) != FailureRetryable {
		return false, "last failure is permanent"
	}
	return true, ""
}
