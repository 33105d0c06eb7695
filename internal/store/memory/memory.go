// Package memory provides an in-memory Store implementation backed by a
// mutex-guarded map. Used by the test suite and by single-node development
// deployments where no DATABASE_URL is configured.
//
// Records are deep-copied on the way in and out so callers can never mutate
// stored state except through Save, matching the whole-record
// last-write-wins contract of the Store interface.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/concave-dev/anchor/internal/payload"
	"github.com/concave-dev/anchor/internal/store"
)

// Store is a thread-safe in-memory payload store.
type Store struct {
	mu       sync.RWMutex
	payloads map[string]*payload.SignedPayload
}

// New creates an empty in-memory payload store.
func New() *Store {
	return &Store{payloads: make(map[string]*payload.SignedPayload)}
}

// clone deep-copies a payload record so stored state cannot be mutated
// outside Save.
func clone(p *payload.SignedPayload) *payload.SignedPayload {
	cp := *p
	if p.Payload != nil {
		cp.Payload = append([]byte(nil), p.Payload...)
	}
	if p.ErrorMessage != nil {
		msg := *p.ErrorMessage
		cp.ErrorMessage = &msg
	}
	if p.SubmittedAt != nil {
		t := *p.SubmittedAt
		cp.SubmittedAt = &t
	}
	if p.ConfirmedAt != nil {
		t := *p.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	return &cp
}

// matches reports whether a record satisfies every constraint of the filter
// except Limit, which is applied after ordering.
func matches(p *payload.SignedPayload, f store.Filter) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if p.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	switch f.Signature {
	case store.SignaturePresent:
		if !p.HasSignature() {
			return false
		}
	case store.SignatureMissing:
		if p.HasSignature() {
			return false
		}
	}
	if !f.ExpiresAfter.IsZero() && !p.ExpiresAt.After(f.ExpiresAfter) {
		return false
	}
	if !f.UpdatedSince.IsZero() && p.UpdatedAt.Before(f.UpdatedSince) {
		return false
	}
	return true
}

// FindByID returns a copy of the payload with the given id.
func (s *Store) FindByID(ctx context.Context, id string) (*payload.SignedPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payloads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(p), nil
}

// List returns copies of all payloads matching the filter, ordered oldest
// first when OrderByAge is set, truncated to Limit when positive.
func (s *Store) List(ctx context.Context, f store.Filter) ([]*payload.SignedPayload, error) {
	s.mu.RLock()
	var out []*payload.SignedPayload
	for _, p := range s.payloads {
		if matches(p, f) {
			out = append(out, clone(p))
		}
	}
	s.mu.RUnlock()

	if f.OrderByAge {
		sort.Slice(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Count returns the number of payloads matching the filter.
func (s *Store) Count(ctx context.Context, f store.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.payloads {
		if matches(p, f) {
			n++
		}
	}
	return n, nil
}

// Save upserts a payload record, stamping CreatedAt on first insert and
// UpdatedAt on every write. Last write wins.
func (s *Store) Save(ctx context.Context, p *payload.SignedPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cp := clone(p)
	if existing, ok := s.payloads[p.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.payloads[p.ID] = cp

	// Reflect store-owned timestamps back to the caller's record
	p.CreatedAt = cp.CreatedAt
	p.UpdatedAt = cp.UpdatedAt
	return nil
}

// AttemptStats aggregates submission attempts over payloads matching the
// filter.
func (s *Store) AttemptStats(ctx context.Context, f store.Filter) (*store.AttemptStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &store.AttemptStats{}
	for _, p := range s.payloads {
		if matches(p, f) {
			stats.Count++
			stats.Total += p.SubmissionAttempts
		}
	}
	if stats.Count > 0 {
		stats.Average = float64(stats.Total) / float64(stats.Count)
	}
	return stats, nil
}
