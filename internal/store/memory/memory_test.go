package memory

import (
	"context"
	"testing"
	"time"

	"github.com/concave-dev/anchor/internal/payload"
	"github.com/concave-dev/anchor/internal/store"
)

func newPayload(id string, status payload.Status) *payload.SignedPayload {
	return &payload.SignedPayload{
		ID:          id,
		PayloadType: payload.TypeOracleUpdate,
		Signature:   "0xdeadbeef",
		ExpiresAt:   time.Now().Add(1 * time.Hour),
		Status:      status,
	}
}

// TestSaveAndFind tests the upsert and lookup round trip
func TestSaveAndFind(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := newPayload("p1", payload.StatusPending)
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Error("Save() should stamp CreatedAt and UpdatedAt on the caller's record")
	}

	got, err := s.FindByID(ctx, "p1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.ID != "p1" || got.Status != payload.StatusPending {
		t.Errorf("FindByID() = %+v, want saved record", got)
	}
}

// TestFindByID_NotFound tests the missing-record error
func TestFindByID_NotFound(t *testing.T) {
	s := New()

	_, err := s.FindByID(context.Background(), "ghost")
	if err != store.ErrNotFound {
		t.Errorf("FindByID() error = %v, want ErrNotFound", err)
	}
}

// TestSave_Upsert tests that re-saving overwrites while preserving CreatedAt
func TestSave_Upsert(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := newPayload("p1", payload.StatusPending)
	s.Save(ctx, p)
	created := p.CreatedAt

	p.Status = payload.StatusSubmitted
	p.TransactionHash = "0xaa"
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, _ := s.FindByID(ctx, "p1")
	if got.Status != payload.StatusSubmitted {
		t.Errorf("status = %s, want submitted after upsert", got.Status)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on upsert: %v != %v", got.CreatedAt, created)
	}
	if got.UpdatedAt.Before(created) {
		t.Error("UpdatedAt should be stamped on every Save")
	}
}

// TestSave_CallerCannotMutateStore tests the deep-copy isolation guarantee
func TestSave_CallerCannotMutateStore(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := newPayload("p1", payload.StatusPending)
	p.SetError("original")
	s.Save(ctx, p)

	// Mutating the caller's record after Save must not affect stored state
	p.Status = payload.StatusFailed
	p.SetError("mutated")

	got, _ := s.FindByID(ctx, "p1")
	if got.Status != payload.StatusPending {
		t.Errorf("stored status = %s, caller mutation leaked into store", got.Status)
	}
	if got.LastError() != "original" {
		t.Errorf("stored error = %q, caller mutation leaked into store", got.LastError())
	}

	// Mutating a fetched record must not affect stored state either
	got.Status = payload.StatusFailed
	again, _ := s.FindByID(ctx, "p1")
	if again.Status != payload.StatusPending {
		t.Error("mutating a fetched record leaked into store")
	}
}

// TestList_Filters tests status, signature, and limit filtering with age
// ordering
func TestList_Filters(t *testing.T) {
	s := New()
	ctx := context.Background()

	older := newPayload("older", payload.StatusPending)
	older.CreatedAt = time.Now().Add(-2 * time.Hour)
	s.Save(ctx, older)

	newer := newPayload("newer", payload.StatusPending)
	newer.CreatedAt = time.Now().Add(-1 * time.Hour)
	s.Save(ctx, newer)

	unsigned := newPayload("unsigned", payload.StatusPending)
	unsigned.Signature = ""
	s.Save(ctx, unsigned)

	failed := newPayload("failed", payload.StatusFailed)
	s.Save(ctx, failed)

	got, err := s.List(ctx, store.Filter{
		Statuses:   []payload.Status{payload.StatusPending},
		Signature:  store.SignaturePresent,
		OrderByAge: true,
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(got))
	}
	if got[0].ID != "older" || got[1].ID != "newer" {
		t.Errorf("List() order = [%s, %s], want oldest first", got[0].ID, got[1].ID)
	}

	limited, _ := s.List(ctx, store.Filter{
		Statuses:   []payload.Status{payload.StatusPending},
		Signature:  store.SignaturePresent,
		OrderByAge: true,
		Limit:      1,
	})
	if len(limited) != 1 || limited[0].ID != "older" {
		t.Errorf("List() with limit 1 = %v, want only the oldest", limited)
	}
}

// TestList_UpdatedSince tests the recency filter
func TestList_UpdatedSince(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.Save(ctx, newPayload("recent", payload.StatusFailed))

	got, err := s.List(ctx, store.Filter{
		Statuses:     []payload.Status{payload.StatusFailed},
		UpdatedSince: time.Now().Add(-1 * time.Minute),
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("List() returned %d records, want 1 (just saved)", len(got))
	}

	none, _ := s.List(ctx, store.Filter{
		Statuses:     []payload.Status{payload.StatusFailed},
		UpdatedSince: time.Now().Add(1 * time.Minute),
	})
	if len(none) != 0 {
		t.Errorf("List() returned %d records for a future UpdatedSince, want 0", len(none))
	}
}

// TestCount tests filtered counting
func TestCount(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.Save(ctx, newPayload("a", payload.StatusPending))
	s.Save(ctx, newPayload("b", payload.StatusPending))
	s.Save(ctx, newPayload("c", payload.StatusConfirmed))

	n, err := s.Count(ctx, store.Filter{Statuses: []payload.Status{payload.StatusPending}})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count(pending) = %d, want 2", n)
	}

	all, _ := s.Count(ctx, store.Filter{})
	if all != 3 {
		t.Errorf("Count(all) = %d, want 3", all)
	}
}

// TestAttemptStats tests attempt aggregation
func TestAttemptStats(t *testing.T) {
	s := New()
	ctx := context.Background()

	a := newPayload("a", payload.StatusConfirmed)
	a.SubmissionAttempts = 1
	s.Save(ctx, a)

	b := newPayload("b", payload.StatusFailed)
	b.SubmissionAttempts = 3
	s.Save(ctx, b)

	stats, err := s.AttemptStats(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("AttemptStats() error = %v", err)
	}
	if stats.Count != 2 || stats.Total != 4 {
		t.Errorf("AttemptStats() = %+v, want count 2 total 4", stats)
	}
	if stats.Average != 2.0 {
		t.Errorf("Average = %g, want 2.0", stats.Average)
	}

	empty, _ := s.AttemptStats(ctx, store.Filter{Statuses: []payload.Status{payload.StatusSubmitted}})
	if empty.Count != 0 || empty.Average != 0 {
		t.Errorf("AttemptStats() on empty match = %+v, want zeros", empty)
	}
}
