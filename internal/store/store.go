// Package store defines the persistence contract for signed payload records.
//
// The Store interface is the only way pipeline components read or mutate
// payload state: the store exclusively owns persisted records and all
// mutations are last-write-wins whole-record upserts. No optimistic
// concurrency control is assumed from implementations, which is an accepted
// limitation the pipeline designs around (see the confirmation monitor's
// reload-before-write behavior).
//
// Two implementations ship with the relay: an in-memory store for tests and
// single-node development (store/memory) and a Postgres store for production
// deployments (store/postgres).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/concave-dev/anchor/internal/payload"
)

// ErrNotFound is returned when a payload id does not exist in the store.
var ErrNotFound = errors.New("payload not found")

// SignaturePresence filters payloads on whether a signature is recorded.
type SignaturePresence int

const (
	// SignatureAny matches payloads regardless of signature presence.
	SignatureAny SignaturePresence = iota
	// SignaturePresent matches only payloads with a non-empty signature.
	SignaturePresent
	// SignatureMissing matches only payloads without a signature.
	SignatureMissing
)

// Filter narrows List and Count queries. Zero values mean "no constraint".
type Filter struct {
	Statuses     []payload.Status  // match any of these statuses
	Signature    SignaturePresence // signature presence requirement
	ExpiresAfter time.Time         // only payloads expiring after this instant
	UpdatedSince time.Time         // only payloads updated at or after this instant
	OrderByAge   bool              // oldest created first when set
	Limit        int               // max records returned; 0 means unlimited
}

// AttemptStats aggregates submission attempt counters across stored payloads.
type AttemptStats struct {
	Total   int     `json:"total"`   // sum of attempts over matched records
	Average float64 `json:"average"` // mean attempts per matched record
	Count   int     `json:"count"`   // number of matched records
}

// Store is the persistence abstraction for signed payload records.
//
// Save is an upsert: a record with a new id is inserted, an existing id is
// overwritten whole. Implementations must stamp UpdatedAt on every Save and
// CreatedAt on first insert so selection ordering stays meaningful.
type Store interface {
	// FindByID returns the payload with the given id or ErrNotFound.
	FindByID(ctx context.Context, id string) (*payload.SignedPayload, error)

	// List returns payloads matching the filter.
	List(ctx context.Context, f Filter) ([]*payload.SignedPayload, error)

	// Count returns the number of payloads matching the filter.
	Count(ctx context.Context, f Filter) (int, error)

	// Save upserts a single payload record, last write wins.
	Save(ctx context.Context, p *payload.SignedPayload) error

	// AttemptStats aggregates submission attempts over payloads matching
	// the filter. Used by the stats endpoint and operational tooling.
	AttemptStats(ctx context.Context, f Filter) (*AttemptStats, error)
}
