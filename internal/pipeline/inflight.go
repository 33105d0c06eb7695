package pipeline

import "sync"

// InFlightTracker is the process-local mutual-exclusion set of payload ids
// currently being processed. It prevents one running relay instance from
// submitting the same payload twice concurrently, e.g. a scheduled batch run
// racing a manual retry from the API.
//
// This is deliberately not a distributed lock: multiple relay instances do
// not coordinate through it and can in principle double-submit the same
// payload. Single-instance deployments are the supported topology; a shared
// lease record in the store would be the multi-instance upgrade path.
type InFlightTracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewInFlightTracker creates an empty tracker.
func NewInFlightTracker() *InFlightTracker {
	return &InFlightTracker{ids: make(map[string]struct{})}
}

// TryMark atomically marks the payload as in-flight. Returns false when the
// payload was already marked, in which case the caller must not proceed.
func (t *InFlightTracker) TryMark(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.ids[id]; exists {
		return false
	}
	t.ids[id] = struct{}{}
	return true
}

// Clear removes the in-flight mark. Callers must clear in all code paths,
// including failures, typically via defer.
func (t *InFlightTracker) Clear(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ids, id)
}

// InFlight reports whether the payload is currently marked.
func (t *InFlightTracker) InFlight(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.ids[id]
	return exists
}

// Len returns the number of payloads currently in flight. Used by the stats
// endpoint for operational visibility.
func (t *InFlightTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
