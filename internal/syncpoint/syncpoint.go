// Package syncpoint tracks the per-query high-water mark of applied change
// sequences. The sync point gates event application: envelopes at or below
// the watermark are duplicates, and envelopes for queries without an
// initialized sync point must be retried by the transport.
package syncpoint

import (
	"fmt"
	"sync"

	"drasimcp/pkg/logging"
)

// UninitializedError indicates that Advance was called for a query whose
// sync point has not been initialized by the bootstrap yet.
type UninitializedError struct {
	QueryID string
}

func (e *UninitializedError) Error() string {
	return fmt.Sprintf("sync point for query %q is not initialized", e.QueryID)
}

type syncPoint struct {
	initialized bool
	sequence    int64
}

// Manager holds one sync point per query. All operations are linearizable:
// an Advance is visible to every subsequent Get before Advance returns.
type Manager struct {
	mu     sync.Mutex
	points map[string]*syncPoint
}

// NewManager creates an empty sync point manager.
func NewManager() *Manager {
	return &Manager{
		points: make(map[string]*syncPoint),
	}
}

// Initialize records the starting sequence for a query. A second call for
// the same query is a no-op with a logged warning, which makes the bootstrap
// idempotent.
func (m *Manager) Initialize(queryID string, sequence int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sp, ok := m.points[queryID]; ok && sp.initialized {
		logging.Warn("SyncPoint", "Query %s is already initialized at sequence %d, ignoring re-initialization at %d",
			queryID, sp.sequence, sequence)
		return
	}
	m.points[queryID] = &syncPoint{initialized: true, sequence: sequence}
	logging.Info("SyncPoint", "Query %s initialized at sequence %d", queryID, sequence)
}

// Get returns the current watermark for a query. The second return value is
// false while the query is not initialized.
func (m *Manager) Get(queryID string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.points[queryID]
	if !ok || !sp.initialized {
		return 0, false
	}
	return sp.sequence, true
}

// IsInitialized reports whether the query's sync point exists.
func (m *Manager) IsInitialized(queryID string) bool {
	_, ok := m.Get(queryID)
	return ok
}

// Advance moves the watermark to max(current, sequence). Advancing to an
// older or equal sequence is a no-op logged at warning level; the watermark
// never decreases. Advancing an uninitialized query is an error.
func (m *Manager) Advance(queryID string, sequence int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.points[queryID]
	if !ok || !sp.initialized {
		return &UninitializedError{QueryID: queryID}
	}
	if sequence <= sp.sequence {
		logging.Warn("SyncPoint", "Ignoring stale advance for query %s: sequence %d <= watermark %d",
			queryID, sequence, sp.sequence)
		return nil
	}
	sp.sequence = sequence
	logging.Debug("SyncPoint", "Query %s advanced to sequence %d", queryID, sequence)
	return nil
}
