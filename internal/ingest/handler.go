package ingest

import (
	"fmt"
	"sync"

	"drasimcp/internal/config"
	"drasimcp/internal/store"
	"drasimcp/internal/syncpoint"
	"drasimcp/pkg/logging"
)

// Handler applies inbound envelopes to the store, gated by the
// per-query synchronisation point.
type Handler struct {
	store      *store.Store
	syncPoints *syncpoint.Manager
	queries    map[string]config.QueryConfig

	// applyMu guards applyLocks. Envelopes for one query are applied
	// strictly one at a time so the sync point can only advance past a
	// fully applied envelope; distinct queries proceed in parallel.
	applyMu    sync.Mutex
	applyLocks map[string]*sync.Mutex
}

// NewHandler creates an event handler for the configured queries.
func NewHandler(st *store.Store, syncPoints *syncpoint.Manager, queries []config.QueryConfig) *Handler {
	byID := make(map[string]config.QueryConfig, len(queries))
	for _, query := range queries {
		byID[query.QueryID] = query
	}
	return &Handler{
		store:      st,
		syncPoints: syncPoints,
		queries:    byID,
		applyLocks: make(map[string]*sync.Mutex),
	}
}

// queryLock returns the apply lock for a query, creating it on first
// use.
func (h *Handler) queryLock(queryID string) *sync.Mutex {
	h.applyMu.Lock()
	defer h.applyMu.Unlock()
	lock, ok := h.applyLocks[queryID]
	if !ok {
		lock = &sync.Mutex{}
		h.applyLocks[queryID] = lock
	}
	return lock
}

// HandleEvent applies one envelope. A nil return means the envelope is
// acknowledged, including the silent-success case of a duplicate
// sequence. Typed errors say how the transport should react: an
// unknown query must not be redelivered, an uninitialised one must.
func (h *Handler) HandleEvent(event *Event) error {
	queryConfig, ok := h.queries[event.QueryID]
	if !ok {
		return &store.UnknownQueryError{QueryID: event.QueryID}
	}

	if event.IsControl() {
		kind := ""
		if event.ControlSignal != nil {
			kind = event.ControlSignal.Kind
		}
		logging.Info("Ingest", "Control signal %q for query %s", kind, event.QueryID)
		return nil
	}

	lock := h.queryLock(event.QueryID)
	lock.Lock()
	defer lock.Unlock()

	current, initialized := h.syncPoints.Get(event.QueryID)
	if !initialized {
		return &syncpoint.UninitializedError{QueryID: event.QueryID}
	}
	if event.Sequence <= current {
		logging.Debug("Ingest", "Duplicate envelope for query %s: sequence %d <= sync point %d",
			event.QueryID, event.Sequence, current)
		return nil
	}

	added, updated, deleted, skipped, err := h.applyChanges(event, queryConfig.KeyField)
	if err != nil {
		// The sync point stays put so the transport redelivers the
		// whole envelope; upserts are idempotent under replay.
		return err
	}

	if err := h.syncPoints.Advance(event.QueryID, event.Sequence); err != nil {
		return fmt.Errorf("advance sync point for %s: %w", event.QueryID, err)
	}

	logging.Debug("Ingest", "Applied envelope %d for query %s: %d added, %d updated, %d deleted, %d skipped",
		event.Sequence, event.QueryID, added, updated, deleted, skipped)
	return nil
}

// applyChanges mutates the store for one envelope in the fixed order
// added, updated, deleted. Rows without a usable key are skipped with
// a warning and never fail the envelope; store failures do.
func (h *Handler) applyChanges(event *Event, keyField string) (added, updated, deleted, skipped int, err error) {
	for _, row := range event.AddedResults {
		key, ok := store.DeriveEntryKey(row, keyField)
		if !ok {
			logging.Warn("Ingest", "Skipping added row of query %s without usable key field %s", event.QueryID, keyField)
			skipped++
			continue
		}
		if _, err := h.store.UpsertEntry(event.QueryID, key, row); err != nil {
			return added, updated, deleted, skipped, fmt.Errorf("upsert added row %s of query %s: %w", key, event.QueryID, err)
		}
		added++
	}

	for _, update := range event.UpdatedResults {
		if update.After == nil {
			logging.Warn("Ingest", "Skipping updated row of query %s without after image", event.QueryID)
			skipped++
			continue
		}
		afterKey, ok := store.DeriveEntryKey(update.After, keyField)
		if !ok {
			logging.Warn("Ingest", "Skipping updated row of query %s without usable key field %s", event.QueryID, keyField)
			skipped++
			continue
		}

		// A key change shows up as different before and after keys;
		// the stale entry is removed so the update does not fork it.
		if update.Before != nil {
			if beforeKey, ok := store.DeriveEntryKey(update.Before, keyField); ok && beforeKey != afterKey {
				if _, err := h.store.DeleteEntry(event.QueryID, beforeKey); err != nil {
					return added, updated, deleted, skipped, fmt.Errorf("delete re-keyed row %s of query %s: %w", beforeKey, event.QueryID, err)
				}
			}
		}

		if _, err := h.store.UpsertEntry(event.QueryID, afterKey, update.After); err != nil {
			return added, updated, deleted, skipped, fmt.Errorf("upsert updated row %s of query %s: %w", afterKey, event.QueryID, err)
		}
		updated++
	}

	for _, row := range event.DeletedResults {
		key, ok := store.DeriveEntryKey(row, keyField)
		if !ok {
			logging.Warn("Ingest", "Skipping deleted row of query %s without usable key field %s", event.QueryID, keyField)
			skipped++
			continue
		}
		if _, err := h.store.DeleteEntry(event.QueryID, key); err != nil {
			return added, updated, deleted, skipped, fmt.Errorf("delete row %s of query %s: %w", key, event.QueryID, err)
		}
		deleted++
	}
	return added, updated, deleted, skipped, nil
}
