package store

import (
	"sort"
	"sync"
	"time"

	"drasimcp/pkg/logging"
)

const eventBufferSize = 256

// Store owns the materialized view: the latest result rows of every
// configured query, keyed by (queryId, entryKey). All operations are safe
// under concurrent callers. Mutations to a single query serialize on a
// per-query lock; distinct queries do not block each other.
type Store struct {
	reactionName string

	mu      sync.RWMutex
	queries map[string]*queryState

	emitMu sync.Mutex
	events chan Event
	closed bool
}

type queryState struct {
	mu      sync.RWMutex
	meta    QueryMetadata
	entries map[string]*Entry
}

// New creates an empty store. The reaction name becomes the authority
// segment of every resource URI the store hands out.
func New(reactionName string) *Store {
	return &Store{
		reactionName: reactionName,
		queries:      make(map[string]*queryState),
		events:       make(chan Event, eventBufferSize),
	}
}

// ReactionName returns the authority segment used in resource URIs.
func (s *Store) ReactionName() string {
	return s.reactionName
}

// Events returns the change signal channel. The channel is closed by Close.
// Signals for the same URI are delivered in mutation order.
func (s *Store) Events() <-chan Event {
	return s.events
}

// Close closes the change signal channel. No mutations may be issued after
// Close.
func (s *Store) Close() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// InitializeQuery registers the metadata for a query. Idempotent: a second
// call with the same queryID replaces the metadata and leaves entries alone.
func (s *Store) InitializeQuery(meta QueryMetadata) {
	if meta.InitializedAt.IsZero() {
		meta.InitializedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if qs, ok := s.queries[meta.QueryID]; ok {
		qs.mu.Lock()
		qs.meta = meta
		qs.mu.Unlock()
		logging.Debug("Store", "Replaced metadata for query %s", meta.QueryID)
		return
	}
	s.queries[meta.QueryID] = &queryState{
		meta:    meta,
		entries: make(map[string]*Entry),
	}
	logging.Debug("Store", "Registered query %s (keyField=%s)", meta.QueryID, meta.KeyField)
}

// HasQuery reports whether metadata exists for the query.
func (s *Store) HasQuery(queryID string) bool {
	return s.queryState(queryID) != nil
}

// UpsertEntry creates or replaces the entry for (queryID, entryKey). Entries
// are replaced wholesale, never mutated in place, so readers holding a
// previously returned payload are unaffected. Emits a resource change signal
// and, when the entry is new, a list change on the query URI.
func (s *Store) UpsertEntry(queryID, entryKey string, data map[string]interface{}) (Outcome, error) {
	qs := s.queryState(queryID)
	if qs == nil {
		return OutcomeNotFound, &UnknownQueryError{QueryID: queryID}
	}
	uri := EntryURI(s.reactionName, queryID, entryKey)

	qs.mu.Lock()
	defer qs.mu.Unlock()
	_, exists := qs.entries[entryKey]
	qs.entries[entryKey] = &Entry{
		QueryID:     queryID,
		EntryKey:    entryKey,
		Data:        data,
		LastUpdated: time.Now(),
	}

	if exists {
		s.emit(Event{Resource: &ResourceChange{URI: uri, Kind: ChangeUpdated}})
		return OutcomeUpdated, nil
	}
	s.emit(Event{Resource: &ResourceChange{URI: uri, Kind: ChangeCreated}})
	s.emit(Event{List: &ListChange{
		QueryURI:  QueryURI(s.reactionName, queryID),
		AddedURIs: []string{uri},
	}})
	return OutcomeCreated, nil
}

// DeleteEntry removes the entry for (queryID, entryKey). Deleting an entry
// that does not exist is not an error and emits nothing.
func (s *Store) DeleteEntry(queryID, entryKey string) (Outcome, error) {
	qs := s.queryState(queryID)
	if qs == nil {
		return OutcomeNotFound, &UnknownQueryError{QueryID: queryID}
	}
	uri := EntryURI(s.reactionName, queryID, entryKey)

	qs.mu.Lock()
	defer qs.mu.Unlock()
	if _, exists := qs.entries[entryKey]; !exists {
		return OutcomeNotFound, nil
	}
	delete(qs.entries, entryKey)

	s.emit(Event{Resource: &ResourceChange{URI: uri, Kind: ChangeDeleted}})
	s.emit(Event{List: &ListChange{
		QueryURI:    QueryURI(s.reactionName, queryID),
		RemovedURIs: []string{uri},
	}})
	return OutcomeDeleted, nil
}

// GetEntry returns the entry for (queryID, entryKey). Entries are never
// mutated in place, so the returned pointer stays consistent for readers
// holding it across later upserts.
func (s *Store) GetEntry(queryID, entryKey string) (*Entry, error) {
	qs := s.queryState(queryID)
	if qs == nil {
		return nil, &UnknownQueryError{QueryID: queryID}
	}
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	entry, ok := qs.entries[entryKey]
	if !ok {
		return nil, &EntryNotFoundError{URI: EntryURI(s.reactionName, queryID, entryKey)}
	}
	return entry, nil
}

// GetQueryMetadata returns the metadata for a query.
func (s *Store) GetQueryMetadata(queryID string) (QueryMetadata, bool) {
	qs := s.queryState(queryID)
	if qs == nil {
		return QueryMetadata{}, false
	}
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	return qs.meta, true
}

// GetResourceByURI resolves a URI against the store. Query-collection URIs
// resolve to a QueryResource listing the entry URIs; entry URIs resolve to
// the entry payload with the query's content type.
func (s *Store) GetResourceByURI(raw string) (*Resource, error) {
	parsed, err := ParseURI(raw)
	if err != nil {
		return nil, err
	}
	if parsed.ReactionName != s.reactionName {
		return nil, &InvalidURIError{URI: raw, Reason: "unknown reaction name"}
	}

	qs := s.queryState(parsed.QueryID)
	if qs == nil {
		return nil, &UnknownQueryError{QueryID: parsed.QueryID}
	}

	qs.mu.RLock()
	defer qs.mu.RUnlock()

	if !parsed.IsEntry() {
		return &Resource{
			URI:         parsed.String(),
			ContentType: "application/json",
			Query: &QueryResource{
				QueryID:     parsed.QueryID,
				Description: qs.meta.Description,
				EntryCount:  len(qs.entries),
				Entries:     s.entryURIsLocked(qs),
			},
		}, nil
	}

	entry, ok := qs.entries[parsed.EntryKey]
	if !ok {
		return nil, &EntryNotFoundError{URI: raw}
	}
	return &Resource{
		URI:         parsed.String(),
		ContentType: qs.meta.ContentType,
		Entry:       entry,
	}, nil
}

// ListQueries returns the metadata of every registered query, ordered by
// queryID.
func (s *Store) ListQueries() []QueryMetadata {
	s.mu.RLock()
	states := make([]*queryState, 0, len(s.queries))
	for _, qs := range s.queries {
		states = append(states, qs)
	}
	s.mu.RUnlock()

	queries := make([]QueryMetadata, 0, len(states))
	for _, qs := range states {
		qs.mu.RLock()
		queries = append(queries, qs.meta)
		qs.mu.RUnlock()
	}
	sort.Slice(queries, func(i, j int) bool {
		return queries[i].QueryID < queries[j].QueryID
	})
	return queries
}

// ListQueryEntries returns the entry URIs of a query, ordered by entry key.
func (s *Store) ListQueryEntries(queryID string) ([]string, error) {
	qs := s.queryState(queryID)
	if qs == nil {
		return nil, &UnknownQueryError{QueryID: queryID}
	}
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	return s.entryURIsLocked(qs), nil
}

// ListQueryRows returns the payloads of a query's entries, ordered by entry
// key. Used by the tool handlers to enumerate live results.
func (s *Store) ListQueryRows(queryID string) ([]map[string]interface{}, error) {
	qs := s.queryState(queryID)
	if qs == nil {
		return nil, &UnknownQueryError{QueryID: queryID}
	}
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	keys := make([]string, 0, len(qs.entries))
	for key := range qs.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, qs.entries[key].Data)
	}
	return rows, nil
}

// entryURIsLocked builds the sorted entry URI list. Callers hold qs.mu.
func (s *Store) entryURIsLocked(qs *queryState) []string {
	keys := make([]string, 0, len(qs.entries))
	for key := range qs.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	uris := make([]string, 0, len(keys))
	for _, key := range keys {
		uris = append(uris, EntryURI(s.reactionName, qs.meta.QueryID, key))
	}
	return uris
}

func (s *Store) queryState(queryID string) *queryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries[queryID]
}

// emit publishes a change signal. Callers hold the per-query lock, which
// keeps per-URI signal order aligned with mutation order. The send never
// blocks: when the buffer is full the signal is dropped with a warning, and
// redelivery by the change-stream transport is the recovery path.
func (s *Store) emit(ev Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		logging.Warn("Store", "Change signal buffer full, dropping signal")
	}
}
