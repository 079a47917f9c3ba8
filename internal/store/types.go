package store

import (
	"encoding/json"
	"strconv"
	"time"
)

// QueryMetadata describes one materialized query. It is written once by the
// query initializer and read-only afterwards.
type QueryMetadata struct {
	QueryID       string
	KeyField      string
	Description   string
	ContentType   string
	InitializedAt time.Time
}

// Entry is one materialized result row, keyed by the value of the query's
// key field.
type Entry struct {
	QueryID     string
	EntryKey    string
	Data        map[string]interface{}
	LastUpdated time.Time
}

// Outcome reports the effect of a store mutation.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
	OutcomeDeleted
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// ChangeKind classifies a resource change signal.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeUpdated
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ResourceChange signals that the resource behind a URI changed.
type ResourceChange struct {
	URI  string
	Kind ChangeKind
}

// ListChange signals that the entry list of a query collection changed.
type ListChange struct {
	QueryURI    string
	AddedURIs   []string
	RemovedURIs []string
}

// Event carries one store change signal. Exactly one of the fields is set.
type Event struct {
	Resource *ResourceChange
	List     *ListChange
}

// QueryResource is the readable representation of a query-collection URI.
type QueryResource struct {
	QueryID     string   `json:"queryId"`
	Description string   `json:"description"`
	EntryCount  int      `json:"entryCount"`
	Entries     []string `json:"entries"`
}

// Resource is the result of resolving a URI against the store. Query is set
// for collection URIs, Entry for entry URIs.
type Resource struct {
	URI         string
	ContentType string
	Query       *QueryResource
	Entry       *Entry
}

// DeriveEntryKey extracts the entry key for a row: the string form of the
// row's key field value. Returns false when the field is absent, null, or
// stringifies to the empty string; such rows must be skipped by callers.
func DeriveEntryKey(row map[string]interface{}, keyField string) (string, bool) {
	value, present := row[keyField]
	if !present || value == nil {
		return "", false
	}
	key := stringify(value)
	if key == "" {
		return "", false
	}
	return key, true
}

// Stringify renders a row value in the same form entry keys use, so
// callers comparing against user-supplied strings match a numeric 42
// with "42".
func Stringify(value interface{}) string {
	return stringify(value)
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		// Composite values are rare as keys; their JSON form is stable enough.
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
