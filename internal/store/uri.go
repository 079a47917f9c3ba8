package store

import (
	"fmt"
	"net/url"
	"strings"
)

// Scheme is the URI scheme for all resources served by the reaction.
const Scheme = "drasi"

const (
	queriesSegment = "queries"
	entriesSegment = "entries"
)

// URI identifies a resource exposed by the reaction. A URI either names a
// query collection (drasi://{reactionName}/queries/{queryId}) or a single
// entry (drasi://{reactionName}/entries/{queryId}/{entryKey}).
type URI struct {
	ReactionName string
	QueryID      string
	EntryKey     string // empty for query-collection URIs
	isEntry      bool
}

// QueryURI formats the collection URI for a query.
func QueryURI(reactionName, queryID string) string {
	return fmt.Sprintf("%s://%s/%s/%s", Scheme, reactionName, queriesSegment, url.PathEscape(queryID))
}

// EntryURI formats the URI for a single entry. The entry key segment is
// URL-escaped so that keys containing slashes survive the round trip.
func EntryURI(reactionName, queryID, entryKey string) string {
	return fmt.Sprintf("%s://%s/%s/%s/%s", Scheme, reactionName, entriesSegment,
		url.PathEscape(queryID), url.PathEscape(entryKey))
}

// ParseURI parses a resource URI into its parts. Entry keys are returned
// unescaped. Keys that were sent with raw (unescaped) slashes are accepted
// leniently: the remaining path segments are joined back together.
func ParseURI(raw string) (*URI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &InvalidURIError{URI: raw, Reason: err.Error()}
	}
	if u.Scheme != Scheme {
		return nil, &InvalidURIError{URI: raw, Reason: fmt.Sprintf("scheme must be %q", Scheme)}
	}
	if u.Host == "" {
		return nil, &InvalidURIError{URI: raw, Reason: "missing reaction name"}
	}

	segments := strings.Split(strings.TrimPrefix(u.EscapedPath(), "/"), "/")
	switch {
	case len(segments) == 2 && segments[0] == queriesSegment:
		queryID, err := url.PathUnescape(segments[1])
		if err != nil || queryID == "" {
			return nil, &InvalidURIError{URI: raw, Reason: "invalid query id segment"}
		}
		return &URI{ReactionName: u.Host, QueryID: queryID}, nil

	case len(segments) >= 3 && segments[0] == entriesSegment:
		queryID, err := url.PathUnescape(segments[1])
		if err != nil || queryID == "" {
			return nil, &InvalidURIError{URI: raw, Reason: "invalid query id segment"}
		}
		parts := make([]string, 0, len(segments)-2)
		for _, seg := range segments[2:] {
			part, err := url.PathUnescape(seg)
			if err != nil {
				return nil, &InvalidURIError{URI: raw, Reason: "invalid entry key segment"}
			}
			parts = append(parts, part)
		}
		entryKey := strings.Join(parts, "/")
		if entryKey == "" {
			return nil, &InvalidURIError{URI: raw, Reason: "empty entry key"}
		}
		return &URI{ReactionName: u.Host, QueryID: queryID, EntryKey: entryKey, isEntry: true}, nil

	default:
		return nil, &InvalidURIError{URI: raw, Reason: "path must be /queries/{queryId} or /entries/{queryId}/{entryKey}"}
	}
}

// IsEntry reports whether the URI names a single entry rather than a query
// collection.
func (u *URI) IsEntry() bool {
	return u.isEntry
}

// String formats the URI back to its canonical escaped form.
func (u *URI) String() string {
	if u.isEntry {
		return EntryURI(u.ReactionName, u.QueryID, u.EntryKey)
	}
	return QueryURI(u.ReactionName, u.QueryID)
}
