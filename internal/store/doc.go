// Package store owns the in-memory materialized view of all configured
// continuous queries.
//
// The store maps (queryId, entryKey) to the latest result row payload and
// keeps per-query metadata registered by the bootstrap. Mutations
// (UpsertEntry, DeleteEntry) and reads (GetEntry, GetResourceByURI,
// ListQueryEntries) are safe under concurrent callers: each query carries
// its own lock so that mutations to one query serialize while distinct
// queries proceed in parallel.
//
// Every mutation emits a change signal on the Events channel. The MCP
// server consumes these signals to fan out resource-update notifications to
// subscribed sessions. Signals for the same URI preserve mutation order.
//
// The package also defines the resource URI scheme:
//
//	drasi://{reactionName}/queries/{queryId}
//	drasi://{reactionName}/entries/{queryId}/{entryKey}
//
// Entry keys are URL-escaped in the entry segment, so keys containing
// slashes round-trip exactly.
package store
