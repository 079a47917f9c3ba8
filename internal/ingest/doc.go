// Package ingest receives change and control events from the query
// container's delivery transport and applies them to the resource
// store.
//
// Each change envelope carries a sequence number. The handler consults
// the query's synchronisation point to drop already-applied envelopes,
// applies added, updated and deleted rows in that order, and advances
// the sync point only after every mutation landed. Envelopes for one
// query are serialised; queries do not block each other. The HTTP
// layer translates outcomes for the transport: 2xx acknowledge, 4xx
// stop redelivering, 5xx redeliver later.
package ingest
