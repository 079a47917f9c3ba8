// Package app assembles and runs the reaction.
//
// The application follows a two-phase initialization pattern:
//
//  1. Bootstrap phase: initialize logging, load the reaction
//     configuration, and wire every component (store, sync points,
//     Drasi clients, both HTTP listeners, notifier, drift watcher).
//  2. Execution phase: start the change-event listener, bootstrap all
//     configured queries from their current views, then open the MCP
//     listener and serve until the context is cancelled.
//
// Startup ordering is deliberate. The change-event listener accepts
// envelopes before the bootstrap finishes so the delivery pipe fills
// early; envelopes for queries that are still bootstrapping are
// answered with 503 and redelivered by the transport. The MCP listener
// only starts after every query is initialized, so a client can never
// observe a partially loaded result set.
package app
