// Package mcpserver hosts the MCP endpoint of the reaction.
//
// It serves JSON-RPC 2.0 over POST /mcp with every reply framed as a
// Server-Sent Events message, a long-lived notification stream on
// GET /mcp, and session teardown on DELETE /mcp. Resources expose the
// materialized query results by URI, tools return filtered live result
// sets, and a notifier goroutine fans store change signals out to
// subscribed sessions.
//
// Sessions are identified by the Mcp-Session-Id header and walk the
// handshake connecting -> initializing -> ready. Only ready sessions
// hold subscriptions or receive notifications. An idle sweep reaps
// sessions that stop talking.
package mcpserver
