// Package console implements the interactive MCP debug console. It
// connects to a running reaction's MCP endpoint as a streamable HTTP
// client and offers a readline loop for exploring resources, reading
// entries, calling the per-query result tools, and watching update
// notifications arrive.
package console
