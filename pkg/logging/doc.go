// Package logging provides the structured logging system for drasimcp with
// unified log handling and level filtering.
//
// This package is a thin wrapper over Go's standard slog package. Every
// component logs through it with a stable subsystem tag so that log output
// can be filtered and attributed:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	logging.Info("Bootstrap", "Query %s initialized at sequence %d", queryID, seq)
//	logging.Debug("Store", "Upserted entry %s", uri)
//	logging.Warn("Ingest", "Skipping row without key field %q", keyField)
//	logging.Error("MCP", err, "Failed to deliver notification")
//
// Level filtering happens in the handler: Debug output is only produced when
// the process was started with debug logging enabled.
package logging
