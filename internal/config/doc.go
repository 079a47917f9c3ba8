// Package config loads and validates the reaction configuration.
//
// Configuration comes from a single directory: a config.yaml with
// process-level settings (reaction name, ports, collaborator URLs) and
// a queries/ subdirectory holding one YAML document per continuous
// query. Loading is defaults-first, environment variables override the
// file, and the assembled configuration is validated before the
// reaction starts. All of it is immutable for the process lifetime; a
// DriftWatcher warns when files change on disk after startup.
package config
