package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"drasimcp/pkg/logging"

	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"
)

const (
	configFileName = "config.yaml"

	// DefaultConfigPath is where a containerised deployment mounts the
	// reaction configuration.
	DefaultConfigPath = "/etc/drasimcp"
)

// GetDefaultConfigPath returns the configuration directory to use when
// no --config-path flag is given. DRASIMCP_CONFIG_PATH overrides the
// built-in default.
func GetDefaultConfigPath() string {
	if path := os.Getenv("DRASIMCP_CONFIG_PATH"); path != "" {
		return path
	}
	return DefaultConfigPath
}

// LoadConfig loads the reaction configuration from a single directory.
// The directory may contain config.yaml and a queries/ subdirectory
// with one YAML document per continuous query.
//
// Loading is defaults-first: a missing config.yaml leaves the defaults
// in place, a malformed one is an error. Environment overrides are
// applied after the file, then the query directory is read, query
// descriptions are rendered, and the result is validated. Any
// validation failure is fatal to startup.
func LoadConfig(configPath string) (ReactionConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
			return ReactionConfig{}, &LoadError{Path: configFilePath, Err: err}
		}
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	} else {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return ReactionConfig{}, &LoadError{Path: configFilePath, Err: err}
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	if err := applyEnvOverrides(&config); err != nil {
		return ReactionConfig{}, err
	}

	queryDir := ResolveQueryDir(configPath, config.QueryConfigDir)
	fileQueries, err := loadQueryDir(queryDir)
	if err != nil {
		return ReactionConfig{}, err
	}
	config.Queries = append(config.Queries, fileQueries...)

	for i := range config.Queries {
		if config.Queries[i].ResourceContentType == "" {
			config.Queries[i].ResourceContentType = DefaultContentType
		}
		rendered, err := renderDescription(config.Queries[i])
		if err != nil {
			return ReactionConfig{}, err
		}
		config.Queries[i].Description = rendered
	}

	if err := Validate(config); err != nil {
		return ReactionConfig{}, err
	}

	logging.Info("ConfigLoader", "Configured %d queries for reaction %s", len(config.Queries), config.ReactionName)
	return config, nil
}

// applyEnvOverrides overlays process-level settings from the
// environment. Variables take precedence over config.yaml.
func applyEnvOverrides(config *ReactionConfig) error {
	if v := os.Getenv("REACTION_NAME"); v != "" {
		config.ReactionName = v
	}
	if v := os.Getenv("MANAGEMENT_URL"); v != "" {
		config.ManagementURL = v
	}
	if v := os.Getenv("VIEW_SERVICE_URL"); v != "" {
		config.ViewServiceURL = v
	}
	if v := os.Getenv("QUERY_CONFIG_DIR"); v != "" {
		config.QueryConfigDir = v
	}
	if v := os.Getenv("APP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return ValidationError{Field: "APP_PORT", Value: v, Message: "must be an integer"}
		}
		config.AppPort = port
	}
	if v := os.Getenv("MCP_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return ValidationError{Field: "MCP_SERVER_PORT", Value: v, Message: "must be an integer"}
		}
		config.MCPServerPort = port
	}
	return nil
}

// ResolveQueryDir determines the per-query configuration directory.
// Relative overrides are resolved against the config directory.
func ResolveQueryDir(configPath, override string) string {
	if override == "" {
		return filepath.Join(configPath, DefaultQueryDirName)
	}
	if filepath.IsAbs(override) {
		return override
	}
	return filepath.Join(configPath, override)
}

// loadQueryDir reads every YAML file in dir as one QueryConfig. The
// query ID defaults to the file name without extension. A missing
// directory yields no queries; a malformed file is an error, because
// silently dropping a query would hide part of the result surface.
func loadQueryDir(dir string) ([]QueryConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "No query directory at %s", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("error reading query directory %s: %w", dir, err)
	}

	var queries []QueryConfig
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &QueryFileError{Path: path, Err: err}
		}

		var query QueryConfig
		if err := sigsyaml.Unmarshal(data, &query); err != nil {
			return nil, &QueryFileError{Path: path, Err: err}
		}
		if query.QueryID == "" {
			query.QueryID = nameFromFileName(entry.Name())
		}

		logging.Debug("ConfigLoader", "Loaded query %s from %s", query.QueryID, path)
		queries = append(queries, query)
	}
	return queries, nil
}

// Validate checks the assembled configuration. The reaction refuses to
// start on an empty query set, duplicate query IDs, missing key
// fields, or unusable ports.
func Validate(config ReactionConfig) error {
	var errs ValidationErrors

	if config.ReactionName == "" {
		errs.Add("reactionName", "must not be empty")
	}
	if config.AppPort < 1 || config.AppPort > 65535 {
		errs.Add("appPort", "must be between 1 and 65535", config.AppPort)
	}
	if config.MCPServerPort < 1 || config.MCPServerPort > 65535 {
		errs.Add("mcpServerPort", "must be between 1 and 65535", config.MCPServerPort)
	}
	if config.AppPort == config.MCPServerPort {
		errs.Add("mcpServerPort", "must differ from appPort", config.MCPServerPort)
	}
	if config.ManagementURL == "" {
		errs.Add("managementUrl", "must not be empty")
	}
	if config.ViewServiceURL == "" {
		errs.Add("viewServiceUrl", "must not be empty")
	}

	if len(config.Queries) == 0 {
		errs.Add("queries", "at least one query must be configured")
	}
	seen := make(map[string]bool, len(config.Queries))
	for _, query := range config.Queries {
		if query.QueryID == "" {
			errs.Add("queries.queryId", "must not be empty")
			continue
		}
		if seen[query.QueryID] {
			errs.Add("queries.queryId", "duplicate query ID", query.QueryID)
		}
		seen[query.QueryID] = true
		if query.KeyField == "" {
			errs.Add(fmt.Sprintf("queries.%s.keyField", query.QueryID), "must not be empty")
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// isYAMLFile checks if a filename has a YAML extension
func isYAMLFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// nameFromFileName extracts the query ID from a filename by removing
// the extension.
func nameFromFileName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
