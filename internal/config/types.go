package config

// Default values applied before the config file and environment
// overrides are read.
const (
	DefaultReactionName   = "mcp-server"
	DefaultAppPort        = 80
	DefaultMCPServerPort  = 8080
	DefaultManagementURL  = "http://drasi-api"
	DefaultViewServiceURL = "http://drasi-view-svc"

	// DefaultContentType is assumed for query entries whose
	// configuration does not name a resourceContentType.
	DefaultContentType = "application/json"

	// DefaultQueryDirName is the directory next to config.yaml that
	// holds one YAML document per continuous query.
	DefaultQueryDirName = "queries"
)

// ReactionConfig is the process-level configuration of the reaction.
// It is loaded once at startup and never mutated afterwards.
type ReactionConfig struct {
	// ReactionName identifies this reaction instance. It becomes the
	// authority component of every resource URI the reaction exposes.
	ReactionName string `yaml:"reactionName,omitempty" json:"reactionName,omitempty"`

	// AppPort is the listener port for inbound change events.
	AppPort int `yaml:"appPort,omitempty" json:"appPort,omitempty"`

	// MCPServerPort is the listener port for the MCP endpoint.
	MCPServerPort int `yaml:"mcpServerPort,omitempty" json:"mcpServerPort,omitempty"`

	// ManagementURL is the base URL of the query management API used
	// to wait for query readiness during bootstrap.
	ManagementURL string `yaml:"managementUrl,omitempty" json:"managementUrl,omitempty"`

	// ViewServiceURL is the base URL of the view service that serves
	// the current result set of a query.
	ViewServiceURL string `yaml:"viewServiceUrl,omitempty" json:"viewServiceUrl,omitempty"`

	// QueryConfigDir overrides the directory holding per-query YAML
	// files. Relative paths are resolved against the config directory.
	QueryConfigDir string `yaml:"queryConfigDir,omitempty" json:"queryConfigDir,omitempty"`

	// Queries may be declared inline in config.yaml. Entries loaded
	// from the query directory are appended to this list.
	Queries []QueryConfig `yaml:"queries,omitempty" json:"queries,omitempty"`
}

// QueryConfig describes one continuous query the reaction subscribes
// to. Instances are immutable for the lifetime of the process.
//
// JSON tags double as the YAML field names for per-file documents,
// which are parsed with sigs.k8s.io/yaml.
type QueryConfig struct {
	// QueryID is the identifier of the continuous query. For per-file
	// documents it defaults to the file name without extension.
	QueryID string `yaml:"queryId" json:"queryId"`

	// KeyField names the result field whose value identifies an entry
	// within the query's result set.
	KeyField string `yaml:"keyField" json:"keyField"`

	// ResourceContentType is the MIME type reported for entry
	// resources. Defaults to application/json.
	ResourceContentType string `yaml:"resourceContentType,omitempty" json:"resourceContentType,omitempty"`

	// Description is a human-readable description of the query. It may
	// use Go template syntax with sprig functions and is rendered once
	// at load time.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// GetDefaultConfig returns a ReactionConfig populated with defaults
// and no queries.
func GetDefaultConfig() ReactionConfig {
	return ReactionConfig{
		ReactionName:   DefaultReactionName,
		AppPort:        DefaultAppPort,
		MCPServerPort:  DefaultMCPServerPort,
		ManagementURL:  DefaultManagementURL,
		ViewServiceURL: DefaultViewServiceURL,
	}
}
