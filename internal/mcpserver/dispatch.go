package mcpserver

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"drasimcp/internal/config"
	"drasimcp/internal/store"
	"drasimcp/pkg/logging"
)

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

const (
	methodInitialize            = "initialize"
	methodPing                  = "ping"
	methodResourcesList         = "resources/list"
	methodResourceTemplatesList = "resources/templates/list"
	methodResourcesRead         = "resources/read"
	methodResourcesSubscribe    = "resources/subscribe"
	methodResourcesUnsubscribe  = "resources/unsubscribe"
	methodToolsList             = "tools/list"
	methodToolsCall             = "tools/call"
	methodPromptsList           = "prompts/list"

	notificationInitialized = "notifications/initialized"
)

// Dispatcher routes JSON-RPC requests to the store-backed handlers.
type Dispatcher struct {
	store         *store.Store
	queries       []config.QueryConfig
	queriesByID   map[string]config.QueryConfig
	serverName    string
	serverVersion string
}

// NewDispatcher builds a dispatcher over the configured queries. The
// query order in list results is stable: sorted by queryId.
func NewDispatcher(st *store.Store, queries []config.QueryConfig, serverName, serverVersion string) *Dispatcher {
	sorted := make([]config.QueryConfig, len(queries))
	copy(sorted, queries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].QueryID < sorted[j].QueryID
	})
	byID := make(map[string]config.QueryConfig, len(sorted))
	for _, q := range sorted {
		byID[q.QueryID] = q
	}
	return &Dispatcher{
		store:         st,
		queries:       sorted,
		queriesByID:   byID,
		serverName:    serverName,
		serverVersion: serverVersion,
	}
}

// Dispatch handles one JSON-RPC request on behalf of a session and
// returns the response, or nil for notifications. A panic inside a
// handler is reported as an internal error so the session survives.
func (d *Dispatcher) Dispatch(session *Session, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("MCPServer", fmt.Errorf("%v", r), "Recovered panic in %s handler", req.Method)
			resp = NewErrorResponse(req.ID, CodeInternalError, "Internal error")
		}
	}()

	if req.JSONRPC != Version {
		return NewErrorResponse(req.ID, CodeInvalidRequest, "Invalid Request: jsonrpc must be \"2.0\"")
	}

	if req.IsNotification() {
		d.handleNotification(session, req)
		return nil
	}

	switch req.Method {
	case methodInitialize:
		return d.handleInitialize(session, req)
	case methodPing:
		return NewResponse(req.ID, struct{}{})
	case methodResourcesList:
		return d.handleResourcesList(req)
	case methodResourceTemplatesList:
		return d.handleResourceTemplatesList(req)
	case methodResourcesRead:
		return d.handleResourcesRead(req)
	case methodResourcesSubscribe:
		return d.handleResourcesSubscribe(session, req)
	case methodResourcesUnsubscribe:
		return d.handleResourcesUnsubscribe(session, req)
	case methodToolsList:
		return d.handleToolsList(req)
	case methodToolsCall:
		return d.handleToolsCall(req)
	case methodPromptsList:
		return NewResponse(req.ID, &mcp.ListPromptsResult{Prompts: []mcp.Prompt{}})
	default:
		return NewErrorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method)
	}
}

// handleNotification processes client-to-server notifications. They
// never produce a response, even on failure.
func (d *Dispatcher) handleNotification(session *Session, req *Request) {
	switch req.Method {
	case notificationInitialized:
		if err := session.MarkReady(); err != nil {
			logging.Warn("MCPServer", "Session %s: %v", logging.TruncateSessionID(session.ID), err)
			return
		}
		logging.Debug("MCPServer", "Session %s is ready", logging.TruncateSessionID(session.ID))
	default:
		logging.Debug("MCPServer", "Ignoring notification %s", req.Method)
	}
}

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      mcp.Implementation `json:"clientInfo"`
}

type resourcesCapability struct {
	Subscribe   bool `json:"subscribe"`
	ListChanged bool `json:"listChanged"`
}

type serverCapabilities struct {
	Resources resourcesCapability `json:"resources"`
	Tools     struct{}            `json:"tools"`
	Prompts   struct{}            `json:"prompts"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
}

func (d *Dispatcher) handleInitialize(session *Session, req *Request) *Response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
		}
	}
	if err := session.BeginInitialize(params.ClientInfo.Name, params.ClientInfo.Version); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidRequest, "Invalid Request: "+err.Error())
	}
	logging.Info("MCPServer", "Session %s initializing (client %s %s, protocol %s)",
		logging.TruncateSessionID(session.ID), params.ClientInfo.Name, params.ClientInfo.Version, params.ProtocolVersion)

	return NewResponse(req.ID, &initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: serverCapabilities{
			Resources: resourcesCapability{Subscribe: true, ListChanged: true},
		},
		ServerInfo: mcp.Implementation{
			Name:    d.serverName,
			Version: d.serverVersion,
		},
	})
}
