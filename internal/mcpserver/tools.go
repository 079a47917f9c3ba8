package mcpserver

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"drasimcp/internal/config"
	"drasimcp/internal/store"
	"drasimcp/pkg/logging"
)

const (
	toolNamePrefix = "get_"
	toolNameSuffix = "_results"
)

type callToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type toolResultPayload struct {
	QueryID     string                   `json:"queryId"`
	Description string                   `json:"description"`
	ResultCount int                      `json:"resultCount"`
	TotalCount  int                      `json:"totalCount"`
	Results     []map[string]interface{} `json:"results"`
}

// toolName derives the tool exposed for a query.
func toolName(queryID string) string {
	return toolNamePrefix + queryID + toolNameSuffix
}

// handleToolsList returns one result tool per configured query.
func (d *Dispatcher) handleToolsList(req *Request) *Response {
	tools := make([]mcp.Tool, 0, len(d.queries))
	for _, q := range d.queries {
		tools = append(tools, mcp.Tool{
			Name: toolName(q.QueryID),
			Description: fmt.Sprintf(
				"Get the live results of continuous query %s. Supports an optional result limit and a field equality filter.",
				q.QueryID),
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"minimum":     1,
						"description": "Maximum number of results to return",
					},
					"filter": map[string]interface{}{
						"type":        "object",
						"description": "Field/value pairs a result must equal, compared case-insensitively",
					},
				},
			},
		})
	}
	return NewResponse(req.ID, &mcp.ListToolsResult{Tools: tools})
}

func (d *Dispatcher) handleToolsCall(req *Request) *Response {
	var params callToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
	}

	query, ok := d.queryForTool(params.Name)
	if !ok {
		return NewErrorResponse(req.ID, CodeInvalidParams, "Unknown tool: "+params.Name)
	}

	limit, err := parseLimit(params.Arguments["limit"])
	if err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
	}
	filter, err := parseFilter(params.Arguments["filter"])
	if err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
	}

	rows, err := d.store.ListQueryRows(query.QueryID)
	if err != nil {
		logging.Error("MCPServer", err, "Tool %s could not enumerate query %s", params.Name, query.QueryID)
		return NewErrorResponse(req.ID, CodeInternalError, "Internal error")
	}

	totalCount := len(rows)
	results := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		if matchesFilter(row, filter) {
			results = append(results, row)
		}
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	payload := toolResultPayload{
		QueryID:     query.QueryID,
		Description: query.Description,
		ResultCount: len(results),
		TotalCount:  totalCount,
		Results:     results,
	}
	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		logging.Error("MCPServer", err, "Tool %s could not render results", params.Name)
		return NewErrorResponse(req.ID, CodeInternalError, "Internal error")
	}
	return NewResponse(req.ID, mcp.NewToolResultText(string(text)))
}

// queryForTool resolves a tool name back to its configured query.
func (d *Dispatcher) queryForTool(name string) (config.QueryConfig, bool) {
	if !strings.HasPrefix(name, toolNamePrefix) || !strings.HasSuffix(name, toolNameSuffix) {
		return config.QueryConfig{}, false
	}
	queryID := strings.TrimSuffix(strings.TrimPrefix(name, toolNamePrefix), toolNameSuffix)
	query, ok := d.queriesByID[queryID]
	return query, ok
}

// parseLimit reads the optional limit argument. Zero means no limit.
func parseLimit(value interface{}) (int, error) {
	if value == nil {
		return 0, nil
	}
	var limit int
	switch n := value.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("limit must be an integer, got %v", n)
		}
		limit = int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("limit must be an integer, got %v", n)
		}
		limit = int(i)
	case int:
		limit = n
	default:
		return 0, fmt.Errorf("limit must be an integer, got %T", value)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be at least 1, got %d", limit)
	}
	return limit, nil
}

// parseFilter reads the optional filter argument.
func parseFilter(value interface{}) (map[string]interface{}, error) {
	if value == nil {
		return nil, nil
	}
	filter, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("filter must be an object, got %T", value)
	}
	return filter, nil
}

// matchesFilter reports whether every filter field equals the row's
// field, compared case-insensitively on the stringified values.
func matchesFilter(row, filter map[string]interface{}) bool {
	for field, want := range filter {
		if !strings.EqualFold(store.Stringify(want), store.Stringify(row[field])) {
			return false
		}
	}
	return true
}
