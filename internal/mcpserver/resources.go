package mcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"drasimcp/internal/store"
	"drasimcp/pkg/logging"
)

// unknownResourceMessage is the error message for any URI that does
// not resolve to a known query or entry.
const unknownResourceMessage = "Unknown resource URI"

type uriParams struct {
	URI string `json:"uri"`
}

// handleResourcesList returns one resource per configured query. Entry
// resources are not enumerated here; clients discover them through the
// query resource or the entry URI template.
func (d *Dispatcher) handleResourcesList(req *Request) *Response {
	resources := make([]mcp.Resource, 0, len(d.queries))
	for _, q := range d.queries {
		resources = append(resources, mcp.Resource{
			URI:         store.QueryURI(d.store.ReactionName(), q.QueryID),
			Name:        q.QueryID,
			Description: q.Description,
			MIMEType:    "application/json",
		})
	}
	return NewResponse(req.ID, &mcp.ListResourcesResult{Resources: resources})
}

// handleResourceTemplatesList returns the single template for entry
// URIs.
func (d *Dispatcher) handleResourceTemplatesList(req *Request) *Response {
	template := mcp.NewResourceTemplate(
		fmt.Sprintf("%s://%s/entries/{queryId}/{entryKey}", store.Scheme, d.store.ReactionName()),
		"Query result entry",
		mcp.WithTemplateDescription("A single result entry of a continuous query, addressed by its entry key."),
		mcp.WithTemplateMIMEType("application/json"),
	)
	return NewResponse(req.ID, &mcp.ListResourceTemplatesResult{
		ResourceTemplates: []mcp.ResourceTemplate{template},
	})
}

func (d *Dispatcher) handleResourcesRead(req *Request) *Response {
	var params uriParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
	}

	resource, err := d.store.GetResourceByURI(params.URI)
	if err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, unknownResourceMessage)
	}

	var text []byte
	switch {
	case resource.Query != nil:
		text, err = json.Marshal(resource.Query)
	case resource.Entry != nil:
		text, err = json.Marshal(resource.Entry.Data)
	default:
		err = fmt.Errorf("resource %s resolved to neither query nor entry", resource.URI)
	}
	if err != nil {
		logging.Error("MCPServer", err, "Failed to render resource %s", params.URI)
		return NewErrorResponse(req.ID, CodeInternalError, "Internal error")
	}

	return NewResponse(req.ID, &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      resource.URI,
				MIMEType: resource.ContentType,
				Text:     string(text),
			},
		},
	})
}

func (d *Dispatcher) handleResourcesSubscribe(session *Session, req *Request) *Response {
	var params uriParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
	}
	uri, ok := d.canonicalSubscriptionURI(params.URI)
	if !ok {
		return NewErrorResponse(req.ID, CodeInvalidParams, unknownResourceMessage)
	}
	if err := session.Subscribe(uri); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidRequest, "Invalid Request: "+err.Error())
	}
	logging.Debug("MCPServer", "Session %s subscribed to %s", logging.TruncateSessionID(session.ID), uri)
	return NewResponse(req.ID, struct{}{})
}

func (d *Dispatcher) handleResourcesUnsubscribe(session *Session, req *Request) *Response {
	var params uriParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
	}
	if uri, ok := d.canonicalSubscriptionURI(params.URI); ok {
		session.Unsubscribe(uri)
	}
	session.Unsubscribe(params.URI)
	logging.Debug("MCPServer", "Session %s unsubscribed from %s", logging.TruncateSessionID(session.ID), params.URI)
	return NewResponse(req.ID, struct{}{})
}

// canonicalSubscriptionURI validates a subscription target and returns
// it in the escaped form the store emits signals under, so fan-out
// matching is exact. The URI must belong to this reaction and name a
// configured query; the entry itself does not have to exist yet, so
// subscribing ahead of creation is allowed.
func (d *Dispatcher) canonicalSubscriptionURI(raw string) (string, bool) {
	parsed, err := store.ParseURI(raw)
	if err != nil {
		return "", false
	}
	if parsed.ReactionName != d.store.ReactionName() {
		return "", false
	}
	if _, ok := d.queriesByID[parsed.QueryID]; !ok {
		return "", false
	}
	return parsed.String(), true
}
