package mcpserver

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drasimcp/internal/config"
	"drasimcp/internal/store"
)

func TestResourcesList(t *testing.T) {
	st := store.New("mcp-server-e2e")
	t.Cleanup(st.Close)
	d := NewDispatcher(st, []config.QueryConfig{
		{QueryID: "orders", KeyField: "order_id", Description: "Order feed"},
		{QueryID: "customer-data", KeyField: "customer_id", Description: "E2E test customer data"},
	}, "mcp-server-e2e", "1.0.0")

	result := rpcResult(t, d, readySession(t), methodResourcesList, nil)
	list, ok := result.(*mcp.ListResourcesResult)
	require.True(t, ok)
	require.Len(t, list.Resources, 2)

	// Sorted by queryId regardless of configuration order.
	assert.Equal(t, "drasi://mcp-server-e2e/queries/customer-data", list.Resources[0].URI)
	assert.Equal(t, "customer-data", list.Resources[0].Name)
	assert.Equal(t, "E2E test customer data", list.Resources[0].Description)
	assert.Equal(t, "application/json", list.Resources[0].MIMEType)
	assert.Equal(t, "drasi://mcp-server-e2e/queries/orders", list.Resources[1].URI)
}

func TestResourceTemplatesList(t *testing.T) {
	d, _ := newTestDispatcher(t)

	result := rpcResult(t, d, readySession(t), methodResourceTemplatesList, nil)
	list, ok := result.(*mcp.ListResourceTemplatesResult)
	require.True(t, ok)
	require.Len(t, list.ResourceTemplates, 1)
	assert.Equal(t, "Query result entry", list.ResourceTemplates[0].Name)

	encoded, err := json.Marshal(list)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "drasi://mcp-server-e2e/entries/{queryId}/{entryKey}")
}

func TestResourcesRead_QueryURI(t *testing.T) {
	d, _ := newTestDispatcher(t)

	result := rpcResult(t, d, readySession(t), methodResourcesRead, uriParams{
		URI: "drasi://mcp-server-e2e/queries/customer-data",
	})
	read, ok := result.(*mcp.ReadResourceResult)
	require.True(t, ok)
	require.Len(t, read.Contents, 1)

	contents, ok := read.Contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "drasi://mcp-server-e2e/queries/customer-data", contents.URI)
	assert.Equal(t, "application/json", contents.MIMEType)

	var summary store.QueryResource
	require.NoError(t, json.Unmarshal([]byte(contents.Text), &summary))
	assert.Equal(t, "customer-data", summary.QueryID)
	assert.Equal(t, "E2E test customer data", summary.Description)
	assert.Equal(t, 1, summary.EntryCount)
	assert.Equal(t, []string{"drasi://mcp-server-e2e/entries/customer-data/cust-1"}, summary.Entries)
}

func TestResourcesRead_EntryURI(t *testing.T) {
	d, _ := newTestDispatcher(t)

	result := rpcResult(t, d, readySession(t), methodResourcesRead, uriParams{
		URI: "drasi://mcp-server-e2e/entries/customer-data/cust-1",
	})
	read := result.(*mcp.ReadResourceResult)
	contents := read.Contents[0].(mcp.TextResourceContents)
	assert.Equal(t, "application/json", contents.MIMEType)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(contents.Text), &payload))
	assert.Equal(t, map[string]interface{}{
		"customer_id": "cust-1",
		"name":        "Ada",
		"email":       "ada@x",
	}, payload)
}

func TestResourcesRead_UnknownURIs(t *testing.T) {
	d, _ := newTestDispatcher(t)
	session := readySession(t)

	for _, uri := range []string{
		"drasi://mcp-server-e2e/entries/customer-data/no-such-entry",
		"drasi://mcp-server-e2e/queries/no-such-query",
		"drasi://other-reaction/queries/customer-data",
		"http://mcp-server-e2e/queries/customer-data",
		"not a uri at all",
	} {
		resp := rpc(t, d, session, methodResourcesRead, uriParams{URI: uri})
		require.NotNil(t, resp.Error, "uri %q must not resolve", uri)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code)
		assert.Equal(t, "Unknown resource URI", resp.Error.Message)
	}
}

func TestResourcesSubscribe(t *testing.T) {
	d, _ := newTestDispatcher(t)
	session := readySession(t)

	result := rpcResult(t, d, session, methodResourcesSubscribe, uriParams{
		URI: "drasi://mcp-server-e2e/queries/customer-data",
	})
	assert.Equal(t, struct{}{}, result)
	assert.True(t, session.IsSubscribed("drasi://mcp-server-e2e/queries/customer-data"))
}

func TestResourcesSubscribe_EntryAheadOfCreation(t *testing.T) {
	d, _ := newTestDispatcher(t)
	session := readySession(t)

	// cust-2 does not exist yet; the subscription is still accepted so
	// the creation itself can be observed.
	rpcResult(t, d, session, methodResourcesSubscribe, uriParams{
		URI: "drasi://mcp-server-e2e/entries/customer-data/cust-2",
	})
	assert.True(t, session.IsSubscribed("drasi://mcp-server-e2e/entries/customer-data/cust-2"))
}

func TestResourcesSubscribe_RequiresReady(t *testing.T) {
	d, _ := newTestDispatcher(t)
	session := newSession("s-1")

	resp := rpc(t, d, session, methodResourcesSubscribe, uriParams{
		URI: "drasi://mcp-server-e2e/queries/customer-data",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestResourcesSubscribe_UnknownURI(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := rpc(t, d, readySession(t), methodResourcesSubscribe, uriParams{
		URI: "drasi://mcp-server-e2e/queries/no-such-query",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Equal(t, "Unknown resource URI", resp.Error.Message)
}

func TestResourcesUnsubscribe(t *testing.T) {
	d, _ := newTestDispatcher(t)
	session := readySession(t)
	uri := "drasi://mcp-server-e2e/queries/customer-data"
	rpcResult(t, d, session, methodResourcesSubscribe, uriParams{URI: uri})

	result := rpcResult(t, d, session, methodResourcesUnsubscribe, uriParams{URI: uri})
	assert.Equal(t, struct{}{}, result)
	assert.False(t, session.IsSubscribed(uri))

	// Unsubscribing again, or a URI never subscribed, stays a success.
	rpcResult(t, d, session, methodResourcesUnsubscribe, uriParams{URI: uri})
	rpcResult(t, d, session, methodResourcesUnsubscribe, uriParams{URI: "drasi://elsewhere/queries/q"})
}
