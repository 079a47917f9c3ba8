package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test-client","version":"1.0.0"}}}`

func newTestServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()
	dispatcher, _ := newTestDispatcher(t)
	registry := newTestRegistry(t, RegistryConfig{})
	srv := NewServer(0, dispatcher, registry, "mcp-server-e2e", "1.2.3")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, registry
}

func postRPC(t *testing.T, ts *httptest.Server, sessionID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// decodeSSEResponse extracts the JSON-RPC reply from an SSE-framed body.
func decodeSSEResponse(t *testing.T, resp *http.Response) *Response {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(raw)
	require.Contains(t, text, "event: message\n")

	var payload string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "data: ") {
			payload = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, payload, "no data line in SSE body: %q", text)

	var out Response
	require.NoError(t, json.Unmarshal([]byte(payload), &out))
	return &out
}

func initializeSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := postRPC(t, ts, "", initializeBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessionID := resp.Header.Get(sessionHeader)
	require.NotEmpty(t, sessionID)
	rpcResp := decodeSSEResponse(t, resp)
	require.Nil(t, rpcResp.Error)
	return sessionID
}

func handshake(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	sessionID := initializeSession(t, ts)
	resp := postRPC(t, ts, sessionID, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	return sessionID
}

func TestServer_InitializeCreatesSession(t *testing.T) {
	ts, registry := newTestServer(t)

	resp := postRPC(t, ts, "", initializeBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.NotEmpty(t, resp.Header.Get(sessionHeader))

	rpcResp := decodeSSEResponse(t, resp)
	require.Nil(t, rpcResp.Error)
	result, ok := rpcResp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "mcp-server-e2e", serverInfo["name"])
	assert.Equal(t, "1.2.3", serverInfo["version"])

	assert.Equal(t, 1, registry.Count())
}

func TestServer_FullHandshakeAndSubscribe(t *testing.T) {
	ts, registry := newTestServer(t)
	sessionID := handshake(t, ts)

	resp := postRPC(t, ts, sessionID,
		`{"jsonrpc":"2.0","id":2,"method":"resources/subscribe","params":{"uri":"drasi://mcp-server-e2e/queries/customer-data"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rpcResp := decodeSSEResponse(t, resp)
	require.Nil(t, rpcResp.Error)

	session, err := registry.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, session.State())
	assert.True(t, session.IsSubscribed("drasi://mcp-server-e2e/queries/customer-data"))
}

func TestServer_RequestWithoutSessionRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postRPC(t, ts, "", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	rpcResp := decodeSSEResponse(t, resp)
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, CodeInvalidRequest, rpcResp.Error.Code)
	assert.Contains(t, rpcResp.Error.Message, sessionHeader)
}

func TestServer_UnknownSessionIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postRPC(t, ts, "does-not-exist", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_OverlongSessionIDIs400(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postRPC(t, ts, strings.Repeat("x", MaxSessionIDLength+1), `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ParseError(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postRPC(t, ts, "", `{"jsonrpc": not json`)
	rpcResp := decodeSSEResponse(t, resp)
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, CodeParseError, rpcResp.Error.Code)
}

func TestServer_BatchRequestsRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postRPC(t, ts, "", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`)
	rpcResp := decodeSSEResponse(t, resp)
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, CodeInvalidRequest, rpcResp.Error.Code)
	assert.Contains(t, rpcResp.Error.Message, "batch requests are not supported")
}

func TestServer_DeleteSession(t *testing.T) {
	ts, registry := newTestServer(t)
	sessionID := initializeSession(t, ts)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set(sessionHeader, sessionID)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, registry.Count())

	// The session is gone for every subsequent request.
	resp, err = ts.Client().Do(req.Clone(context.Background()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	postResp := postRPC(t, ts, sessionID, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusNotFound, postResp.StatusCode)
}

func TestServer_DeleteWithoutSessionRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestServer_Info(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "mcp-server-e2e", info["name"])
	assert.Equal(t, ProtocolVersion, info["protocol"])
	endpoints, ok := info["endpoints"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/mcp", endpoints["mcp"])
}

func TestServer_UnknownPathIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/mcp", strings.NewReader("{}"))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_StreamDeliversNotifications(t *testing.T) {
	ts, registry := newTestServer(t)
	sessionID := handshake(t, ts)

	// Queue a notification before opening the stream so the handler
	// finds it immediately.
	session, err := registry.GetSession(sessionID)
	require.NoError(t, err)
	require.True(t, session.EnqueueNotification(NewNotification(methodResourceListChanged, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set(sessionHeader, sessionID)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			break
		}
	}

	var notification Notification
	require.NoError(t, json.Unmarshal([]byte(data), &notification))
	assert.Equal(t, methodResourceListChanged, notification.Method)
}

func TestServer_StreamRequiresSession(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/mcp")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set(sessionHeader, "does-not-exist")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
