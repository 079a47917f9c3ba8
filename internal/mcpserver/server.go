package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"drasimcp/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout bounds reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultIdleTimeout reaps idle keepalive connections. There is no
	// write timeout: GET /mcp streams stay open for the session's life.
	DefaultIdleTimeout = 120 * time.Second

	// keepAliveInterval paces SSE comment frames on notification
	// streams so intermediaries do not drop the connection as idle.
	keepAliveInterval = 30 * time.Second

	// maxRequestBytes caps one JSON-RPC request body.
	maxRequestBytes = 4 << 20

	// sessionHeader carries the session ID on every request after
	// initialize.
	sessionHeader = "Mcp-Session-Id"
)

// Server hosts the MCP endpoint: JSON-RPC over POST /mcp with
// SSE-framed replies, a long-lived notification stream on GET /mcp,
// and session teardown on DELETE /mcp.
type Server struct {
	dispatcher    *Dispatcher
	registry      *Registry
	serverName    string
	serverVersion string
	httpServer    *http.Server
}

// NewServer creates the MCP listener on the given port.
func NewServer(port int, dispatcher *Dispatcher, registry *Registry, serverName, serverVersion string) *Server {
	s := &Server{
		dispatcher:    dispatcher,
		registry:      registry,
		serverName:    serverName,
		serverVersion: serverVersion,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleInfo)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	return s
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	logging.Info("MCPServer", "MCP endpoint starting on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the listener and closes every session,
// which ends their notification streams.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.registry.Stop()
	return err
}

// Handler exposes the HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleInfo describes the server on GET /.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	info := map[string]interface{}{
		"name":        s.serverName,
		"version":     s.serverVersion,
		"description": "MCP endpoint serving live continuous query results",
		"protocol":    ProtocolVersion,
		"endpoints": map[string]string{
			"mcp":    "/mcp",
			"health": "/health",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		logging.Error("MCPServer", err, "Failed to write server info")
	}
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleRPC(w, r)
	case http.MethodGet:
		s.handleStream(w, r)
	case http.MethodDelete:
		s.handleDeleteSession(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRPC answers one JSON-RPC request. Every reply is framed as a
// single SSE message event; clients parse text/event-stream, never a
// bare JSON body.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeSSEResponse(w, NewErrorResponse(nil, CodeParseError, "Parse error: "+err.Error()))
		return
	}

	if bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("[")) {
		writeSSEResponse(w, NewErrorResponse(nil, CodeInvalidRequest, "Invalid Request: batch requests are not supported"))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		logging.Warn("MCPServer", "Rejecting unparseable request: %v", err)
		writeSSEResponse(w, NewErrorResponse(nil, CodeParseError, "Parse error: "+err.Error()))
		return
	}

	session, ok := s.resolveSession(w, r, &req)
	if !ok {
		return
	}
	w.Header().Set(sessionHeader, session.ID)

	resp := s.dispatcher.Dispatch(session, &req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeSSEResponse(w, resp)
}

// resolveSession maps the Mcp-Session-Id header to a session. The
// first initialize arrives without the header and creates the session
// whose ID the response carries.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request, req *Request) (*Session, bool) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		if req.Method != methodInitialize {
			setSSEHeaders(w)
			w.WriteHeader(http.StatusBadRequest)
			writeSSEBody(w, NewErrorResponse(req.ID, CodeInvalidRequest,
				"Invalid Request: missing "+sessionHeader+" header"))
			return nil, false
		}
		session, err := s.registry.CreateSession()
		if err != nil {
			logging.Warn("MCPServer", "Refusing new session: %v", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return nil, false
		}
		return session, true
	}

	session, err := s.registry.GetSession(sessionID)
	if err != nil {
		var notFound *SessionNotFoundError
		if errors.As(err, &notFound) {
			http.Error(w, "session not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return nil, false
	}
	return session, true
}

// handleStream serves the long-lived notification stream for one
// session. The connection stays open until the client disconnects or
// the session closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "missing "+sessionHeader+" header", http.StatusBadRequest)
		return
	}
	session, err := s.registry.GetSession(sessionID)
	if err != nil {
		var notFound *SessionNotFoundError
		if errors.As(err, &notFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	logging.Debug("MCPServer", "Notification stream opened for session %s", logging.TruncateSessionID(session.ID))

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			logging.Debug("MCPServer", "Notification stream for session %s disconnected", logging.TruncateSessionID(session.ID))
			return
		case notification, open := <-session.Notifications():
			if !open {
				return
			}
			data, err := json.Marshal(notification)
			if err != nil {
				logging.Error("MCPServer", err, "Failed to encode %s notification", notification.Method)
				continue
			}
			writeSSEEvent(w, "message", data)
			flusher.Flush()
		case <-ticker.C:
			// Comment frame; clients ignore it, proxies see traffic.
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "missing "+sessionHeader+" header", http.StatusBadRequest)
		return
	}
	if err := s.registry.DeleteSession(sessionID); err != nil {
		var notFound *SessionNotFoundError
		if errors.As(err, &notFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logging.Info("MCPServer", "Session %s closed by client", logging.TruncateSessionID(sessionID))
	w.WriteHeader(http.StatusOK)
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeSSEResponse frames one JSON-RPC reply as an SSE message with a
// 200 status.
func writeSSEResponse(w http.ResponseWriter, resp *Response) {
	setSSEHeaders(w)
	writeSSEBody(w, resp)
}

// writeSSEBody writes the SSE frame after headers and status are set.
func writeSSEBody(w http.ResponseWriter, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error("MCPServer", err, "Failed to encode JSON-RPC response")
		data = []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal error"}}`)
	}
	writeSSEEvent(w, "message", data)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func writeSSEEvent(w io.Writer, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
