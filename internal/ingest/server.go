package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"drasimcp/internal/store"
	"drasimcp/internal/syncpoint"
	"drasimcp/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultReadTimeout bounds reading one envelope body.
	DefaultReadTimeout = 30 * time.Second
	// DefaultWriteTimeout is the default timeout for writing responses.
	DefaultWriteTimeout = 30 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second

	// maxEnvelopeBytes caps one inbound envelope. Views are bulk-loaded
	// at bootstrap, so a single change event has no business being
	// this large.
	maxEnvelopeBytes = 32 << 20
)

// Server is the inbound change-event listener. It accepts envelope
// POSTs from the transport and answers with status codes the transport
// understands: 2xx acknowledge, 4xx reject permanently, 5xx redeliver.
type Server struct {
	handler    *Handler
	httpServer *http.Server
}

// NewServer creates the change-event listener on the given port.
func NewServer(port int, handler *Handler) *Server {
	s := &Server{handler: handler}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleEvent)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	return s
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	logging.Info("Ingest", "Change-event listener starting on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
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

// handleEvent decodes one envelope and applies it. The decoder uses
// json.Number so key fields survive the trip without float rounding,
// matching how the bootstrap view is decoded.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes))
	decoder.UseNumber()

	var event Event
	if err := decoder.Decode(&event); err != nil {
		logging.Warn("Ingest", "Rejecting malformed envelope: %v", err)
		http.Error(w, fmt.Sprintf("malformed envelope: %v", err), http.StatusBadRequest)
		return
	}
	if event.QueryID == "" {
		http.Error(w, "envelope has no queryId", http.StatusBadRequest)
		return
	}

	if err := s.handler.HandleEvent(&event); err != nil {
		writeEventError(w, &event, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeEventError maps handler errors onto the transport's retry
// contract.
func writeEventError(w http.ResponseWriter, event *Event, err error) {
	var unknownQuery *store.UnknownQueryError
	var uninitialized *syncpoint.UninitializedError

	switch {
	case errors.As(err, &unknownQuery):
		logging.Warn("Ingest", "Rejecting envelope for unknown query %s", event.QueryID)
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &uninitialized):
		logging.Debug("Ingest", "Deferring envelope %d for uninitialized query %s", event.Sequence, event.QueryID)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		logging.Error("Ingest", err, "Failed to apply envelope %d for query %s", event.Sequence, event.QueryID)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
