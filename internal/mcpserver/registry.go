package mcpserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"drasimcp/pkg/logging"
)

const (
	// DefaultSessionTimeout reaps sessions with no requests or stream
	// reads for this long.
	DefaultSessionTimeout = 30 * time.Minute

	// DefaultMaxSessions caps concurrent sessions.
	DefaultMaxSessions = 10000

	// MaxSessionIDLength bounds client-supplied session IDs.
	MaxSessionIDLength = 256

	// minCleanupInterval keeps the sweep from spinning when the
	// session timeout is configured very low.
	minCleanupInterval = time.Second
)

// SessionNotFoundError marks a request carrying an unknown or expired
// session ID.
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.ID)
}

// InvalidSessionIDError marks a session ID the registry refuses to
// look up.
type InvalidSessionIDError struct {
	Reason string
}

func (e *InvalidSessionIDError) Error() string {
	return fmt.Sprintf("invalid session ID: %s", e.Reason)
}

// SessionLimitError marks a create attempt past the session cap.
type SessionLimitError struct {
	Max int
}

func (e *SessionLimitError) Error() string {
	return fmt.Sprintf("session limit of %d reached", e.Max)
}

// RegistryConfig configures the session registry.
type RegistryConfig struct {
	// SessionTimeout is the idle period after which a session is
	// reaped. Zero means DefaultSessionTimeout.
	SessionTimeout time.Duration

	// MaxSessions caps concurrent sessions. Zero means
	// DefaultMaxSessions.
	MaxSessions int
}

// Registry tracks live MCP sessions and reaps idle ones in the
// background.
type Registry struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	sessionTimeout time.Duration
	maxSessions    int

	stopCleanup chan struct{}
	cleanupDone chan struct{}
	stopOnce    sync.Once
}

// NewRegistry builds a registry and starts its idle sweep.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	r := &Registry{
		sessions:       make(map[string]*Session),
		sessionTimeout: cfg.SessionTimeout,
		maxSessions:    cfg.MaxSessions,
		stopCleanup:    make(chan struct{}),
		cleanupDone:    make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

// CreateSession registers a new session under a fresh ID.
func (r *Registry) CreateSession() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) >= r.maxSessions {
		return nil, &SessionLimitError{Max: r.maxSessions}
	}
	session := newSession(uuid.NewString())
	r.sessions[session.ID] = session
	logging.Debug("MCPServer", "Created session %s (%d active)", logging.TruncateSessionID(session.ID), len(r.sessions))
	return session, nil
}

// GetSession looks up a session by ID and refreshes its activity.
func (r *Registry) GetSession(id string) (*Session, error) {
	if err := validateSessionID(id); err != nil {
		return nil, err
	}
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &SessionNotFoundError{ID: id}
	}
	session.Touch()
	return session, nil
}

// DeleteSession removes a session and closes its notification stream.
func (r *Registry) DeleteSession(id string) error {
	if err := validateSessionID(id); err != nil {
		return err
	}
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return &SessionNotFoundError{ID: id}
	}
	session.Close()
	logging.Debug("MCPServer", "Deleted session %s", logging.TruncateSessionID(id))
	return nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of live sessions for notification
// fan-out.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		snapshot = append(snapshot, session)
	}
	return snapshot
}

// Stop ends the idle sweep and closes every live session.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCleanup)
	})
	<-r.cleanupDone

	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, session := range sessions {
		session.Close()
	}
}

func (r *Registry) cleanupLoop() {
	defer close(r.cleanupDone)
	interval := r.sessionTimeout / 2
	if interval < minCleanupInterval {
		interval = minCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCleanup:
			return
		case <-ticker.C:
			r.reapExpired()
		}
	}
}

func (r *Registry) reapExpired() {
	cutoff := time.Now().Add(-r.sessionTimeout)
	var expired []*Session

	r.mu.Lock()
	for id, session := range r.sessions {
		if session.LastActivity().Before(cutoff) {
			delete(r.sessions, id)
			expired = append(expired, session)
		}
	}
	r.mu.Unlock()

	for _, session := range expired {
		session.Close()
		logging.Debug("MCPServer", "Reaped idle session %s", logging.TruncateSessionID(session.ID))
	}
}

func validateSessionID(id string) error {
	if id == "" {
		return &InvalidSessionIDError{Reason: "empty"}
	}
	if len(id) > MaxSessionIDLength {
		return &InvalidSessionIDError{Reason: fmt.Sprintf("longer than %d bytes", MaxSessionIDLength)}
	}
	return nil
}
