package mcpserver

import (
	"fmt"
	"sync"
	"time"
)

// SessionState tracks where a session is in the MCP handshake.
type SessionState string

const (
	// StateConnecting is the state of a freshly created session that
	// has not sent initialize yet.
	StateConnecting SessionState = "connecting"
	// StateInitializing means initialize was answered and the server
	// is waiting for notifications/initialized.
	StateInitializing SessionState = "initializing"
	// StateReady means the handshake finished. Subscriptions and
	// notification delivery only happen in this state.
	StateReady SessionState = "ready"
	// StateClosing means teardown started.
	StateClosing SessionState = "closing"
	// StateClosed means the session is gone and its ID is invalid.
	StateClosed SessionState = "closed"
)

// notificationBuffer is the per-session queue depth. A session that
// stops reading its stream loses notifications beyond this.
const notificationBuffer = 64

// Session is one MCP client connection identified by Mcp-Session-Id.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu            sync.Mutex
	state         SessionState
	lastActivity  time.Time
	clientName    string
	clientVersion string
	subscriptions map[string]bool
	notifications chan *Notification
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:            id,
		CreatedAt:     now,
		state:         StateConnecting,
		lastActivity:  now,
		subscriptions: make(map[string]bool),
		notifications: make(chan *Notification, notificationBuffer),
	}
}

// State returns the current handshake state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Touch records activity so the idle sweep does not reap the session.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns the time of the most recent request or stream
// read on this session.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// BeginInitialize moves the session from connecting to initializing
// and records the client identity from the initialize request.
func (s *Session) BeginInitialize(clientName, clientVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return fmt.Errorf("initialize not allowed in state %s", s.state)
	}
	s.state = StateInitializing
	s.clientName = clientName
	s.clientVersion = clientVersion
	return nil
}

// MarkReady moves the session from initializing to ready when the
// client confirms with notifications/initialized.
func (s *Session) MarkReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitializing {
		return fmt.Errorf("notifications/initialized not allowed in state %s", s.state)
	}
	s.state = StateReady
	return nil
}

// ClientInfo returns the identity the client sent during initialize.
func (s *Session) ClientInfo() (name, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientName, s.clientVersion
}

// Subscribe registers interest in a resource URI. Only ready sessions
// may subscribe.
func (s *Session) Subscribe(uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return fmt.Errorf("resources/subscribe not allowed in state %s", s.state)
	}
	s.subscriptions[uri] = true
	return nil
}

// Unsubscribe drops interest in a resource URI. Unsubscribing a URI
// that was never subscribed is a no-op.
func (s *Session) Unsubscribe(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, uri)
}

// IsSubscribed reports whether the session subscribed to the URI.
func (s *Session) IsSubscribed(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions[uri]
}

// SubscriptionCount returns the number of active subscriptions.
func (s *Session) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscriptions)
}

// EnqueueNotification queues a notification for the session's stream.
// Only ready sessions receive notifications. The queue never blocks;
// when it is full the notification is dropped and false is returned.
func (s *Session) EnqueueNotification(n *Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return false
	}
	select {
	case s.notifications <- n:
		return true
	default:
		return false
	}
}

// Notifications exposes the session's queued notifications to the
// streaming handler.
func (s *Session) Notifications() <-chan *Notification {
	return s.notifications
}

// Close ends the session. The notification channel is closed so a
// streaming handler unblocks, and further enqueues are rejected.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateClosing
	close(s.notifications)
	s.state = StateClosed
}
