package mcpserver

import (
	"context"

	"drasimcp/internal/store"
	"drasimcp/pkg/logging"
)

const (
	methodResourceUpdated     = "notifications/resources/updated"
	methodResourceListChanged = "notifications/resources/list_changed"
)

type resourceUpdatedParams struct {
	URI string `json:"uri"`
}

// Notifier fans store change signals out to subscribed sessions.
//
// An entry signal becomes resources/updated on the entry URI. A list
// signal, emitted when entries are created or deleted, becomes
// resources/updated on the query URI plus resources/list_changed; an
// in-place entry update leaves the query URI quiet.
type Notifier struct {
	store    *store.Store
	registry *Registry
}

// NewNotifier builds a notifier over the store's signal channel.
func NewNotifier(st *store.Store, registry *Registry) *Notifier {
	return &Notifier{store: st, registry: registry}
}

// Run consumes change signals until the store closes its channel or
// the context is cancelled. Signals are fanned out one at a time, so
// each session observes notifications in store order.
func (n *Notifier) Run(ctx context.Context) error {
	logging.Info("MCPServer", "Notification fan-out running")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-n.store.Events():
			if !ok {
				logging.Debug("MCPServer", "Change signal channel closed, notifier stopping")
				return nil
			}
			n.fanOut(ev)
		}
	}
}

func (n *Notifier) fanOut(ev store.Event) {
	switch {
	case ev.Resource != nil:
		n.notifyUpdated(ev.Resource.URI)
	case ev.List != nil:
		n.notifyUpdated(ev.List.QueryURI)
		n.notifyListChanged()
	}
}

// notifyUpdated sends resources/updated to every ready session that
// subscribed to the URI.
func (n *Notifier) notifyUpdated(uri string) {
	for _, session := range n.registry.Sessions() {
		if session.State() != StateReady || !session.IsSubscribed(uri) {
			continue
		}
		n.deliver(session, NewNotification(methodResourceUpdated, resourceUpdatedParams{URI: uri}))
	}
}

// notifyListChanged goes to every ready session; list_changed is a
// capability-level signal, not a subscription.
func (n *Notifier) notifyListChanged() {
	notification := NewNotification(methodResourceListChanged, nil)
	for _, session := range n.registry.Sessions() {
		if session.State() != StateReady {
			continue
		}
		n.deliver(session, notification)
	}
}

// deliver enqueues without blocking. A slow session loses the signal
// rather than stalling delivery to every other session.
func (n *Notifier) deliver(session *Session, notification *Notification) {
	if !session.EnqueueNotification(notification) {
		logging.Warn("MCPServer", "Dropping %s for session %s: queue full",
			notification.Method, logging.TruncateSessionID(session.ID))
	}
}
