package mcpserver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readySession returns a session that completed the handshake.
func readySession(t *testing.T) *Session {
	t.Helper()
	s := newSession("test-session")
	require.NoError(t, s.BeginInitialize("test-client", "1.0.0"))
	require.NoError(t, s.MarkReady())
	return s
}

func TestSession_Handshake(t *testing.T) {
	s := newSession("s-1")
	assert.Equal(t, StateConnecting, s.State())

	require.NoError(t, s.BeginInitialize("client", "2.1.0"))
	assert.Equal(t, StateInitializing, s.State())

	name, version := s.ClientInfo()
	assert.Equal(t, "client", name)
	assert.Equal(t, "2.1.0", version)

	require.NoError(t, s.MarkReady())
	assert.Equal(t, StateReady, s.State())
}

func TestSession_InitializeTwiceFails(t *testing.T) {
	s := newSession("s-1")
	require.NoError(t, s.BeginInitialize("client", "1.0.0"))

	err := s.BeginInitialize("client", "1.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initializing")
}

func TestSession_MarkReadyBeforeInitializeFails(t *testing.T) {
	s := newSession("s-1")
	require.Error(t, s.MarkReady())
}

func TestSession_SubscribeRequiresReady(t *testing.T) {
	s := newSession("s-1")
	err := s.Subscribe("drasi://r/queries/q")
	require.Error(t, err)

	require.NoError(t, s.BeginInitialize("client", "1.0.0"))
	require.Error(t, s.Subscribe("drasi://r/queries/q"))

	require.NoError(t, s.MarkReady())
	require.NoError(t, s.Subscribe("drasi://r/queries/q"))
	assert.True(t, s.IsSubscribed("drasi://r/queries/q"))
	assert.Equal(t, 1, s.SubscriptionCount())
}

func TestSession_UnsubscribeIsIdempotent(t *testing.T) {
	s := readySession(t)
	require.NoError(t, s.Subscribe("drasi://r/queries/q"))

	s.Unsubscribe("drasi://r/queries/q")
	assert.False(t, s.IsSubscribed("drasi://r/queries/q"))
	s.Unsubscribe("drasi://r/queries/q")
	s.Unsubscribe("drasi://r/never-subscribed")
}

func TestSession_EnqueueOnlyWhenReady(t *testing.T) {
	s := newSession("s-1")
	n := NewNotification(methodResourceListChanged, nil)

	assert.False(t, s.EnqueueNotification(n), "connecting sessions receive nothing")

	require.NoError(t, s.BeginInitialize("client", "1.0.0"))
	assert.False(t, s.EnqueueNotification(n), "initializing sessions receive nothing")

	require.NoError(t, s.MarkReady())
	assert.True(t, s.EnqueueNotification(n))

	got := <-s.Notifications()
	assert.Equal(t, methodResourceListChanged, got.Method)
}

func TestSession_QueueOverflowDrops(t *testing.T) {
	s := readySession(t)

	for i := 0; i < notificationBuffer; i++ {
		require.True(t, s.EnqueueNotification(NewNotification("m", fmt.Sprintf("%d", i))))
	}
	assert.False(t, s.EnqueueNotification(NewNotification("m", "overflow")))
}

func TestSession_CloseEndsStreamAndRejectsEnqueue(t *testing.T) {
	s := readySession(t)
	require.True(t, s.EnqueueNotification(NewNotification("m", nil)))

	s.Close()
	assert.Equal(t, StateClosed, s.State())
	assert.False(t, s.EnqueueNotification(NewNotification("m", nil)))

	// The buffered notification is still readable, then the channel ends.
	_, open := <-s.Notifications()
	assert.True(t, open)
	_, open = <-s.Notifications()
	assert.False(t, open)

	s.Close()
}
