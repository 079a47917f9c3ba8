package mcpserver

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, cfg RegistryConfig) *Registry {
	t.Helper()
	r := NewRegistry(cfg)
	t.Cleanup(r.Stop)
	return r
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})

	created, err := r.CreateSession()
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, StateConnecting, created.State())
	assert.Equal(t, 1, r.Count())

	got, err := r.GetSession(created.ID)
	require.NoError(t, err)
	assert.Same(t, created, got)
}

func TestRegistry_GetUnknownSession(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})

	_, err := r.GetSession("1f0a3c44-0000-0000-0000-000000000000")
	var notFound *SessionNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRegistry_RejectsInvalidSessionIDs(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})

	var invalid *InvalidSessionIDError
	_, err := r.GetSession("")
	require.ErrorAs(t, err, &invalid)

	_, err = r.GetSession(strings.Repeat("x", MaxSessionIDLength+1))
	require.ErrorAs(t, err, &invalid)
}

func TestRegistry_DeleteSession(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})
	session, err := r.CreateSession()
	require.NoError(t, err)

	require.NoError(t, r.DeleteSession(session.ID))
	assert.Equal(t, StateClosed, session.State(), "deleting closes the session")
	assert.Equal(t, 0, r.Count())

	var notFound *SessionNotFoundError
	require.ErrorAs(t, r.DeleteSession(session.ID), &notFound)
}

func TestRegistry_SessionLimit(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{MaxSessions: 2})

	_, err := r.CreateSession()
	require.NoError(t, err)
	_, err = r.CreateSession()
	require.NoError(t, err)

	_, err = r.CreateSession()
	var limit *SessionLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, 2, limit.Max)
}

func TestRegistry_ReapsIdleSessions(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{SessionTimeout: time.Minute})

	idle, err := r.CreateSession()
	require.NoError(t, err)
	active, err := r.CreateSession()
	require.NoError(t, err)

	idle.mu.Lock()
	idle.lastActivity = time.Now().Add(-2 * time.Minute)
	idle.mu.Unlock()

	r.reapExpired()

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, StateClosed, idle.State())
	_, err = r.GetSession(active.ID)
	assert.NoError(t, err)
}

func TestRegistry_GetRefreshesActivity(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{SessionTimeout: time.Minute})
	session, err := r.CreateSession()
	require.NoError(t, err)

	session.mu.Lock()
	session.lastActivity = time.Now().Add(-2 * time.Minute)
	session.mu.Unlock()

	// A lookup counts as activity, so the sweep spares the session.
	_, err = r.GetSession(session.ID)
	require.NoError(t, err)
	r.reapExpired()
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_StopClosesEverySession(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	a, err := r.CreateSession()
	require.NoError(t, err)
	b, err := r.CreateSession()
	require.NoError(t, err)

	r.Stop()

	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, r.Count())
}
