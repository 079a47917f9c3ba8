package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryURI(t *testing.T) {
	uri := QueryURI("mcp-server-e2e", "customer-data")
	assert.Equal(t, "drasi://mcp-server-e2e/queries/customer-data", uri)
}

func TestEntryURI_EscapesKey(t *testing.T) {
	tests := []struct {
		name     string
		entryKey string
		expected string
	}{
		{"plain", "cust-1", "drasi://r/entries/q/cust-1"},
		{"slash", "a/b", "drasi://r/entries/q/a%2Fb"},
		{"space", "a b", "drasi://r/entries/q/a%20b"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, EntryURI("r", "q", test.entryKey))
		})
	}
}

func TestParseURI_RoundTrip(t *testing.T) {
	// parse(uri).String() must reproduce the input for well-formed URIs.
	uris := []string{
		"drasi://mcp-server/queries/customer-data",
		"drasi://mcp-server-e2e/entries/customer-data/cust-1",
		"drasi://r/entries/q/a%2Fb",
		"drasi://r/entries/q/key%20with%20spaces",
		EntryURI("mcp-server", "orders", "order/2024/001"),
		QueryURI("my-reaction", "products"),
	}

	for _, raw := range uris {
		parsed, err := ParseURI(raw)
		require.NoError(t, err, "parse %s", raw)
		assert.Equal(t, raw, parsed.String(), "round trip of %s", raw)
	}
}

func TestParseURI_Fields(t *testing.T) {
	entry, err := ParseURI("drasi://mcp-server-e2e/entries/customer-data/cust-1")
	require.NoError(t, err)
	assert.Equal(t, "mcp-server-e2e", entry.ReactionName)
	assert.Equal(t, "customer-data", entry.QueryID)
	assert.Equal(t, "cust-1", entry.EntryKey)
	assert.True(t, entry.IsEntry())

	query, err := ParseURI("drasi://mcp-server-e2e/queries/customer-data")
	require.NoError(t, err)
	assert.Equal(t, "customer-data", query.QueryID)
	assert.Empty(t, query.EntryKey)
	assert.False(t, query.IsEntry())
}

func TestParseURI_UnescapesKey(t *testing.T) {
	parsed, err := ParseURI("drasi://r/entries/q/a%2Fb")
	require.NoError(t, err)
	assert.Equal(t, "a/b", parsed.EntryKey)
}

func TestParseURI_LenientRawSlashes(t *testing.T) {
	// Keys sent with unescaped slashes are still resolvable.
	parsed, err := ParseURI("drasi://r/entries/q/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c", parsed.EntryKey)
}

func TestParseURI_Invalid(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"wrong scheme", "http://r/queries/q"},
		{"no reaction name", "drasi:///queries/q"},
		{"unknown collection", "drasi://r/things/q"},
		{"query with extra segment", "drasi://r/queries/q/extra"},
		{"entry without key", "drasi://r/entries/q"},
		{"empty entry key", "drasi://r/entries/q/"},
		{"garbage", "not a uri at all ::"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseURI(test.uri)
			require.Error(t, err)
			var invalidErr *InvalidURIError
			assert.ErrorAs(t, err, &invalidErr)
		})
	}
}
