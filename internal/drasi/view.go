package drasi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"drasimcp/pkg/logging"
)

// ViewHeader carries the stream position of a view snapshot. Changes
// with sequence numbers at or below it are already reflected in the
// snapshot's rows.
type ViewHeader struct {
	Sequence int64 `json:"sequence"`
}

// ViewItem is one element of a view result stream: either a header or
// a data row, never both.
type ViewItem struct {
	Header *ViewHeader            `json:"header,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// ViewClientConfig holds configuration for the view service client.
type ViewClientConfig struct {
	// BaseURL is the view service base, e.g. http://drasi-view-svc.
	BaseURL string
}

// ViewClient streams the current result set of a continuous query from
// the view service.
type ViewClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewViewClient creates a view service client. The underlying HTTP
// client carries no timeout: a view can be arbitrarily large, so
// cancellation comes from the request context instead.
func NewViewClient(config ViewClientConfig) *ViewClient {
	return &ViewClient{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: &http.Client{},
	}
}

// GetCurrentResult requests the query's current view and returns a
// stream over its items. The caller must Close the stream.
func (c *ViewClient) GetCurrentResult(ctx context.Context, queryID string) (*ViewStream, error) {
	viewURL := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(queryID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, viewURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &UnexpectedStatusError{URL: viewURL, StatusCode: resp.StatusCode}
	}

	// The body is one JSON array streamed item by item. UseNumber keeps
	// integer key fields exact instead of rounding through float64.
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()

	opening, err := decoder.Token()
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to read view response for %s: %w", queryID, err)
	}
	if delim, ok := opening.(json.Delim); !ok || delim != '[' {
		resp.Body.Close()
		return nil, fmt.Errorf("view response for %s is not a JSON array", queryID)
	}

	logging.Debug("Drasi", "Streaming current result of query %s", queryID)
	return &ViewStream{queryID: queryID, body: resp.Body, decoder: decoder}, nil
}

// ViewStream is a pull iterator over a view result. Items arrive in
// stream order; the first is expected to be the header.
type ViewStream struct {
	queryID string
	body    io.ReadCloser
	decoder *json.Decoder
	closed  bool
}

// Next returns the next item, or io.EOF once the array is exhausted.
func (s *ViewStream) Next() (*ViewItem, error) {
	if s.closed {
		return nil, io.EOF
	}
	if !s.decoder.More() {
		// Consume the closing bracket so a truncated body surfaces as
		// an error rather than a clean EOF.
		if _, err := s.decoder.Token(); err != nil {
			return nil, fmt.Errorf("view stream for %s ended mid-array: %w", s.queryID, err)
		}
		return nil, io.EOF
	}

	var item ViewItem
	if err := s.decoder.Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode view item for %s: %w", s.queryID, err)
	}
	return &item, nil
}

// Close releases the underlying response body. It is safe to call
// multiple times.
func (s *ViewStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = io.Copy(io.Discard, s.body)
	return s.body.Close()
}
