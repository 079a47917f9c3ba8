package drasi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"drasimcp/pkg/logging"
)

const (
	// DefaultReadinessTimeout bounds how long bootstrap waits for a
	// single query to report itself running.
	DefaultReadinessTimeout = 300 * time.Second

	// DefaultPollInterval is the pause between readiness checks.
	DefaultPollInterval = 1 * time.Second

	// DefaultHTTPTimeout bounds a single management API request.
	DefaultHTTPTimeout = 10 * time.Second

	// StatusRunning is the management API status that marks a query
	// ready to serve its view.
	StatusRunning = "running"
)

// terminalStatuses are management API statuses a query cannot leave.
// Polling past one of these would wait forever.
var terminalStatuses = map[string]bool{
	"terminalerror": true,
	"deleted":       true,
}

// ManagementClientConfig holds configuration for the management API
// client.
type ManagementClientConfig struct {
	// BaseURL is the management API base, e.g. http://drasi-api.
	BaseURL string

	// PollInterval is the pause between readiness checks.
	PollInterval time.Duration

	// HTTPTimeout bounds a single request.
	HTTPTimeout time.Duration
}

// ManagementClient talks to the query container's management API.
type ManagementClient struct {
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
}

// NewManagementClient creates a management API client, filling config
// defaults.
func NewManagementClient(config ManagementClientConfig) *ManagementClient {
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = DefaultHTTPTimeout
	}
	return &ManagementClient{
		baseURL:      strings.TrimSuffix(config.BaseURL, "/"),
		pollInterval: config.PollInterval,
		httpClient:   &http.Client{Timeout: config.HTTPTimeout},
	}
}

// queryStatusResponse is the management API's description of a query.
type queryStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// GetQueryStatus fetches the current status of a query. A 404 means
// the query is not registered yet and is reported as an empty status
// with no error, so callers can keep waiting for the control plane to
// catch up.
func (c *ManagementClient) GetQueryStatus(ctx context.Context, queryID string) (string, error) {
	statusURL := fmt.Sprintf("%s/v1/continuousQueries/%s", c.baseURL, url.PathEscape(queryID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	default:
		return "", &UnexpectedStatusError{URL: statusURL, StatusCode: resp.StatusCode}
	}

	var status queryStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("failed to parse query status: %w", err)
	}
	return status.Status, nil
}

// WaitForQueryReady polls the management API until the query reports
// status running, the timeout expires, or the context is cancelled.
// Transient failures (connection errors, 5xx, missing query) keep the
// poll alive; a terminal query status fails immediately.
func (c *ManagementClient) WaitForQueryReady(ctx context.Context, queryID string, timeout time.Duration) error {
	if timeout == 0 {
		timeout = DefaultReadinessTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	attempt := 0
	for {
		attempt++
		status, err := c.GetQueryStatus(ctx, queryID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Debug("Drasi", "Readiness check %d for query %s failed: %v", attempt, queryID, err)
		case strings.EqualFold(status, StatusRunning):
			logging.Info("Drasi", "Query %s is running after %d checks", queryID, attempt)
			return nil
		case terminalStatuses[strings.ToLower(status)]:
			return &QueryFailedError{QueryID: queryID, Status: status}
		case status == "":
			logging.Debug("Drasi", "Query %s not registered yet", queryID)
		default:
			logging.Debug("Drasi", "Query %s status is %s, waiting", queryID, status)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &ReadinessTimeoutError{QueryID: queryID, Timeout: timeout}
		case <-ticker.C:
		}
	}
}
