// Package dune runs saved Dune Analytics queries and downloads their results as CSV
package dune

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mitchhs12/safe-top-protocols/backoff"
	"go.uber.org/zap"
)

const apiKeyHeader = "X-Dune-API-Key"

// Execution states reported by the API
const (
	StatePending   = "QUERY_STATE_PENDING"
	StateExecuting = "QUERY_STATE_EXECUTING"
	StateCompleted = "QUERY_STATE_COMPLETED"
	StateFailed    = "QUERY_STATE_FAILED"
	StateCancelled = "QUERY_STATE_CANCELLED"
	StateExpired   = "QUERY_STATE_EXPIRED"
)

// ErrExecutionFailed is returned when an execution ends in a terminal state other than completed
var ErrExecutionFailed = errors.New("dune execution did not complete")

// ClientConfig configures a Client
type ClientConfig struct {
	APIKey       string
	BaseURL      string
	HTTPClient   *http.Client
	PollInterval time.Duration
	RetryDelays  []time.Duration
}

// Client talks to the Dune REST API
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	delays       []time.Duration
	logger       *zap.Logger
}

// ExecutionStatus is the body of an execute or status call
type ExecutionStatus struct {
	ExecutionID string `json:"execution_id"`
	QueryID     int64  `json:"query_id"`
	State       string `json:"state"`
	Error       *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Terminal reports whether the execution will not change state again
func (s *ExecutionStatus) Terminal() bool {
	switch s.State {
	case StateCompleted, StateFailed, StateCancelled, StateExpired:
		return true
	}
	return false
}

type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("dune api returned %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a Dune API client
func NewClient(cfg *ClientConfig, l *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("dune api key is required")
	}
	c := &Client{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   cfg.HTTPClient,
		pollInterval: cfg.PollInterval,
		delays:       cfg.RetryDelays,
		logger:       l,
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.dune.com"
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}
	if c.delays == nil {
		c.delays = backoff.DefaultDelays
	}
	return c, nil
}

// Execute starts a new execution of a saved query
func (c *Client) Execute(ctx context.Context, queryID string) (*ExecutionStatus, error) {
	status := &ExecutionStatus{}
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/v1/query/%s/execute", queryID), status); err != nil {
		return nil, fmt.Errorf("failed to execute query %s: %w", queryID, err)
	}
	return status, nil
}

// Status returns the state of an execution
func (c *Client) Status(ctx context.Context, executionID string) (*ExecutionStatus, error) {
	status := &ExecutionStatus{}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v1/execution/%s/status", executionID), status); err != nil {
		return nil, fmt.Errorf("failed to get status of execution %s: %w", executionID, err)
	}
	return status, nil
}

// ResultCSV downloads the result of a finished execution
func (c *Client) ResultCSV(ctx context.Context, executionID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/execution/%s/results/csv", executionID))
}

// LatestResult downloads the most recent cached result of a query without
// running it again
func (c *Client) LatestResult(ctx context.Context, queryID string) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/query/%s/results/csv", queryID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest result of query %s: %w", queryID, err)
	}
	return body, nil
}

// RunQuery executes a saved query, waits for it to finish and returns its
// result as CSV
func (c *Client) RunQuery(ctx context.Context, queryID string) ([]byte, error) {
	status, err := c.Execute(ctx, queryID)
	if err != nil {
		return nil, err
	}
	c.logger.Sugar().Infow("Dune query submitted",
		zap.String("queryId", queryID),
		zap.String("executionId", status.ExecutionID),
	)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for !status.Terminal() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if status, err = c.Status(ctx, status.ExecutionID); err != nil {
			return nil, err
		}
		c.logger.Sugar().Debugw("Dune query state",
			zap.String("executionId", status.ExecutionID),
			zap.String("state", status.State),
		)
	}

	if status.State != StateCompleted {
		msg := status.State
		if status.Error != nil {
			msg = fmt.Sprintf("%s: %s", status.State, status.Error.Message)
		}
		return nil, fmt.Errorf("%w: query %s: %s", ErrExecutionFailed, queryID, msg)
	}

	body, err := c.ResultCSV(ctx, status.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch result of query %s: %w", queryID, err)
	}
	c.logger.Sugar().Infow("Dune query finished",
		zap.String("queryId", queryID),
		zap.Int("bytes", len(body)),
	)
	return body, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	body, err := c.do(ctx, method, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do sends a request, retrying transport errors and 5xx responses
func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	return backoff.Retry(ctx, c.delays, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set(apiKeyHeader, c.apiKey)

		res, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, err
		}

		if res.StatusCode >= 300 {
			apiErr := &apiError{StatusCode: res.StatusCode, Message: strings.TrimSpace(string(body))}
			if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
				return nil, apiErr
			}
			return nil, backoff.Permanent(apiErr)
		}
		return body, nil
	})
}
