package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dusk-indust/reelpipe/internal/runstate"
)

// Client talks to a running pipeline service.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client // no overall timeout; streams last as long as the run
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the timeout of non-streaming requests.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client. Streams reuse its
// transport without the timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
		c.stream = &http.Client{Transport: hc.Transport}
	}
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		stream:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit starts a run and returns its ID.
func (c *Client) Submit(ctx context.Context, req runstate.RunRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("api: marshal request: %w", err)
	}
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/pipeline/run", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// Status fetches the current view of a run. Unknown runs return an error
// wrapping runstate.ErrRunNotFound.
func (c *Client) Status(ctx context.Context, runID string) (runstate.Status, error) {
	var st runstate.Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/pipeline/run/"+url.PathEscape(runID), nil, &st); err != nil {
		return runstate.Status{}, err
	}
	return st, nil
}

// List returns every known run in creation order.
func (c *Client) List(ctx context.Context) ([]runstate.Status, error) {
	var resp ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/pipeline/runs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Stream subscribes to a run's events after sequence number `after` (0 for
// the full history). The channel closes after the terminal event, or when
// ctx is cancelled.
func (c *Client) Stream(ctx context.Context, runID string, after int) (<-chan StreamEvent, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/pipeline/run/"+url.PathEscape(runID)+"/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	if after > 0 {
		httpReq.Header.Set("Last-Event-ID", strconv.Itoa(after))
	}

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("api: stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return ReadEvents(ctx, resp.Body), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

// statusError turns an error reply into an error, mapping 404 to
// runstate.ErrRunNotFound.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var er ErrorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error != "" {
		msg = er.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("api: %s: %w", msg, runstate.ErrRunNotFound)
	}
	return fmt.Errorf("api: HTTP %d: %s", resp.StatusCode, msg)
}
