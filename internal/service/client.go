// Package service is the HTTP client for the long-running analytics service.
// The service is an external collaborator: this package only knows that it
// listens on a fixed local address and answers JSON under /api.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable means the service could not be reached at all. Data loads
// surface it to the caller instead of crashing anything; it usually means
// the supervised process has exited.
var ErrUnavailable = errors.New("analytics service is not reachable")

// binance_polar is the one route that takes no query parameters.
const noQuerySection = "binance_polar"

// Client talks to the analytics service over local HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the given base URL, e.g. "http://127.0.0.1:5001".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// IsRunning reports whether the service answers HTTP at its root.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WaitReady polls the service until it answers, the timeout elapses, or ctx
// is cancelled. Progress is written to w. Returns false when the service
// never became ready; callers treat that as a warning, not a fatal error.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration, w io.Writer) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsRunning(ctx) {
			fmt.Fprintf(w, "analytics service: ready at %s\n", c.baseURL)
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(250 * time.Millisecond):
		}
	}
	fmt.Fprintf(w, "analytics service: not ready after %s\n", timeout)
	return false
}

// Load fetches one section's data: GET /api/{section}?{params}. The
// binance_polar section is a fixed path and ignores params. The response
// body is returned verbatim; its shape is owned by the service.
func (c *Client) Load(ctx context.Context, section string, params map[string]string) (json.RawMessage, error) {
	u := c.baseURL + "/api/" + url.PathEscape(section)
	if section != noQuerySection && len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("service returned %d for %s: %s", resp.StatusCode, section, truncate(string(body), 200))
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("service returned invalid JSON for %s", section)
	}
	return json.RawMessage(body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
