// Package httpclient is a small context-aware HTTP client shared by the
// external API integrations.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps http.Client with a fixed timeout and header plumbing.
type Client struct {
	httpClient *http.Client
}

// New creates a client with the given timeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Get performs a GET request with the provided headers.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.httpClient.Do(req)
}

// Post performs a POST request with the provided headers. Content-Type
// defaults to JSON.
func (c *Client) Post(ctx context.Context, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}
