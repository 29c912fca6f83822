// Package fetcher is the single outbound HTTP transport for the remote AI backend.
//
// Every call is one best-effort attempt: no retries, no client-side timeout and
// no caching. Callers bound a call through its context.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is used when no backend address is configured.
const DefaultBaseURL = "http://localhost:8000"

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("Fetch error: %d %s", e.StatusCode, e.Status)
}

// Options shape a single request. The zero value sends no body.
type Options struct {
	Query   url.Values
	Header  http.Header
	JSON    any
	Body    io.Reader
	Content string // content type for Body
}

// Client resolves paths against a base URL and decodes JSON responses.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a Client. A nil httpClient uses a fresh http.Client without timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Resolve turns a path into an absolute URL. Absolute URLs pass through unchanged.
func (c *Client) Resolve(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Do performs the request and decodes the JSON body into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, opts *Options, out any) error {
	if opts == nil {
		opts = &Options{}
	}

	target := c.Resolve(path)
	if len(opts.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + opts.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case opts.JSON != nil:
		b, err := json.Marshal(opts.JSON)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	case opts.Body != nil:
		body = opts.Body
		contentType = opts.Content
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode, Status: statusText(resp)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response of %s: %w", path, err)
	}
	return nil
}

// statusText strips the numeric prefix net/http puts in resp.Status.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
