// Package apiclient is the single gateway from the dashboard to the REST backend.
//
// Every request is JSON, carries the caller's context, and reports failures as
// typed errors: *NetworkError when the backend cannot be reached and
// *HTTPStatusError when it answers with a non-2xx status. There is no retry and
// no timeout beyond what the caller's context imposes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/mapaclientes/internal/metrics"
)

// Client sends JSON requests to the REST backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds configuration for the client.
type Config struct {
	BaseURL    string       // e.g. https://mapclientes-backend.fly.dev/api
	HTTPClient *http.Client // optional, defaults to a client without timeout
	Logger     *slog.Logger
}

// New creates a backend client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "apiclient"),
	}
}

// BaseURL returns the backend root every path is appended to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOptions customises a single request.
type RequestOptions struct {
	Method  string            // defaults to GET
	Body    any               // marshalled as JSON; []byte and json.RawMessage are sent as-is
	Headers map[string]string // override the defaults, including Content-Type
}

// Request sends one request and returns the raw JSON body of a 2xx response.
// An empty 2xx body yields a nil message and no error.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions) (json.RawMessage, error) {
	respBody, err := c.send(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(respBody)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("decode %s %s response: invalid JSON", methodOf(opts), path)
	}
	return json.RawMessage(trimmed), nil
}

// send performs the round trip and enforces the 2xx contract. The body is
// returned unparsed.
func (c *Client) send(ctx context.Context, path string, opts RequestOptions) ([]byte, error) {
	method := methodOf(opts)
	url := c.baseURL + path

	var body io.Reader
	if opts.Body != nil {
		b, err := encodeBody(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.APIRequestCompleted(method, path, "network_error", time.Since(start))
		c.logger.Warn("backend unreachable", "method", method, "path", path, "error", err)
		return nil, &NetworkError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		metrics.APIRequestCompleted(method, path, "network_error", duration)
		return nil, &NetworkError{Method: method, URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.APIRequestCompleted(method, path, "http_error", duration)
		c.logger.Info("backend error status",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
		)
		return nil, &HTTPStatusError{
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Method:     method,
			Path:       path,
			Body:       truncate(string(respBody), 512),
		}
	}

	metrics.APIRequestCompleted(method, path, "ok", duration)
	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)
	return respBody, nil
}

func methodOf(opts RequestOptions) string {
	if opts.Method == "" {
		return http.MethodGet
	}
	return opts.Method
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodGet})
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodPost, Body: body})
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodPut, Body: body})
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodDelete})
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(body)
	}
}

// statusText returns the reason phrase the server sent, falling back to the
// canonical text for the code.
func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// =============================================================================
// Bearer token propagation
// =============================================================================

type contextKey string

const tokenContextKey contextKey = "backend_token"

// WithToken returns a context whose requests carry the backend token.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey, token)
}

// TokenFrom returns the backend token stored in ctx, if any.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}
