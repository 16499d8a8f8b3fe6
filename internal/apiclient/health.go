package apiclient

import (
	"context"
	"net/http"
	"time"
)

// DefaultHealthPaths are tried in order until one answers with 2xx.
var DefaultHealthPaths = []string{"/health", "/status", "/ping", "/"}

// HealthResult describes the liveness path that answered.
type HealthResult struct {
	Endpoint  string        `json:"endpoint"`
	CheckedAt time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"latency"`
}

// Health walks the liveness paths in order and stops at the first 2xx.
// When every path fails it returns *HealthError carrying the last error.
// A canceled context stops the walk early.
func (c *Client) Health(ctx context.Context, paths []string) (HealthResult, error) {
	if len(paths) == 0 {
		paths = DefaultHealthPaths
	}

	var lastErr error
	tried := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		tried = append(tried, path)

		start := time.Now()
		// Only the status matters; "/" often answers with HTML.
		_, err := c.send(ctx, path, RequestOptions{Method: http.MethodGet})
		if err == nil {
			return HealthResult{
				Endpoint:  path,
				CheckedAt: time.Now(),
				Latency:   time.Since(start),
			}, nil
		}
		c.logger.Debug("liveness path failed", "path", path, "error", err)
		lastErr = err
	}

	return HealthResult{}, &HealthError{Tried: tried, Last: lastErr}
}
