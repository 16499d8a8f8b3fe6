package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DukeRupert/mapaclientes/internal/auth"
)

// quietPrefixes are polled often enough that logging them drowns real traffic.
var quietPrefixes = []string{"/health", "/metrics", "/static/", "/ws/", "/status"}

// redactedParams never reach the log in clear text.
var redactedParams = map[string]bool{
	"token":      true,
	"password":   true,
	"csrf_token": true,
	"secret":     true,
	"key":        true,
}

// RequestLoggingMiddleware logs one line per request with timing and status.
type RequestLoggingMiddleware struct {
	logger *slog.Logger
	quiet  []string
}

// NewRequestLoggingMiddleware creates a new request logging middleware that
// skips the dashboard's polling endpoints.
func NewRequestLoggingMiddleware(logger *slog.Logger) *RequestLoggingMiddleware {
	return &RequestLoggingMiddleware{logger: logger, quiet: quietPrefixes}
}

// WithQuietPrefixes replaces the path prefixes that are not logged. Calling
// it with no arguments logs every request.
func (m *RequestLoggingMiddleware) WithQuietPrefixes(prefixes ...string) *RequestLoggingMiddleware {
	m.quiet = prefixes
	return m
}

// Handler returns middleware that logs HTTP requests.
func (m *RequestLoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isQuiet(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"method", r.Method,
			"path", sanitizePath(r.URL.Path, r.URL.RawQuery),
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", getClientIP(r),
		}
		if user := auth.GetUser(r.Context()); user != nil {
			attrs = append(attrs, "user_id", user.ID)
		}

		switch {
		case wrapped.statusCode >= 500:
			m.logger.Error("request", attrs...)
		case wrapped.statusCode >= 400:
			m.logger.Warn("request", attrs...)
		default:
			m.logger.Info("request", attrs...)
		}
	})
}

func (m *RequestLoggingMiddleware) isQuiet(path string) bool {
	for _, p := range m.quiet {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// responseWriter captures the status code. It passes Hijack through so
// websocket upgrades still work behind it.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// sanitizePath redacts sensitive query values.
func sanitizePath(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return path
	}
	for key := range values {
		if redactedParams[strings.ToLower(key)] {
			values[key] = []string{"REDACTED"}
		}
	}
	return path + "?" + values.Encode()
}
