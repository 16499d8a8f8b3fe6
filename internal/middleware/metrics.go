package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// MetricsAuthMiddleware guards /metrics with HTTP basic auth. It is disabled
// when no credentials are configured.
type MetricsAuthMiddleware struct {
	username string
	password string
	logger   *slog.Logger
}

// NewMetricsAuthMiddleware creates a new metrics auth middleware.
func NewMetricsAuthMiddleware(username, password string, logger *slog.Logger) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{username: username, password: password, logger: logger}
}

// Enabled reports whether credentials are required.
func (m *MetricsAuthMiddleware) Enabled() bool {
	return m.username != "" || m.password != ""
}

// Handler returns middleware that requires basic authentication.
func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		// Both comparisons always run so timing does not reveal which failed.
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(m.password)) == 1
		if !ok || !userOK || !passOK {
			m.logger.Warn("metrics auth failed", "ip", getClientIP(r))
			w.Header().Set("WWW-Authenticate", `Basic realm="mapaclientes metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
