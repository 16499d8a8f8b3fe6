package metrics

import (
	"strings"
	"time"
)

// APIRequestCompleted records one call to the REST backend.
func APIRequestCompleted(method, path, outcome string, duration time.Duration) {
	resource := Resource(path)
	APIRequestsTotal.WithLabelValues(method, resource, outcome).Inc()
	APIRequestDuration.WithLabelValues(method, resource).Observe(duration.Seconds())
}

// HealthCheckCompleted records the outcome of one monitor check.
func HealthCheckCompleted(connected bool, duration time.Duration) {
	result := "disconnected"
	if connected {
		result = "connected"
		BackendConnected.Set(1)
	} else {
		BackendConnected.Set(0)
	}
	HealthChecksTotal.WithLabelValues(result).Inc()
	HealthCheckDuration.Observe(duration.Seconds())
}

// PanelMutation records a create, update or delete issued by a panel.
func PanelMutation(resource, action string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	PanelMutationsTotal.WithLabelValues(resource, action, status).Inc()
}

// Resource reduces a backend path to its first segment so ids and query
// strings never become label values ("/camiones/3?x=1" -> "camiones").
func Resource(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return "root"
	}
	if i := strings.Index(path, "/"); i >= 0 {
		path = path[:i]
	}
	return path
}
