package domain

import "time"

// ConnectionState is the health monitor's view of the backend.
type ConnectionState string

const (
	StateUnchecked    ConnectionState = "unchecked"
	StateChecking     ConnectionState = "checking"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// ConnectionStatus is a point-in-time snapshot published by the monitor.
// Readers always get copies.
type ConnectionStatus struct {
	State       ConnectionState `json:"state"`
	IsConnected bool            `json:"isConnected"`
	IsLoading   bool            `json:"isLoading"`
	Error       string          `json:"error,omitempty"`
	LastChecked time.Time       `json:"lastChecked,omitzero"`
	Endpoint    string          `json:"endpoint,omitempty"`
}

// Label returns the Spanish indicator text for the status.
func (s ConnectionStatus) Label() string {
	switch s.State {
	case StateConnected:
		return "Conectado"
	case StateDisconnected:
		return "Desconectado"
	case StateChecking:
		return "Verificando..."
	default:
		return "Sin verificar"
	}
}

// ProbeSample is one entry in the probe statistics history.
type ProbeSample struct {
	Timestamp    time.Time     `json:"timestamp"`
	Success      bool          `json:"success"`
	ResponseTime time.Duration `json:"responseTime"`
	Error        string        `json:"error,omitempty"`
}

// ProbeStats summarises recent probes of the backend.
type ProbeStats struct {
	Running         bool          `json:"running"`
	TotalRequests   int           `json:"totalRequests"`
	Successful      int           `json:"successfulRequests"`
	Failed          int           `json:"failedRequests"`
	AverageResponse time.Duration `json:"averageResponseTime"`
	LastError       string        `json:"lastError,omitempty"`
	History         []ProbeSample `json:"history"`
}

// SuccessRate returns the percentage of successful probes, 0 with no samples.
func (s ProbeStats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.TotalRequests) * 100
}
