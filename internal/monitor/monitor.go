// Package monitor tracks whether the REST backend is reachable.
//
// A Monitor owns the connection status: it is the only writer, runs one check
// immediately on Start and then one per interval, and never has more than one
// check in flight. Readers get copies through Status or a subscription.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/DukeRupert/mapaclientes/internal/apiclient"
	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/metrics"
)

// Prober walks the backend's liveness paths.
type Prober interface {
	Health(ctx context.Context, paths []string) (apiclient.HealthResult, error)
}

// Monitor periodically checks the backend and publishes ConnectionStatus.
type Monitor struct {
	prober Prober
	config Config
	logger *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	status  domain.ConnectionStatus
	settled domain.ConnectionState // last non-checking state, for transition logs

	subsMu  sync.Mutex
	subs    map[int]chan domain.ConnectionStatus
	nextSub int

	// Lifecycle
	runMu   sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a Monitor. It does nothing until Start is called.
func New(prober Prober, config Config, logger *slog.Logger) (*Monitor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Monitor{
		prober:  prober,
		config:  config,
		logger:  logger.With("component", "monitor"),
		status:  domain.ConnectionStatus{State: domain.StateUnchecked},
		settled: domain.StateUnchecked,
		subs:    make(map[int]chan domain.ConnectionStatus),
		runCtx:  context.Background(),
	}, nil
}

// Start runs an immediate check and then one check per interval until Stop
// is called or ctx is canceled. Calling Start twice is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.run(runCtx)

	m.logger.Info("monitor started", "interval", m.config.Interval, "paths", m.config.Paths)
}

// Stop halts the periodic checks and drops the current status.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.runCtx = context.Background()
	m.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("monitor stopped")
	case <-time.After(m.config.ShutdownTimeout):
		m.logger.Warn("monitor shutdown timeout exceeded, a check may still be running")
	}

	m.setStatus(domain.ConnectionStatus{State: domain.StateUnchecked})
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	m.Check(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs a health check now and returns the resulting status. If a check
// is already in flight, the caller waits for that one instead of starting
// another. ctx only bounds the wait; the probe itself runs on the monitor's
// lifetime context so one impatient caller cannot cancel it for the others.
func (m *Monitor) Check(ctx context.Context) domain.ConnectionStatus {
	ch := m.group.DoChan("check", func() (any, error) {
		return m.check(), nil
	})

	select {
	case res := <-ch:
		return res.Val.(domain.ConnectionStatus)
	case <-ctx.Done():
		return m.Status()
	}
}

func (m *Monitor) check() domain.ConnectionStatus {
	m.runMu.Lock()
	ctx := m.runCtx
	m.runMu.Unlock()

	m.mu.Lock()
	checking := m.status
	checking.State = domain.StateChecking
	checking.IsLoading = true
	m.status = checking
	m.mu.Unlock()
	m.publish(checking)

	start := time.Now()
	res, err := m.prober.Health(ctx, m.config.Paths)
	duration := time.Since(start)

	next := domain.ConnectionStatus{LastChecked: time.Now()}
	if err != nil {
		next.State = domain.StateDisconnected
		next.Error = err.Error()
		m.logger.Warn("backend unreachable", "error", err, "duration_ms", duration.Milliseconds())
	} else {
		next.State = domain.StateConnected
		next.IsConnected = true
		next.Endpoint = res.Endpoint
		m.logger.Debug("backend reachable", "endpoint", res.Endpoint, "duration_ms", duration.Milliseconds())
	}
	metrics.HealthCheckCompleted(next.IsConnected, duration)

	m.setStatus(next)
	return next
}

// Status returns a copy of the current status.
func (m *Monitor) Status() domain.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) setStatus(s domain.ConnectionStatus) {
	m.mu.Lock()
	prev := m.settled
	m.status = s
	if s.State != domain.StateChecking {
		m.settled = s.State
	}
	m.mu.Unlock()

	if s.State != domain.StateChecking && prev != s.State {
		m.logger.Info("connection state changed", "from", prev, "to", s.State)
	}
	m.publish(s)
}

// Subscribe returns a channel that receives every status change and a
// function that ends the subscription. The channel holds only the latest
// status; a slow reader skips intermediate ones and never blocks the monitor.
func (m *Monitor) Subscribe() (<-chan domain.ConnectionStatus, func()) {
	ch := make(chan domain.ConnectionStatus, 1)

	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	ch <- m.Status()
	m.subs[id] = ch
	m.subsMu.Unlock()
	metrics.StatusSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			close(ch)
			m.subsMu.Unlock()
			metrics.StatusSubscribers.Dec()
		})
	}
}

func (m *Monitor) publish(s domain.ConnectionStatus) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	for _, ch := range m.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Replace the stale value the reader has not consumed yet
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
