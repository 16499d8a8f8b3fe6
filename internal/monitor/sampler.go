package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/mapaclientes/internal/domain"
)

// Sampler collects request statistics about the backend while switched on.
// It is independent from the Monitor: the configuration page toggles it and
// it keeps counting across toggles until Reset.
type Sampler struct {
	prober Prober
	config SamplerConfig
	logger *slog.Logger

	mu     sync.RWMutex
	stats  domain.ProbeStats
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSampler creates a stopped Sampler.
func NewSampler(prober Prober, config SamplerConfig, logger *slog.Logger) (*Sampler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampler config: %w", err)
	}
	return &Sampler{
		prober: prober,
		config: config,
		logger: logger.With("component", "sampler"),
		stats:  domain.ProbeStats{History: []domain.ProbeSample{}},
	}, nil
}

// Start begins sampling every interval. The first sample is taken after one
// interval. Returns false if sampling was already on.
func (s *Sampler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats.Running {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stats.Running = true

	s.wg.Add(1)
	go s.run(runCtx)

	s.logger.Info("sampling started", "interval", s.config.Interval)
	return true
}

// Stop ends sampling and waits for an in-flight probe to finish.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.stats.Running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.stats.Running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("sampling stopped")
}

// Toggle flips sampling on or off and reports whether it is now running.
func (s *Sampler) Toggle(ctx context.Context) bool {
	if s.Running() {
		s.Stop()
		return false
	}
	s.Start(ctx)
	return true
}

// Running reports whether sampling is on.
func (s *Sampler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.Running
}

func (s *Sampler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}

// Sample probes the backend once and records the outcome.
func (s *Sampler) Sample(ctx context.Context) domain.ProbeSample {
	start := time.Now()
	_, err := s.prober.Health(ctx, s.config.Paths)
	sample := domain.ProbeSample{
		Timestamp:    time.Now(),
		Success:      err == nil,
		ResponseTime: time.Since(start),
	}
	if err != nil {
		if ctx.Err() != nil {
			// Canceled by Stop; not a backend failure
			return sample
		}
		sample.Error = err.Error()
	}
	s.Record(sample)
	return sample
}

// Record adds a sample to the statistics.
func (s *Sampler) Record(sample domain.ProbeSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.stats
	st.TotalRequests++
	if sample.Success {
		st.Successful++
	} else {
		st.Failed++
		if sample.Error != "" {
			st.LastError = sample.Error
		}
	}

	st.History = append(st.History, sample)
	if over := len(st.History) - s.config.HistorySize; over > 0 {
		st.History = append([]domain.ProbeSample(nil), st.History[over:]...)
	}

	var sum time.Duration
	var n int
	for _, h := range st.History {
		if h.Success && h.ResponseTime > 0 {
			sum += h.ResponseTime
			n++
		}
	}
	if n > 0 {
		st.AverageResponse = sum / time.Duration(n)
	} else {
		st.AverageResponse = 0
	}
}

// Stats returns a copy of the current statistics.
func (s *Sampler) Stats() domain.ProbeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.stats
	out.History = append([]domain.ProbeSample(nil), s.stats.History...)
	return out
}

// Reset clears all counters and history. Sampling keeps its on/off state.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	running := s.stats.Running
	s.stats = domain.ProbeStats{Running: running, History: []domain.ProbeSample{}}
}
