package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/mapaclientes/internal/domain"
)

// =============================================================================
// Rate Limiter
// =============================================================================

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	maxAttempts int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*rateLimitEntry

	stop     chan struct{}
	stopOnce sync.Once
}

type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop. Call
// Close to stop the loop.
func NewRateLimiter(maxAttempts int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		entries:     make(map[string]*rateLimitEntry),
		stop:        make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow counts one attempt for key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry := rl.entryLocked(key)
	if entry.count >= rl.maxAttempts {
		return false
	}
	entry.count++
	return true
}

// RecordFailure counts an attempt without checking the limit.
func (rl *RateLimiter) RecordFailure(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.entryLocked(key).count++
}

// entryLocked returns the live entry for key, starting a new window when the
// old one has passed. mu must be held.
func (rl *RateLimiter) entryLocked(key string) *rateLimitEntry {
	now := rl.now()
	entry, ok := rl.entries[key]
	if !ok || now.Sub(entry.windowStart) > rl.window {
		entry = &rateLimitEntry{windowStart: now}
		rl.entries[key] = entry
	}
	return entry
}

// Reset forgets key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.entries, key)
}

// TimeUntilReset returns how long until key's window ends.
func (rl *RateLimiter) TimeUntilReset(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[key]
	if !ok {
		return 0
	}
	remaining := rl.window - rl.now().Sub(entry.windowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Close stops the cleanup loop.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, entry := range rl.entries {
				if now.Sub(entry.windowStart) > rl.window {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// =============================================================================
// Middleware
// =============================================================================

// RateLimitMiddleware rejects clients that exceed the limiter with 429.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware.
func NewRateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// Limit returns middleware that rate limits requests by client IP.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if m.limiter.Allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		m.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path, "method", r.Method)

		retryAfter := int(m.limiter.TimeUntilReset(ip).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

		msg := domain.ErrorMessage(domain.RateLimit("ratelimit"))
		if isAPIRequest(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   domain.ERATELIMIT,
				"message": msg,
			})
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(msg))
	})
}

// =============================================================================
// Login limiter
// =============================================================================

// LoginRateLimiter limits login attempts to 5 per 15 minutes per IP.
type LoginRateLimiter struct {
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewLoginRateLimiter creates the login limiter.
func NewLoginRateLimiter(logger *slog.Logger) *LoginRateLimiter {
	return &LoginRateLimiter{
		limiter: NewRateLimiter(5, 15*time.Minute),
		logger:  logger,
	}
}

// LimitLogin returns middleware for rate limiting login attempts.
func (l *LoginRateLimiter) LimitLogin(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(l.limiter, l.logger).Limit(next)
}

// ResetLogin clears the limit for ip after a successful login.
func (l *LoginRateLimiter) ResetLogin(r *http.Request) {
	l.limiter.Reset(getClientIP(r))
}

// Close stops the limiter's cleanup loop.
func (l *LoginRateLimiter) Close() { l.limiter.Close() }

// =============================================================================
// Helpers
// =============================================================================

// getClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then
// the connection's remote address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
