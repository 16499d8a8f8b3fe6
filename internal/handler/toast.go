package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/mapaclientes/internal/service"
)

const (
	toastCookieName = "mapaclientes_toasts"
	maxQueuedToasts = 10
)

// Toast is one rendered notification.
type Toast struct {
	ID      string
	Kind    service.NotificationKind
	Message string
}

type toastQueue struct {
	items   []Toast
	touched time.Time
}

// ToastStore queues notifications per browser until the next page drains
// them. Services push through a request-scoped service.Notifier, so a POST
// that redirects still shows its outcome on the following GET.
type ToastStore struct {
	mu     sync.Mutex
	queues map[string]*toastQueue
	now    func() time.Time
	secure bool
}

// NewToastStore creates an empty store.
func NewToastStore(secure bool) *ToastStore {
	return &ToastStore{
		queues: make(map[string]*toastQueue),
		now:    time.Now,
		secure: secure,
	}
}

// Push appends a notification for the browser id, dropping the oldest once
// the queue is full.
func (s *ToastStore) Push(id string, n service.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[id]
	if !ok {
		q = &toastQueue{}
		s.queues[id] = q
	}
	// Parallel fetches failing together would otherwise stack identical toasts.
	if last := len(q.items) - 1; last >= 0 && q.items[last].Kind == n.Kind && q.items[last].Message == n.Message {
		q.touched = s.now()
		return
	}
	q.items = append(q.items, Toast{ID: uuid.NewString(), Kind: n.Kind, Message: n.Message})
	if len(q.items) > maxQueuedToasts {
		q.items = q.items[len(q.items)-maxQueuedToasts:]
	}
	q.touched = s.now()
}

// Drain returns and forgets every queued notification for id.
func (s *ToastStore) Drain(id string) []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[id]
	if !ok {
		return nil
	}
	delete(s.queues, id)
	return q.items
}

// Prune drops queues nobody has drained within maxAge.
func (s *ToastStore) Prune(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for id, q := range s.queues {
		if q.touched.Before(cutoff) {
			delete(s.queues, id)
			removed++
		}
	}
	return removed
}

// Run prunes stale queues on every tick until ctx is done.
func (s *ToastStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune(interval)
		}
	}
}

type toastKey struct{}

// Middleware identifies the browser by cookie and scopes service
// notifications raised during the request to its queue.
func (s *ToastStore) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(toastCookieName); err == nil && c.Value != "" {
			id = c.Value
		} else {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     toastCookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), toastKey{}, id)
		ctx = service.WithNotifier(ctx, service.NotifierFunc(func(n service.Notification) {
			s.Push(id, n)
		}))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Notify queues a notification for the browser making the request.
func (s *ToastStore) Notify(r *http.Request, kind service.NotificationKind, msg string) {
	if id, ok := r.Context().Value(toastKey{}).(string); ok {
		s.Push(id, service.Notification{Kind: kind, Message: msg})
	}
}

// DrainRequest returns the pending notifications for the requesting browser.
func (s *ToastStore) DrainRequest(r *http.Request) []Toast {
	id, ok := r.Context().Value(toastKey{}).(string)
	if !ok {
		return nil
	}
	return s.Drain(id)
}
