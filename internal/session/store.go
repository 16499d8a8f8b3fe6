package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/mapaclientes/internal/domain"
)

// Store is an in-memory session store. Sessions do not survive a restart;
// the backend token they carry is re-issued on the next login.
type Store struct {
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewStore creates a store whose sessions live for ttl.
func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*domain.Session),
	}
}

// TTL returns the session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create starts a session for user holding the backend token.
func (s *Store) Create(token string, user domain.Usuario) *domain.Session {
	now := s.now()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		Token:     token,
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Debug("session created", "user_id", user.ID)
	return sess
}

// Get returns a copy of the session with the given id.
// Returns domain.EUNAUTHORIZED if it does not exist or has expired.
func (s *Store) Get(id string) (*domain.Session, error) {
	const op = "session.get"

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.Unauthorized(op, "Sesión inválida")
	}
	if sess.Expired(s.now()) {
		s.Delete(id)
		return nil, domain.Unauthorized(op, "La sesión expiró")
	}
	cp := *sess
	return &cp, nil
}

// Delete ends a session. Unknown ids are ignored.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of stored sessions, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Prune removes expired sessions and returns how many were removed.
func (s *Store) Prune() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run prunes expired sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Prune(); n > 0 {
				s.logger.Info("pruned expired sessions", "count", n)
			}
		}
	}
}

// SetCookie writes the session cookie.
func (s *Store) SetCookie(w http.ResponseWriter, sess *domain.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     CookiePath,
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie tells the browser to drop the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
