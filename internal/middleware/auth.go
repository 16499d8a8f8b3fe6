// Package middleware contains HTTP middleware for the MapaClientes dashboard.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler
// and are composed with Stack.
package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/DukeRupert/mapaclientes/internal/apiclient"
	"github.com/DukeRupert/mapaclientes/internal/auth"
	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/session"
)

// SessionStore is the part of session.Store the middleware needs.
type SessionStore interface {
	Get(id string) (*domain.Session, error)
}

// AuthMiddleware loads sessions and gates pages behind a login.
type AuthMiddleware struct {
	store    SessionStore
	logger   *slog.Logger
	required bool // false disables the login gate entirely
	isSecure bool
}

// NewAuthMiddleware creates an AuthMiddleware. When required is false every
// request is treated as allowed, which is how the dashboard runs against a
// backend without /usuarios/login.
func NewAuthMiddleware(store SessionStore, logger *slog.Logger, required, isSecure bool) *AuthMiddleware {
	return &AuthMiddleware{
		store:    store,
		logger:   logger,
		required: required,
		isSecure: isSecure,
	}
}

// WithSession attaches the session named by the cookie, if valid, and
// forwards its backend token to upstream calls. It never blocks a request.
func (m *AuthMiddleware) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(session.CookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := m.store.Get(cookie.Value)
		if err != nil {
			session.ClearCookie(w, m.isSecure)
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.SetSession(r.Context(), sess)
		if sess.Token != "" {
			ctx = apiclient.WithToken(ctx, sess.Token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser redirects anonymous HTML requests to /login and answers
// anonymous JSON requests with 401. Must run after WithSession.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.required || auth.GetSession(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}

		if isAPIRequest(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"Inicia sesión para continuar"}`))
			return
		}

		returnTo := r.URL.Path
		if r.URL.RawQuery != "" {
			returnTo += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, "/login?return_to="+url.QueryEscape(returnTo), http.StatusSeeOther)
	})
}

// Required reports whether the login gate is enabled.
func (m *AuthMiddleware) Required() bool { return m.required }

// isAPIRequest reports whether the caller wants JSON rather than a page.
func isAPIRequest(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return false
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/status") || strings.HasPrefix(r.URL.Path, "/ws/")
}

// Stack composes middleware so the first one listed runs first.
//
//	stack := Stack(logging.Handler, authMw.WithSession, authMw.RequireUser)
//	mux.Handle("GET /camiones", stack(camionesHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
