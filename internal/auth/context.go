// Package auth provides authentication context helpers.
//
// It is imported by both middleware and handler packages, so it must not
// import either of them.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/mapaclientes/internal/domain"
)

type contextKey string

const sessionContextKey contextKey = "session"

// GetSession returns the session attached by the session middleware, or nil.
func GetSession(ctx context.Context) *domain.Session {
	sess, ok := ctx.Value(sessionContextKey).(*domain.Session)
	if !ok {
		return nil
	}
	return sess
}

// SetSession stores a session in the context.
func SetSession(ctx context.Context, sess *domain.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// GetUser returns the logged-in user, or nil for anonymous requests.
//
//	user := auth.GetUser(r.Context())
//	if user == nil {
//	    // anonymous
//	}
func GetUser(ctx context.Context) *domain.Usuario {
	sess := GetSession(ctx)
	if sess == nil {
		return nil
	}
	return &sess.User
}

// GetUserFromRequest is GetUser for a request.
func GetUserFromRequest(r *http.Request) *domain.Usuario {
	return GetUser(r.Context())
}
