// Package csrf protects the dashboard forms with the double-submit cookie
// pattern: a random token lives in a cookie and every unsafe request must
// echo it back in a form field or header.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
)

const (
	// CookieName is the name of the CSRF token cookie.
	CookieName = "mapaclientes_csrf"

	// FormFieldName is the hidden form field carrying the token.
	FormFieldName = "csrf_token"

	// HeaderName lets scripted requests send the token without a form body.
	HeaderName = "X-CSRF-Token"

	// TokenLength is the number of random bytes in a token.
	TokenLength = 32

	// CookieMaxAge is the lifetime of the CSRF cookie in seconds.
	CookieMaxAge = 12 * 60 * 60
)

type contextKey struct{}

// GenerateToken returns 32 random bytes, base64 URL-encoded.
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ValidateToken compares two tokens in constant time. Empty tokens never match.
func ValidateToken(cookieToken, submitted string) bool {
	if cookieToken == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(submitted)) == 1
}

// ValidateRequest checks the cookie against the header or, failing that, the
// form field.
func ValidateRequest(r *http.Request) bool {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	submitted := r.Header.Get(HeaderName)
	if submitted == "" {
		submitted = r.FormValue(FormFieldName)
	}
	return ValidateToken(cookie.Value, submitted)
}

// SetCookie writes the token cookie. It stays readable by scripts so
// websocket and fetch callers can echo it.
func SetCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Token returns the token attached by Middleware, or "" outside it.
func Token(ctx context.Context) string {
	t, _ := ctx.Value(contextKey{}).(string)
	return t
}

// Middleware issues a token cookie when the browser has none and rejects
// POST, PUT, PATCH and DELETE requests whose token does not match.
type Middleware struct {
	secure bool
	logger *slog.Logger
}

// NewMiddleware creates the CSRF middleware.
func NewMiddleware(secure bool, logger *slog.Logger) *Middleware {
	return &Middleware{secure: secure, logger: logger}
}

// Handler wraps next with CSRF protection.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
			token = c.Value
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !ValidateRequest(r) {
				m.logger.Warn("csrf token mismatch", "method", r.Method, "path", r.URL.Path)
				http.Error(w, "Token de seguridad inválido. Recarga la página e intenta nuevamente.", http.StatusForbidden)
				return
			}
		}

		if token == "" {
			var err error
			token, err = GenerateToken()
			if err != nil {
				m.logger.Error("failed to generate csrf token", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			SetCookie(w, token, m.secure)
		}

		ctx := context.WithValue(r.Context(), contextKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
