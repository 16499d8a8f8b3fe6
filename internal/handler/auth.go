package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/mapaclientes/internal/auth"
	"github.com/DukeRupert/mapaclientes/internal/csrf"
	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/service"
	"github.com/DukeRupert/mapaclientes/internal/session"
)

// =============================================================================
// Handler Configuration
// =============================================================================

// Authenticator checks credentials against the backend.
type Authenticator interface {
	Login(ctx context.Context, c service.Credentials) (*service.LoginResult, error)
}

// SessionManager is the part of session.Store the login flow needs.
type SessionManager interface {
	Create(token string, user domain.Usuario) *domain.Session
	Delete(id string)
	SetCookie(w http.ResponseWriter, sess *domain.Session, secure bool)
}

// LoginLimiter forgets failed attempts after a successful login.
type LoginLimiter interface {
	ResetLogin(r *http.Request)
}

// AuthHandler handles login and logout.
//
// Routes handled:
//   - GET  /login  -> ShowLogin
//   - POST /login  -> Login
//   - POST /logout -> Logout
//   - GET  /logout -> Logout
type AuthHandler struct {
	auth     Authenticator
	sessions SessionManager
	limiter  LoginLimiter
	renderer TemplateRenderer
	logger   *slog.Logger
	isSecure bool
	required bool
}

// AuthHandlerConfig holds the dependencies of AuthHandler.
type AuthHandlerConfig struct {
	Auth     Authenticator
	Sessions SessionManager
	Limiter  LoginLimiter
	Renderer TemplateRenderer
	Logger   *slog.Logger
	IsSecure bool
	Required bool
}

// NewAuthHandler creates a new AuthHandler with the required dependencies.
func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		auth:     cfg.Auth,
		sessions: cfg.Sessions,
		limiter:  cfg.Limiter,
		renderer: cfg.Renderer,
		logger:   cfg.Logger,
		isSecure: cfg.IsSecure,
		required: cfg.Required,
	}
}

// =============================================================================
// Template Data Types
// =============================================================================

// Flash represents a message shown above the login form.
type Flash struct {
	Type    string // "success", "error", or "info"
	Message string
}

// AuthPageData contains the data for the login page.
type AuthPageData struct {
	CurrentPath string
	CSRFToken   string
	Form        map[string]string // Form field values for re-populating on error
	Errors      map[string]string // Field-level validation errors
	Flash       *Flash
	ReturnTo    string
}

// =============================================================================
// GET /login - Show Login Form
// =============================================================================

// ShowLogin renders the login form. Logged-in users, and everybody when the
// login gate is disabled, go straight to return_to or the dashboard.
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	returnTo := r.URL.Query().Get("return_to")
	if !h.required || auth.GetSession(r.Context()) != nil {
		http.Redirect(w, r, safeReturnTo(returnTo), http.StatusSeeOther)
		return
	}

	var flash *Flash
	if r.URL.Query().Get("logout") == "1" {
		flash = &Flash{Type: "success", Message: "Sesión cerrada correctamente"}
	}

	h.renderLogin(w, r, http.StatusOK, AuthPageData{
		Form:     map[string]string{},
		Errors:   map[string]string{},
		Flash:    flash,
		ReturnTo: returnTo,
	})
}

// =============================================================================
// POST /login - Process Login
// =============================================================================

// Login processes the login form submission.
//
// Success creates a session bound to the backend token and redirects to
// return_to or the dashboard. Failure re-renders the form keeping the email
// but never the password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		h.renderLogin(w, r, http.StatusBadRequest, AuthPageData{
			Flash: &Flash{Type: "error", Message: "Formulario inválido. Intenta nuevamente."},
		})
		return
	}

	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	returnTo := r.FormValue("return_to")
	data := AuthPageData{
		Form:     map[string]string{"Email": email},
		Errors:   map[string]string{},
		ReturnTo: returnTo,
	}

	result, err := h.auth.Login(r.Context(), service.Credentials{
		Email:    email,
		Password: r.FormValue("password"),
	})
	if err != nil {
		var ve *domain.ValidationError
		switch {
		case errors.As(err, &ve):
			data.Errors = ve.Fields
			h.renderLogin(w, r, http.StatusUnprocessableEntity, data)
		case domain.ErrorCode(err) == domain.EUNAUTHORIZED:
			data.Flash = &Flash{Type: "error", Message: domain.ErrorMessage(err)}
			h.renderLogin(w, r, http.StatusUnauthorized, data)
		default:
			h.logger.Error("login failed", "error", err)
			data.Flash = &Flash{Type: "error", Message: service.MsgLoadError}
			h.renderLogin(w, r, ErrorCodeToHTTPStatus(domain.ErrorCode(err)), data)
		}
		return
	}

	sess := h.sessions.Create(result.Token, result.User)
	h.sessions.SetCookie(w, sess, h.isSecure)
	if h.limiter != nil {
		h.limiter.ResetLogin(r)
	}

	h.logger.Info("session created", "user_id", result.User.ID)
	http.Redirect(w, r, safeReturnTo(returnTo), http.StatusSeeOther)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data AuthPageData) {
	if data.Form == nil {
		data.Form = map[string]string{}
	}
	if data.Errors == nil {
		data.Errors = map[string]string{}
	}
	data.CurrentPath = "/login"
	data.CSRFToken = csrf.Token(r.Context())
	h.renderer.RenderStatus(w, status, "auth/login", data)
}

// =============================================================================
// /logout
// =============================================================================

// Logout drops the session and clears the cookie. The backend token simply
// stops being used.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := auth.GetSession(r.Context()); sess != nil {
		h.sessions.Delete(sess.ID)
		h.logger.Info("session ended", "user_id", sess.User.ID)
	}
	session.ClearCookie(w, h.isSecure)

	if !h.required {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login?logout=1", http.StatusSeeOther)
}

// RegisterRoutes registers the auth routes. limit wraps POST /login.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, wrap, limit func(http.Handler) http.Handler) {
	mux.Handle("GET /login", wrap(http.HandlerFunc(h.ShowLogin)))
	mux.Handle("POST /login", wrap(limit(http.HandlerFunc(h.Login))))
	mux.Handle("POST /logout", wrap(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /logout", wrap(http.HandlerFunc(h.Logout)))
}

// safeReturnTo returns returnTo if it is a local path, else the dashboard.
func safeReturnTo(returnTo string) string {
	if returnTo != "" && isSafeRedirectURL(returnTo) && !strings.HasPrefix(returnTo, "/login") {
		return returnTo
	}
	return "/"
}
