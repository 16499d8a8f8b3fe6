package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/mapaclientes/internal/auth"
	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/service"
	"github.com/DukeRupert/mapaclientes/internal/session"
)

// =============================================================================
// Mock Authenticator Implementation
// =============================================================================

type mockAuthenticator struct {
	LoginFunc func(ctx context.Context, c service.Credentials) (*service.LoginResult, error)
	calls     int
}

func (m *mockAuthenticator) Login(ctx context.Context, c service.Credentials) (*service.LoginResult, error) {
	m.calls++
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, c)
	}
	return nil, errors.New("LoginFunc not implemented")
}

type mockLimiter struct {
	resets int
}

func (m *mockLimiter) ResetLogin(r *http.Request) { m.resets++ }

// =============================================================================
// Test Helpers
// =============================================================================

type authFixture struct {
	handler  *AuthHandler
	auth     *mockAuthenticator
	sessions *session.Store
	limiter  *mockLimiter
	renderer *stubRenderer
}

func newAuthFixture(required bool) *authFixture {
	f := &authFixture{
		auth:     &mockAuthenticator{},
		sessions: session.NewStore(time.Hour, discardLogger()),
		limiter:  &mockLimiter{},
		renderer: &stubRenderer{},
	}
	f.handler = NewAuthHandler(AuthHandlerConfig{
		Auth:     f.auth,
		Sessions: f.sessions,
		Limiter:  f.limiter,
		Renderer: f.renderer,
		Logger:   discardLogger(),
		Required: required,
	})
	return f
}

func loginRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func authPage(t *testing.T, r *stubRenderer) AuthPageData {
	t.Helper()
	call := r.last(t)
	if call.Name != "auth/login" {
		t.Fatalf("rendered %q, want auth/login", call.Name)
	}
	data, ok := call.Data.(AuthPageData)
	if !ok {
		t.Fatalf("rendered data is %T", call.Data)
	}
	return data
}

// =============================================================================
// GET /login
// =============================================================================

func TestShowLogin_RendersForm(t *testing.T) {
	f := newAuthFixture(true)
	rec := httptest.NewRecorder()
	f.handler.ShowLogin(rec, httptest.NewRequest(http.MethodGet, "/login?return_to=/clientes", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := authPage(t, f.renderer)
	if data.ReturnTo != "/clientes" {
		t.Errorf("ReturnTo = %q, want /clientes", data.ReturnTo)
	}
	if data.Flash != nil {
		t.Errorf("unexpected flash %+v", data.Flash)
	}
}

func TestShowLogin_AfterLogoutShowsFlash(t *testing.T) {
	f := newAuthFixture(true)
	rec := httptest.NewRecorder()
	f.handler.ShowLogin(rec, httptest.NewRequest(http.MethodGet, "/login?logout=1", nil))

	data := authPage(t, f.renderer)
	if data.Flash == nil || data.Flash.Type != "success" {
		t.Fatalf("Flash = %+v, want success flash", data.Flash)
	}
}

func TestShowLogin_GateDisabledRedirects(t *testing.T) {
	f := newAuthFixture(false)
	rec := httptest.NewRecorder()
	f.handler.ShowLogin(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}

func TestShowLogin_LoggedInRedirectsToReturnTo(t *testing.T) {
	f := newAuthFixture(true)
	sess := f.sessions.Create("backend-token", domain.Usuario{ID: 1, Nombre: "Ana"})

	req := httptest.NewRequest(http.MethodGet, "/login?return_to=/camiones", nil)
	req = req.WithContext(auth.SetSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	f.handler.ShowLogin(rec, req)

	if loc := rec.Header().Get("Location"); loc != "/camiones" {
		t.Errorf("Location = %q, want /camiones", loc)
	}
}

// =============================================================================
// POST /login
// =============================================================================

func TestLogin_Success_CreatesSession(t *testing.T) {
	f := newAuthFixture(true)
	f.auth.LoginFunc = func(ctx context.Context, c service.Credentials) (*service.LoginResult, error) {
		if c.Email != "ana@example.com" {
			t.Errorf("email = %q, want normalised ana@example.com", c.Email)
		}
		return &service.LoginResult{Token: "jwt", User: domain.Usuario{ID: 9, Nombre: "Ana"}}, nil
	}

	rec := httptest.NewRecorder()
	f.handler.Login(rec, loginRequest(url.Values{
		"email":     {"  Ana@Example.com "},
		"password":  {"secreto"},
		"return_to": {"/dias-entrega"},
	}))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dias-entrega" {
		t.Errorf("Location = %q, want /dias-entrega", loc)
	}

	cookie := findCookie(rec, session.CookieName)
	if cookie == nil {
		t.Fatal("session cookie not set")
	}
	sess, err := f.sessions.Get(cookie.Value)
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}
	if sess.Token != "jwt" || sess.User.ID != 9 {
		t.Errorf("session = %+v", sess)
	}
	if f.limiter.resets != 1 {
		t.Errorf("limiter resets = %d, want 1", f.limiter.resets)
	}
}

func TestLogin_UnsafeReturnToGoesHome(t *testing.T) {
	f := newAuthFixture(true)
	f.auth.LoginFunc = func(ctx context.Context, c service.Credentials) (*service.LoginResult, error) {
		return &service.LoginResult{Token: "jwt", User: domain.Usuario{ID: 1}}, nil
	}

	for _, returnTo := range []string{"https://evil.example", "//evil.example", "/login?x=1", ""} {
		rec := httptest.NewRecorder()
		f.handler.Login(rec, loginRequest(url.Values{"email": {"a@b.c"}, "password": {"x"}, "return_to": {returnTo}}))
		if loc := rec.Header().Get("Location"); loc != "/" {
			t.Errorf("return_to %q: Location = %q, want /", returnTo, loc)
		}
	}
}

func TestLogin_ValidationError_422(t *testing.T) {
	f := newAuthFixture(true)
	f.auth.LoginFunc = func(ctx context.Context, c service.Credentials) (*service.LoginResult, error) {
		return nil, domain.NewValidationError("auth.login", "password", "La contraseña es requerida")
	}

	rec := httptest.NewRecorder()
	f.handler.Login(rec, loginRequest(url.Values{"email": {"a@b.c"}}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	data := authPage(t, f.renderer)
	if data.Errors["password"] == "" {
		t.Error("password error missing")
	}
	if data.Form["Email"] != "a@b.c" {
		t.Errorf("email not kept: %q", data.Form["Email"])
	}
}

func TestLogin_Rejected_401(t *testing.T) {
	f := newAuthFixture(true)
	f.auth.LoginFunc = func(ctx context.Context, c service.Credentials) (*service.LoginResult, error) {
		return nil, domain.Unauthorized("auth.login", "Credenciales inválidas")
	}

	rec := httptest.NewRecorder()
	f.handler.Login(rec, loginRequest(url.Values{"email": {"a@b.c"}, "password": {"mala"}}))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	data := authPage(t, f.renderer)
	if data.Flash == nil || data.Flash.Message != "Credenciales inválidas" {
		t.Errorf("Flash = %+v", data.Flash)
	}
	if findCookie(rec, session.CookieName) != nil {
		t.Error("no session cookie expected on failure")
	}
	if f.limiter.resets != 0 {
		t.Error("failed logins must not reset the limiter")
	}
}

func TestLogin_BackendDown_503(t *testing.T) {
	f := newAuthFixture(true)
	f.auth.LoginFunc = func(ctx context.Context, c service.Credentials) (*service.LoginResult, error) {
		return nil, domain.Unavailable(errors.New("dial tcp: refused"), "auth.login")
	}

	rec := httptest.NewRecorder()
	f.handler.Login(rec, loginRequest(url.Values{"email": {"a@b.c"}, "password": {"x"}}))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if data := authPage(t, f.renderer); data.Flash == nil || data.Flash.Message != service.MsgLoadError {
		t.Errorf("Flash = %+v", data.Flash)
	}
}

// =============================================================================
// Logout
// =============================================================================

func TestLogout_ClearsCookieAndSession(t *testing.T) {
	f := newAuthFixture(true)
	sess := f.sessions.Create("jwt", domain.Usuario{ID: 3})

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req = req.WithContext(auth.SetSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	f.handler.Logout(rec, req)

	cookie := findCookie(rec, session.CookieName)
	if cookie == nil {
		t.Fatal("session cookie not found in response")
	}
	if cookie.MaxAge != -1 {
		t.Errorf("cookie MaxAge = %d, want -1 (deleted)", cookie.MaxAge)
	}
	if _, err := f.sessions.Get(sess.ID); err == nil {
		t.Error("session should be deleted")
	}
	if loc := rec.Header().Get("Location"); loc != "/login?logout=1" {
		t.Errorf("Location = %q, want /login?logout=1", loc)
	}
}

func TestLogout_GateDisabledGoesHome(t *testing.T) {
	f := newAuthFixture(false)
	rec := httptest.NewRecorder()
	f.handler.Logout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}

// =============================================================================
// isSafeRedirectURL Tests
// =============================================================================

func TestIsSafeRedirectURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		safe bool
	}{
		{"simple path", "/clientes", true},
		{"path with query", "/clientes?q=ana&page=2", true},
		{"nested path", "/clientes/12/editar", true},
		{"root path", "/", true},
		{"protocol-relative", "//evil.com", false},
		{"protocol-relative with path", "//evil.com/phishing", false},
		{"backslash trick", "/\\evil.com", false},
		{"http URL", "http://evil.com", false},
		{"https URL", "https://evil.com", false},
		{"javascript scheme", "javascript:alert(1)", false},
		{"data scheme", "data:text/html,<script>alert(1)</script>", false},
		{"empty", "", false},
		{"relative without slash", "clientes", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSafeRedirectURL(tt.url); got != tt.safe {
				t.Errorf("isSafeRedirectURL(%q) = %v, want %v", tt.url, got, tt.safe)
			}
		})
	}
}
