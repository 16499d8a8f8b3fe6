// Package handler contains HTTP handlers for the MapaClientes dashboard.
//
// Every page is rendered inside the app layout: a persistent navigation menu,
// the backend connection indicator, and the toast area. Handlers build their
// page-specific content and hand it to Shell.Page to fill in the rest.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/DukeRupert/mapaclientes/internal/auth"
	"github.com/DukeRupert/mapaclientes/internal/csrf"
	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/service"
)

// =============================================================================
// Interfaces
// =============================================================================

// TemplateRenderer is the interface for rendering HTML templates.
// This interface allows for mocking in tests.
type TemplateRenderer interface {
	RenderHTTP(w http.ResponseWriter, name string, data any)
	RenderStatus(w http.ResponseWriter, status int, name string, data any)
	RenderPartial(w http.ResponseWriter, name string, data any)
}

// StatusSource is the part of the health monitor the shell reads.
type StatusSource interface {
	Status() domain.ConnectionStatus
	Check(ctx context.Context) domain.ConnectionStatus
	Subscribe() (<-chan domain.ConnectionStatus, func())
}

// =============================================================================
// Page data
// =============================================================================

// NavItem is one entry in the navigation menu.
type NavItem struct {
	Path   string
	Label  string
	Active bool
}

// navLinks is the fixed menu, in display order.
var navLinks = []NavItem{
	{Path: "/", Label: "Dashboard"},
	{Path: "/clientes", Label: "Clientes"},
	{Path: "/camiones", Label: "Camiones"},
	{Path: "/dias-entrega", Label: "Días de Entrega"},
	{Path: "/configuracion", Label: "Configuración"},
}

// PageData is what every app layout page receives.
type PageData struct {
	Title        string
	CurrentPath  string
	CSRFToken    string
	User         *domain.Usuario
	AuthRequired bool
	Status       domain.ConnectionStatus
	Nav          []NavItem
	Toasts       []Toast
	Content      any
}

// Shell holds what every page handler shares.
type Shell struct {
	renderer     TemplateRenderer
	status       StatusSource
	toasts       *ToastStore
	logger       *slog.Logger
	authRequired bool
}

// NewShell creates the shared page context.
func NewShell(renderer TemplateRenderer, status StatusSource, toasts *ToastStore, logger *slog.Logger, authRequired bool) *Shell {
	return &Shell{
		renderer:     renderer,
		status:       status,
		toasts:       toasts,
		logger:       logger,
		authRequired: authRequired,
	}
}

// Page fills the layout fields for r around content. Building the page
// drains the browser's pending toasts.
func (s *Shell) Page(r *http.Request, title string, content any) PageData {
	return PageData{
		Title:        title,
		CurrentPath:  r.URL.Path,
		CSRFToken:    csrf.Token(r.Context()),
		User:         auth.GetUserFromRequest(r),
		AuthRequired: s.authRequired,
		Status:       s.status.Status(),
		Nav:          navFor(r.URL.Path),
		Toasts:       s.toasts.DrainRequest(r),
		Content:      content,
	}
}

// Render renders an app page with status 200.
func (s *Shell) Render(w http.ResponseWriter, r *http.Request, name, title string, content any) {
	s.renderer.RenderHTTP(w, name, s.Page(r, title, content))
}

// RenderStatus renders an app page with the given status.
func (s *Shell) RenderStatus(w http.ResponseWriter, r *http.Request, status int, name, title string, content any) {
	s.renderer.RenderStatus(w, status, name, s.Page(r, title, content))
}

// Notify queues a toast for the requesting browser.
func (s *Shell) Notify(r *http.Request, kind service.NotificationKind, msg string) {
	s.toasts.Notify(r, kind, msg)
}

func navFor(path string) []NavItem {
	items := make([]NavItem, len(navLinks))
	copy(items, navLinks)
	for i := range items {
		if items[i].Path == "/" {
			items[i].Active = path == "/" || path == "/dashboard"
			continue
		}
		items[i].Active = path == items[i].Path || strings.HasPrefix(path, items[i].Path+"/")
	}
	return items
}

// isSafeRedirectURL accepts only same-origin relative paths.
func isSafeRedirectURL(rawURL string) bool {
	if !strings.HasPrefix(rawURL, "/") || strings.HasPrefix(rawURL, "//") || strings.HasPrefix(rawURL, "/\\") {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Scheme == "" && parsed.Host == ""
}

// redirectBack sends the browser to the list it came from, keeping the
// filter state carried in the "back" form field.
func redirectBack(w http.ResponseWriter, r *http.Request, fallback string) {
	target := r.FormValue("back")
	if target == "" || !isSafeRedirectURL(target) {
		target = fallback
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
