package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Renderer manages template parsing and rendering with isolated template sets.
// It supports two layouts:
//   - "auth" for the login page
//   - "app" for everything behind the navigation menu
//
// Templates are organized as:
//   - layouts/app.html, layouts/auth.html - base layouts
//   - components/*.html - shared fragments (nav, status badge, toasts)
//   - partials/*.html - standalone fragments, also usable inside pages
//   - pages/auth/*.html - auth layout pages, stored as "auth/<name>"
//   - pages/*.html - app layout pages, stored as "<name>"
//   - pages/<dir>/*.html - app layout pages, stored as "<dir>/<name>"
type Renderer struct {
	mu        sync.RWMutex
	templates map[string]*template.Template

	fsys     fs.FS
	watchDir string
	logger   *slog.Logger
}

// RendererConfig holds configuration for the renderer.
type RendererConfig struct {
	// FS holds the templates, normally the embedded web.Templates.
	FS fs.FS
	// WatchDir, when set, replaces FS with the directory on disk and enables
	// Watch for live reloading during development.
	WatchDir string
	Logger   *slog.Logger
}

// NewRenderer parses every template up front so a broken template fails at
// startup rather than on first request.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	fsys := cfg.FS
	if cfg.WatchDir != "" {
		fsys = os.DirFS(cfg.WatchDir)
	}
	if fsys == nil {
		return nil, errors.New("renderer: no template filesystem configured")
	}

	r := &Renderer{
		fsys:     fsys,
		watchDir: cfg.WatchDir,
		logger:   cfg.Logger,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses all templates. On error the previous set stays active.
func (r *Renderer) Reload() error {
	templates, err := parseTemplates(r.fsys)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.templates = templates
	r.mu.Unlock()
	r.logger.Debug("templates loaded", "count", len(templates))
	return nil
}

func parseTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	var components []string
	err := fs.WalkDir(fsys, "components", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".html") {
			components = append(components, p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("walk components: %w", err)
	}

	partials, err := fs.Glob(fsys, "partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob partials: %w", err)
	}
	for _, p := range partials {
		t, err := template.New("").Funcs(TemplateFuncs()).ParseFS(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("parse partial %s: %w", p, err)
		}
		templates["partial/"+baseName(p)] = t
	}

	shared := append(append([]string{}, components...), partials...)
	layouts := make(map[string]*template.Template, 2)
	for _, name := range []string{"app", "auth"} {
		files := append([]string{"layouts/" + name + ".html"}, shared...)
		t, err := template.New(name).Funcs(TemplateFuncs()).ParseFS(fsys, files...)
		if err != nil {
			return nil, fmt.Errorf("parse %s layout: %w", name, err)
		}
		layouts[name] = t
	}

	addPages := func(pattern, layout, prefix string) error {
		pages, err := fs.Glob(fsys, pattern)
		if err != nil {
			return fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, page := range pages {
			t, err := layouts[layout].Clone()
			if err != nil {
				return fmt.Errorf("clone %s layout for %s: %w", layout, page, err)
			}
			if t, err = t.ParseFS(fsys, page); err != nil {
				return fmt.Errorf("parse page %s: %w", page, err)
			}
			templates[prefix+baseName(page)] = t
		}
		return nil
	}

	if err := addPages("pages/*.html", "app", ""); err != nil {
		return nil, err
	}
	if err := addPages("pages/auth/*.html", "auth", "auth/"); err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(fsys, "pages")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read pages: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "auth" {
			continue
		}
		if err := addPages(path.Join("pages", e.Name(), "*.html"), "app", e.Name()+"/"); err != nil {
			return nil, err
		}
	}

	return templates, nil
}

func baseName(p string) string {
	return strings.TrimSuffix(path.Base(p), path.Ext(p))
}

// layoutFor returns the template to execute for a stored name.
func layoutFor(name string) string {
	switch {
	case strings.HasPrefix(name, "auth/"):
		return "auth"
	case strings.HasPrefix(name, "partial/"):
		return strings.TrimPrefix(name, "partial/")
	default:
		return "app"
	}
}

// Render executes the named template into w.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(w, layoutFor(name), data)
}

// RenderHTTP renders a page with status 200.
func (r *Renderer) RenderHTTP(w http.ResponseWriter, name string, data any) {
	r.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus renders into a buffer first so a failing template never
// produces a half-written page.
func (r *Renderer) RenderStatus(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := r.Render(&buf, name, data); err != nil {
		r.logger.Error("template execution failed", "name", name, "error", err)
		http.Error(w, "Error al mostrar la página", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// RenderPartial renders a standalone fragment, e.g. for htmx swaps.
func (r *Renderer) RenderPartial(w http.ResponseWriter, name string, data any) {
	r.RenderHTTP(w, "partial/"+name, data)
}

// ListTemplates returns the sorted names of all loaded templates.
func (r *Renderer) ListTemplates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Watch reloads templates whenever a file under WatchDir changes. It blocks
// until ctx is done and is a no-op when no WatchDir was configured.
func (r *Renderer) Watch(ctx context.Context) error {
	if r.watchDir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create template watcher: %w", err)
	}
	defer watcher.Close()

	// fsnotify is not recursive, so every directory is added.
	err = filepath.WalkDir(r.watchDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch templates: %w", err)
	}
	r.logger.Info("watching templates", "dir", r.watchDir)

	// Editors write files in bursts; reload once things settle.
	const settle = 100 * time.Millisecond
	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = watcher.Add(ev.Name)
				}
			}
			if strings.HasSuffix(ev.Name, ".html") {
				timer.Reset(settle)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("template watcher error", "error", err)
		case <-timer.C:
			if err := r.Reload(); err != nil {
				r.logger.Error("template reload failed", "error", err)
				continue
			}
			r.logger.Info("templates reloaded")
		}
	}
}
