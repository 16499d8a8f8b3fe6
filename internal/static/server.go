// Package static serves a prebuilt single-page asset directory with a
// client-side routing fallback and a liveness endpoint.
package static

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/DukeRupert/mapaclientes/internal/middleware"
)

const indexFile = "index.html"

// Config configures a Server.
type Config struct {
	Dir    string
	Port   int
	Env    string
	Logger *slog.Logger
}

// Server serves Dir and falls back to its index.html for unknown paths.
type Server struct {
	dir    string
	port   int
	env    string
	logger *slog.Logger
	files  http.Handler
	now    func() time.Time
}

// New creates a static server. The directory does not have to exist yet;
// its presence is reported by Diagnose and /health.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "dist"
	}
	return &Server{
		dir:    dir,
		port:   cfg.Port,
		env:    cfg.Env,
		logger: logger,
		files:  http.FileServer(http.Dir(dir)),
		now:    time.Now,
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Port        int    `json:"port"`
	DistExists  bool   `json:"distExists"`
	IndexExists bool   `json:"indexExists"`
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /", s.serve)

	return middleware.Stack(
		s.recoverPlain,
		middleware.NewRequestLoggingMiddleware(s.logger).WithQuietPrefixes().Handler,
	)(mux)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "OK",
		Timestamp:   s.now().UTC().Format(time.RFC3339Nano),
		Port:        s.port,
		DistExists:  isDir(s.dir),
		IndexExists: isFile(s.indexPath()),
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode health response", "error", err)
	}
}

// serve hands existing files to the file server and everything else to
// index.html so that client-side routes survive a reload.
func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	target := filepath.Join(s.dir, filepath.FromSlash(name))

	if info, err := os.Stat(target); err == nil {
		if !info.IsDir() || isFile(filepath.Join(target, indexFile)) {
			s.files.ServeHTTP(w, r)
			return
		}
	}

	if !isFile(s.indexPath()) {
		http.Error(w, "index.html not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.indexPath())
}

// recoverPlain turns a panic into a plain-text 500.
func (s *Server) recoverPlain(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("panic serving static asset",
				"panic", fmt.Sprint(rec),
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			http.Error(w, "Something went wrong!", http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// Diagnostics is what Diagnose found on disk.
type Diagnostics struct {
	Dir         string
	DistExists  bool
	IndexExists bool
	Entries     []string
	WorkDir     string
	WorkEntries []string
}

// Diagnose inspects the asset directory and logs what a deploy needs to
// know when the page comes up blank.
func (s *Server) Diagnose() Diagnostics {
	abs, err := filepath.Abs(s.dir)
	if err != nil {
		abs = s.dir
	}
	d := Diagnostics{
		Dir:         abs,
		DistExists:  isDir(s.dir),
		IndexExists: isFile(s.indexPath()),
	}

	s.logger.Info("static server starting",
		"port", s.port,
		"dir", d.Dir,
		"env", s.env,
		"dist_exists", d.DistExists,
	)

	if d.DistExists {
		d.Entries = listDir(s.dir)
		s.logger.Info("asset directory contents", "entries", strings.Join(d.Entries, ", "))
		s.logger.Info("index lookup", "index_exists", d.IndexExists)
		if !d.IndexExists {
			s.logger.Warn("index.html missing, client routes will 404", "path", s.indexPath())
		}
		return d
	}

	d.WorkDir, _ = os.Getwd()
	d.WorkEntries = listDir(".")
	s.logger.Warn("asset directory not found",
		"dir", d.Dir,
		"cwd", d.WorkDir,
		"cwd_entries", strings.Join(d.WorkEntries, ", "),
	)
	return d
}

func (s *Server) indexPath() string {
	return filepath.Join(s.dir, indexFile)
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func listDir(p string) []string {
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names
}
