package handler

import (
	"io/fs"
	"net/http"

	"github.com/DukeRupert/mapaclientes/internal/domain"
)

// Routes groups the page handlers and the middleware the router applies.
type Routes struct {
	Dashboard   *DashboardHandler
	Clientes    *ClienteHandler
	Camiones    *EntityHandler[domain.Camion]
	DiasEntrega *EntityHandler[domain.DiaEntrega]
	Config      *ConfigHandler
	Status      *StatusHandler
	Auth        *AuthHandler

	// Static serves /static/. Nil disables it.
	Static fs.FS
	// Metrics serves /metrics. Nil disables it.
	Metrics http.Handler

	// RequireUser gates every page except /login, /health and assets.
	RequireUser func(http.Handler) http.Handler
	// LoginLimit wraps POST /login.
	LoginLimit func(http.Handler) http.Handler
}

func identity(next http.Handler) http.Handler { return next }

// NewRouter registers every dashboard route on a fresh mux. Unknown paths
// redirect to the dashboard.
func NewRouter(rt Routes) *http.ServeMux {
	requireUser := rt.RequireUser
	if requireUser == nil {
		requireUser = identity
	}
	loginLimit := rt.LoginLimit
	if loginLimit == nil {
		loginLimit = identity
	}

	mux := http.NewServeMux()

	if rt.Static != nil {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(rt.Static)))
	}
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rt.Auth.RegisterRoutes(mux, identity, loginLimit)

	dashboard := requireUser(http.HandlerFunc(rt.Dashboard.Show))
	mux.Handle("GET /{$}", dashboard)
	mux.Handle("GET /dashboard", dashboard)

	rt.Clientes.RegisterRoutes(mux, requireUser)
	rt.Camiones.RegisterRoutes(mux, requireUser)
	rt.DiasEntrega.RegisterRoutes(mux, requireUser)
	rt.Config.RegisterRoutes(mux, requireUser)
	rt.Status.RegisterRoutes(mux, requireUser)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	return mux
}
