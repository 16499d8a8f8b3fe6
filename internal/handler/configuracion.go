package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/mapaclientes/internal/csrf"
	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/service"
)

// ProbeSampler is the part of monitor.Sampler the configuration page drives.
type ProbeSampler interface {
	Toggle(ctx context.Context) bool
	Stats() domain.ProbeStats
	Reset()
}

// Pinger runs the connectivity tests. Results are reported as notifications.
type Pinger interface {
	PingBackend(ctx context.Context) error
	PingDatabase(ctx context.Context) error
}

// ConfigHandler serves the configuration page: connection state, the
// connectivity tests and the probe statistics monitor.
//
// Routes handled:
//   - GET  /configuracion                -> Show
//   - POST /configuracion/verificar      -> Check
//   - POST /configuracion/ping           -> PingBackend
//   - POST /configuracion/ping-db        -> PingDatabase
//   - POST /configuracion/monitor        -> ToggleMonitor
//   - POST /configuracion/monitor/reset  -> ResetMonitor
type ConfigHandler struct {
	shell         *Shell
	status        StatusSource
	sampler       ProbeSampler
	pinger        Pinger
	apiURL        string
	statsInterval time.Duration
	// appCtx outlives requests; the sampler keeps running after the
	// toggling request has finished.
	appCtx context.Context
	logger *slog.Logger
}

// ConfigHandlerConfig holds the dependencies of ConfigHandler.
type ConfigHandlerConfig struct {
	Shell         *Shell
	Status        StatusSource
	Sampler       ProbeSampler
	Pinger        Pinger
	APIURL        string
	StatsInterval time.Duration
	AppContext    context.Context
	Logger        *slog.Logger
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(cfg ConfigHandlerConfig) *ConfigHandler {
	appCtx := cfg.AppContext
	if appCtx == nil {
		appCtx = context.Background()
	}
	return &ConfigHandler{
		shell:         cfg.Shell,
		status:        cfg.Status,
		sampler:       cfg.Sampler,
		pinger:        cfg.Pinger,
		apiURL:        cfg.APIURL,
		statsInterval: cfg.StatsInterval,
		appCtx:        appCtx,
		logger:        cfg.Logger,
	}
}

// ConfigView is the content of the configuration page.
type ConfigView struct {
	Connection    domain.ConnectionStatus
	APIURL        string
	Stats         domain.ProbeStats
	StatsInterval time.Duration
	CSRFToken     string
}

// Show handles GET /configuracion.
func (h *ConfigHandler) Show(w http.ResponseWriter, r *http.Request) {
	stats := h.sampler.Stats()
	// Newest first.
	history := make([]domain.ProbeSample, len(stats.History))
	for i, s := range stats.History {
		history[len(history)-1-i] = s
	}
	stats.History = history

	view := ConfigView{
		Connection:    h.status.Status(),
		APIURL:        h.apiURL,
		Stats:         stats,
		StatsInterval: h.statsInterval,
		CSRFToken:     csrf.Token(r.Context()),
	}
	h.shell.Render(w, r, "configuracion", "Configuración", view)
}

// Check handles POST /configuracion/verificar.
func (h *ConfigHandler) Check(w http.ResponseWriter, r *http.Request) {
	if st := h.status.Check(r.Context()); st.IsConnected {
		h.shell.Notify(r, service.NotifySuccess, "Backend conectado ("+st.Endpoint+")")
	} else {
		h.shell.Notify(r, service.NotifyError, "Backend desconectado: "+st.Error)
	}
	http.Redirect(w, r, "/configuracion", http.StatusSeeOther)
}

// PingBackend handles POST /configuracion/ping.
func (h *ConfigHandler) PingBackend(w http.ResponseWriter, r *http.Request) {
	_ = h.pinger.PingBackend(r.Context())
	http.Redirect(w, r, "/configuracion", http.StatusSeeOther)
}

// PingDatabase handles POST /configuracion/ping-db.
func (h *ConfigHandler) PingDatabase(w http.ResponseWriter, r *http.Request) {
	_ = h.pinger.PingDatabase(r.Context())
	http.Redirect(w, r, "/configuracion", http.StatusSeeOther)
}

// ToggleMonitor handles POST /configuracion/monitor.
func (h *ConfigHandler) ToggleMonitor(w http.ResponseWriter, r *http.Request) {
	if h.sampler.Toggle(h.appCtx) {
		h.shell.Notify(r, service.NotifyInfo, "Monitor iniciado")
	} else {
		h.shell.Notify(r, service.NotifyInfo, "Monitor detenido")
	}
	http.Redirect(w, r, "/configuracion", http.StatusSeeOther)
}

// ResetMonitor handles POST /configuracion/monitor/reset.
func (h *ConfigHandler) ResetMonitor(w http.ResponseWriter, r *http.Request) {
	h.sampler.Reset()
	http.Redirect(w, r, "/configuracion", http.StatusSeeOther)
}

// RegisterRoutes registers the configuration routes on mux.
func (h *ConfigHandler) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET /configuracion", wrap(http.HandlerFunc(h.Show)))
	mux.Handle("POST /configuracion/verificar", wrap(http.HandlerFunc(h.Check)))
	mux.Handle("POST /configuracion/ping", wrap(http.HandlerFunc(h.PingBackend)))
	mux.Handle("POST /configuracion/ping-db", wrap(http.HandlerFunc(h.PingDatabase)))
	mux.Handle("POST /configuracion/monitor", wrap(http.HandlerFunc(h.ToggleMonitor)))
	mux.Handle("POST /configuracion/monitor/reset", wrap(http.HandlerFunc(h.ResetMonitor)))
}
