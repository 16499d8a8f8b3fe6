package handler

import (
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/service"
)

// DashboardHandler renders the landing page with collection totals.
type DashboardHandler struct {
	shell  *Shell
	panels *service.Panels
	logger *slog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(shell *Shell, panels *service.Panels, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{shell: shell, panels: panels, logger: logger}
}

// DashboardView is the content of the dashboard page.
type DashboardView struct {
	Clientes     int
	Activos      int
	ConUbicacion int
	Camiones     int
	DiasEntrega  int
	Offline      bool
}

// Show handles GET / and GET /dashboard. The three collections are fetched
// in parallel; a panel that fails keeps its cached count and the first
// failure marks the page offline. A failure does not cancel the other
// fetches, so their counts stay fresh.
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var g errgroup.Group

	var (
		clientes []domain.Cliente
		camiones []domain.Camion
		dias     []domain.DiaEntrega
	)
	g.Go(func() (err error) {
		clientes, err = h.panels.Clientes.List(ctx)
		return err
	})
	g.Go(func() (err error) {
		camiones, err = h.panels.Camiones.List(ctx)
		return err
	})
	g.Go(func() (err error) {
		dias, err = h.panels.DiasEntrega.List(ctx)
		return err
	})
	err := g.Wait()
	if err != nil {
		h.logger.Warn("dashboard totals use cached data", "error", err)
	}

	view := DashboardView{
		Clientes:    len(clientes),
		Camiones:    len(camiones),
		DiasEntrega: len(dias),
		Offline:     err != nil,
	}
	for _, c := range clientes {
		if c.IsActive() {
			view.Activos++
		}
		if c.HasCoords() {
			view.ConUbicacion++
		}
	}

	h.shell.Render(w, r, "dashboard", "Dashboard", view)
}
