package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboard_CountsEveryCollection(t *testing.T) {
	f := newFixture(t)
	seedClientes(f)
	seedCamiones(f)
	f.backend.seed("dias-entrega", map[string]any{"id": 1, "descripcion": "Lunes"})

	h := NewDashboardHandler(f.shell, f.panels, discardLogger())
	rec := httptest.NewRecorder()
	h.Show(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dashboard", f.renderer.last(t).Name)
	view := pageContent[DashboardView](t, f.renderer)
	assert.Equal(t, DashboardView{
		Clientes:     3,
		Activos:      2,
		ConUbicacion: 1,
		Camiones:     3,
		DiasEntrega:  1,
	}, view)
}

func TestDashboard_OfflineWhenBackendFails(t *testing.T) {
	f := newFixture(t)
	seedCamiones(f)
	h := NewDashboardHandler(f.shell, f.panels, discardLogger())

	h.Show(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	f.backend.failAll = true
	h.Show(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	view := pageContent[DashboardView](t, f.renderer)
	assert.True(t, view.Offline)
	assert.Equal(t, 3, view.Camiones, "cached counts survive")
}

func TestDashboard_OneFailingPanelDoesNotCancelTheOthers(t *testing.T) {
	f := newFixture(t)
	seedClientes(f)
	seedCamiones(f)
	f.backend.failList = "dias-entrega"

	var logs bytes.Buffer
	h := NewDashboardHandler(f.shell, f.panels, slog.New(slog.NewTextHandler(&logs, nil)))
	h.Show(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	view := pageContent[DashboardView](t, f.renderer)
	assert.True(t, view.Offline)
	assert.Equal(t, 3, view.Clientes)
	assert.Equal(t, 3, view.Camiones)
	assert.Empty(t, f.panels.Camiones.Snapshot().LastError, "sibling fetches finish normally")
	assert.NotEmpty(t, f.panels.DiasEntrega.Snapshot().LastError)
	assert.Contains(t, logs.String(), "dashboard totals use cached data")
}
