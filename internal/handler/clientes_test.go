package handler

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/service"
)

func seedClientes(f *fixture) {
	f.backend.seed("clientes",
		map[string]any{"id": 1, "nombre": "Almacén Don Pepe", "activo": 1, "x": "-70.6506", "y": "-33.4372"},
		map[string]any{"id": 2, "nombre": "Ferretería Sur", "activo": "0"},
		map[string]any{"id": 3, "nombre": "Minimarket Pepa", "activo": true, "x": 0, "y": 0},
	)
}

func TestClientesList_EstadoFilter(t *testing.T) {
	f := newFixture(t)
	seedClientes(f)

	f.do(http.MethodGet, "/clientes?estado=inactivo", nil)
	view := pageContent[ListView[domain.Cliente]](t, f.renderer)
	require.Len(t, view.Page.Items, 1)
	assert.Equal(t, "Ferretería Sur", view.Page.Items[0].Nombre)
	assert.Nil(t, view.Form, "clientes use a separate form page")

	f.do(http.MethodGet, "/clientes?estado=activo&q=pep", nil)
	view = pageContent[ListView[domain.Cliente]](t, f.renderer)
	assert.Equal(t, 2, view.Matched)
}

func TestClientesNew_RendersFormPage(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/clientes/nuevo?back=/clientes?q=a", nil)

	assert.Equal(t, "clientes/form", f.renderer.last(t).Name)
	form := pageContent[*FormView](t, f.renderer)
	assert.False(t, form.Draft.IsEdit())
	assert.Equal(t, "/clientes", form.Action())
	assert.Equal(t, "/clientes?q=a", form.Back)
}

func TestClientesEdit_PrefillsFromCache(t *testing.T) {
	f := newFixture(t)
	seedClientes(f)

	rec := f.do(http.MethodGet, "/clientes/1/editar", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	form := pageContent[*FormView](t, f.renderer)
	assert.True(t, form.Draft.IsEdit())
	assert.Equal(t, "Almacén Don Pepe", form.Value(service.FieldNombre))
	assert.True(t, form.Checked(service.FieldActivo))
	assert.Equal(t, "/clientes/1", form.Action())
}

func TestClientesEdit_UnknownIsNotFound(t *testing.T) {
	f := newFixture(t)
	seedClientes(f)

	rec := f.do(http.MethodGet, "/clientes/42/editar", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClientesCreate_InvalidCoordinatesRerenderForm(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/clientes", url.Values{
		"nombre": {"Nuevo"},
		"x":      {"abc"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "clientes/form", f.renderer.last(t).Name)
	form := pageContent[*FormView](t, f.renderer)
	assert.NotEmpty(t, form.Error(service.FieldX))
	assert.Equal(t, "Nuevo", form.Value(service.FieldNombre), "typed values are kept")
	assert.Equal(t, 0, f.backend.count("clientes"))
}

func TestClientesCreate_Success(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/clientes", url.Values{
		"nombre": {"Nuevo"},
		"activo": {"on"},
		"x":      {"-70.1"},
		"y":      {"-33.2"},
	})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/clientes", rec.Header().Get("Location"))
	require.Equal(t, 1, f.backend.count("clientes"))

	stored := f.backend.data["clientes"][0]
	assert.Equal(t, "Nuevo", stored["nombre"])
	assert.Equal(t, true, stored["activo"])
}

func TestClientesMap(t *testing.T) {
	f := newFixture(t)
	seedClientes(f)

	rec := f.do(http.MethodGet, "/clientes/1/mapa", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := pageContent[MapView](t, f.renderer)
	assert.True(t, strings.HasPrefix(view.EmbedURL, "https://www.openstreetmap.org/export/embed.html?"))
	assert.Contains(t, view.EmbedURL, "marker=-33.437200%2C-70.650600")
	assert.Contains(t, view.LinkURL, "mlat=-33.437200")
	assert.Equal(t, "/clientes", view.Back)
}

func TestClientesMap_WithoutCoordinatesWarns(t *testing.T) {
	f := newFixture(t)
	seedClientes(f)

	rec := f.do(http.MethodGet, "/clientes/3/mapa?back=/clientes?page=2", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/clientes?page=2", rec.Header().Get("Location"))

	toasts := f.pendingToasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, "El cliente no tiene coordenadas", toasts[0].Message)
}
