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

func seedCamiones(f *fixture) {
	f.backend.seed("camiones",
		map[string]any{"id": 1, "descripcion": "Volvo FH"},
		map[string]any{"id": 2, "descripcion": "Scania R450"},
		map[string]any{"id": 3, "descripcion": "volvo FM"},
	)
}

// =============================================================================
// List
// =============================================================================

func TestEntityList_FiltersCaseInsensitively(t *testing.T) {
	f := newFixture(t)
	seedCamiones(f)

	rec := f.do(http.MethodGet, "/camiones?q=VOLVO", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "entidades/list", f.renderer.last(t).Name)

	view := pageContent[ListView[domain.Camion]](t, f.renderer)
	assert.Equal(t, 2, view.Matched)
	assert.Equal(t, 3, view.Total)
	assert.True(t, view.Loaded)
	assert.False(t, view.Offline())
	assert.Equal(t, "/camiones?q=VOLVO", view.Back)
	require.NotNil(t, view.Form, "inline form expected")
	assert.False(t, view.Form.Draft.IsEdit())
}

func TestEntityList_Paginates(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 45; i++ {
		f.backend.seed("camiones", map[string]any{"id": i, "descripcion": "Camión"})
	}

	f.do(http.MethodGet, "/camiones?page=3", nil)
	view := pageContent[ListView[domain.Camion]](t, f.renderer)

	assert.Equal(t, 3, view.Page.Number)
	assert.Equal(t, 3, view.Page.TotalPages)
	assert.Len(t, view.Page.Items, 5)
	assert.Equal(t, "/camiones?page=2", view.PageURL(2))
	assert.Equal(t, "/camiones", view.PageURL(1))
}

func TestEntityList_IgnoresUnknownPageSize(t *testing.T) {
	f := newFixture(t)
	seedCamiones(f)

	f.do(http.MethodGet, "/camiones?size=7", nil)
	view := pageContent[ListView[domain.Camion]](t, f.renderer)
	assert.Equal(t, service.DefaultPageSize, view.Page.Size)
}

func TestEntityList_BackendDownKeepsCacheAndShowsBanner(t *testing.T) {
	f := newFixture(t)
	seedCamiones(f)
	f.do(http.MethodGet, "/camiones", nil)

	f.backend.failAll = true
	rec := f.do(http.MethodGet, "/camiones", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	view := pageContent[ListView[domain.Camion]](t, f.renderer)
	assert.True(t, view.Offline())
	assert.Equal(t, 3, view.Total, "cached rows survive a failed refresh")

	page := f.renderer.last(t).Data.(PageData)
	require.NotEmpty(t, page.Toasts)
	assert.Equal(t, service.NotifyError, page.Toasts[0].Kind)
}

func TestEntityList_EditQueryPrefillsInlineForm(t *testing.T) {
	f := newFixture(t)
	seedCamiones(f)
	f.do(http.MethodGet, "/camiones", nil)

	f.do(http.MethodGet, "/camiones?editar=2", nil)
	view := pageContent[ListView[domain.Camion]](t, f.renderer)
	require.NotNil(t, view.Form)
	assert.True(t, view.Form.Draft.IsEdit())
	assert.Equal(t, "Scania R450", view.Form.Value(service.FieldDescripcion))
	assert.Equal(t, "/camiones/2", view.Form.Action())
}

func TestEntityEdit_InlineRedirectsToList(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/camiones/2/editar", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/camiones?editar=2", rec.Header().Get("Location"))
}

// =============================================================================
// Create / Update
// =============================================================================

func TestEntityCreate_ValidationRerendersListWithErrors(t *testing.T) {
	f := newFixture(t)
	seedCamiones(f)

	rec := f.do(http.MethodPost, "/camiones", url.Values{
		"descripcion": {"   "},
		"back":        {"/camiones?q=volvo"},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	call := f.renderer.last(t)
	assert.Equal(t, "entidades/list", call.Name)

	view := pageContent[ListView[domain.Camion]](t, f.renderer)
	require.NotNil(t, view.Form)
	assert.NotEmpty(t, view.Form.Error(service.FieldDescripcion))
	assert.Equal(t, "volvo", view.Query.Text, "list state recovered from back")
	assert.Equal(t, 3, f.backend.count("camiones"), "nothing sent to the backend")
}

func TestEntityCreate_SuccessRedirectsBack(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/camiones", url.Values{
		"descripcion": {"Mercedes Actros"},
		"back":        {"/camiones?page=2"},
		"csrf_token":  {"ignored"},
	})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/camiones?page=2", rec.Header().Get("Location"))
	assert.Equal(t, 1, f.backend.count("camiones"))

	toasts := f.pendingToasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, service.NotifySuccess, toasts[0].Kind)
}

func TestEntityCreate_UnsafeBackFallsBackToBase(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/camiones", url.Values{
		"descripcion": {"Iveco"},
		"back":        {"https://evil.example/"},
	})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/camiones", rec.Header().Get("Location"))
}

func TestEntityUpdate_BackendFailureKeepsDraft(t *testing.T) {
	f := newFixture(t)
	seedCamiones(f)
	f.do(http.MethodGet, "/camiones", nil)
	f.backend.failAll = true

	rec := f.do(http.MethodPost, "/camiones/1", url.Values{"descripcion": {"Volvo FH16"}})

	assert.GreaterOrEqual(t, rec.Code, 500)
	view := pageContent[ListView[domain.Camion]](t, f.renderer)
	require.NotNil(t, view.Form)
	assert.True(t, view.Form.Draft.IsEdit())
	assert.Equal(t, "Volvo FH16", view.Form.Value(service.FieldDescripcion))
}

func TestEntityUpdate_InvalidIDIsNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/camiones/abc", url.Values{"descripcion": {"x"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Delete flow
// =============================================================================

func TestEntityDelete_ConfirmFlow(t *testing.T) {
	f := newFixture(t)
	seedCamiones(f)
	f.do(http.MethodGet, "/camiones", nil)

	rec := f.do(http.MethodPost, "/camiones/2/eliminar", url.Values{"back": {"/camiones?q=s"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/camiones/eliminar?token="), location)

	rec = f.do(http.MethodGet, location, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmar", f.renderer.last(t).Name)
	confirm := pageContent[ConfirmView](t, f.renderer)
	assert.Equal(t, int64(2), confirm.Request.ID)
	assert.Equal(t, "/camiones?q=s", confirm.Back)
	assert.Contains(t, confirm.Request.Message, "Scania R450")

	rec = f.do(http.MethodPost, "/camiones/eliminar", url.Values{
		"token":     {confirm.Request.Token},
		"confirmar": {"si"},
		"back":      {confirm.Back},
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/camiones?q=s", rec.Header().Get("Location"))
	assert.Equal(t, 2, f.backend.count("camiones"))
	assert.Equal(t, []string{"/camiones/2"}, f.backend.deleted)
}

func TestEntityDelete_CancelSendsNothing(t *testing.T) {
	f := newFixture(t)
	seedCamiones(f)
	f.do(http.MethodGet, "/camiones", nil)

	rec := f.do(http.MethodPost, "/camiones/1/eliminar", nil)
	token := strings.TrimPrefix(rec.Header().Get("Location"), "/camiones/eliminar?token=")

	f.do(http.MethodPost, "/camiones/eliminar", url.Values{"token": {token}, "confirmar": {"no"}})
	assert.Equal(t, 3, f.backend.count("camiones"))
	assert.Empty(t, f.backend.deleted)
}

func TestEntityDelete_TokenIsSingleUse(t *testing.T) {
	f := newFixture(t)
	seedCamiones(f)
	f.do(http.MethodGet, "/camiones", nil)

	rec := f.do(http.MethodPost, "/camiones/1/eliminar", nil)
	token := strings.TrimPrefix(rec.Header().Get("Location"), "/camiones/eliminar?token=")

	f.do(http.MethodPost, "/camiones/eliminar", url.Values{"token": {token}, "confirmar": {"si"}})
	f.pendingToasts()

	rec = f.do(http.MethodPost, "/camiones/eliminar", url.Values{"token": {token}, "confirmar": {"si"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Len(t, f.backend.deleted, 1)

	toasts := f.pendingToasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, service.NotifyWarning, toasts[0].Kind)
}

func TestEntityDelete_UnknownRecordWarns(t *testing.T) {
	f := newFixture(t)
	seedCamiones(f)

	rec := f.do(http.MethodPost, "/camiones/99/eliminar", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/camiones", rec.Header().Get("Location"))

	toasts := f.pendingToasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, service.NotifyWarning, toasts[0].Kind)
}

func TestEntityShowDelete_ExpiredTokenRedirects(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/camiones/eliminar?token=nope", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/camiones", rec.Header().Get("Location"))
}

// =============================================================================
// Helpers
// =============================================================================

func TestListURL_OmitsDefaults(t *testing.T) {
	tests := []struct {
		name  string
		query service.Query
		page  int
		size  int
		want  string
	}{
		{"defaults", service.Query{}, 1, service.DefaultPageSize, "/clientes"},
		{"text", service.Query{Text: "ana"}, 1, service.DefaultPageSize, "/clientes?q=ana"},
		{"all", service.Query{Text: "a b", Estado: "activo"}, 2, 50, "/clientes?estado=activo&page=2&q=a+b&size=50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, listURL("/clientes", tt.query, tt.page, tt.size))
		})
	}
}

func TestParseBackQuery_RoundTripsListURL(t *testing.T) {
	back := listURL("/clientes", service.Query{Text: "ana", Estado: "inactivo"}, 3, 100)
	q, page, size := parseBackQuery(back, true)
	assert.Equal(t, service.Query{Text: "ana", Estado: "inactivo"}, q)
	assert.Equal(t, 3, page)
	assert.Equal(t, 100, size)

	q, _, _ = parseBackQuery(back, false)
	assert.Empty(t, q.Estado, "estado is dropped where the filter is disabled")
}
