package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/DukeRupert/mapaclientes/internal/csrf"
	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/service"
)

// pageSizes are the page lengths offered under every table.
var pageSizes = []int{service.DefaultPageSize, 50, 100}

// EntityConfig describes how one entity panel is exposed over HTTP.
type EntityConfig struct {
	BasePath     string // "/camiones"
	Title        string // page title, "Días de Entrega"
	ListTemplate string
	// FormTemplate renders create and edit forms on their own page. When
	// empty the form is embedded in the list page.
	FormTemplate string
	// EstadoFilter enables the activo/inactivo selector.
	EstadoFilter bool
}

// EntityHandler serves list, form and delete flows for one entity panel.
//
// Routes handled (BasePath = /camiones):
//   - GET  /camiones                 -> List
//   - GET  /camiones/nuevo           -> New
//   - POST /camiones                 -> Create
//   - GET  /camiones/{id}/editar     -> Edit
//   - POST /camiones/{id}            -> Update
//   - POST /camiones/{id}/eliminar   -> RequestDelete
//   - GET  /camiones/eliminar        -> ShowDelete
//   - POST /camiones/eliminar        -> ConfirmDelete
type EntityHandler[T domain.Record] struct {
	shell  *Shell
	panel  *service.Panel[T]
	config EntityConfig
	logger *slog.Logger
}

// NewEntityHandler creates a handler for panel.
func NewEntityHandler[T domain.Record](shell *Shell, panel *service.Panel[T], config EntityConfig, logger *slog.Logger) *EntityHandler[T] {
	return &EntityHandler[T]{
		shell:  shell,
		panel:  panel,
		config: config,
		logger: logger.With("resource", panel.Resource()),
	}
}

// =============================================================================
// View models
// =============================================================================

// ListView is the content of a list page.
type ListView[T domain.Record] struct {
	Labels       service.Labels
	BasePath     string
	Query        service.Query
	EstadoFilter bool
	Page         service.Page[T]
	Matched      int // records passing the filter
	Total        int // records in the cache
	Loaded       bool
	LastError    string
	LastFetched  time.Time
	PageSizes    []int
	Back         string // this list, including its query, for forms to return to
	Form         *FormView
}

// PageURL links to page n keeping the current filter and page size.
func (v ListView[T]) PageURL(n int) string {
	return listURL(v.BasePath, v.Query, n, v.Page.Size)
}

// Offline reports whether the last fetch failed.
func (v ListView[T]) Offline() bool {
	return v.LastError != ""
}

// FormView is a create or edit form.
type FormView struct {
	Labels    service.Labels
	BasePath  string
	Draft     domain.Draft
	Errors    map[string]string
	Back      string
	CSRFToken string
}

// Action is the URL the form posts to.
func (f FormView) Action() string {
	if f.Draft.IsEdit() {
		return f.BasePath + "/" + f.Draft.EditIDString()
	}
	return f.BasePath
}

// Value returns the submitted or prefilled value of field.
func (f FormView) Value(field string) string {
	return f.Draft.Get(field)
}

// Checked reports whether checkbox field is on.
func (f FormView) Checked(field string) bool {
	return f.Draft.Checked(field)
}

// Error returns the validation message for field, if any.
func (f FormView) Error(field string) string {
	return f.Errors[field]
}

// ConfirmView is the delete confirmation page.
type ConfirmView struct {
	Request   service.DeleteRequest
	Action    string
	Back      string
	CSRFToken string
}

// =============================================================================
// GET /{base} - List
// =============================================================================

// List refetches the collection and renders the filtered, paginated table.
// A failed fetch still renders the cached rows with the offline banner.
func (h *EntityHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	q, number, size := parseListQuery(r, h.config.EstadoFilter)

	// Errors are recorded in the snapshot and already notified.
	_, _ = h.panel.List(r.Context())

	var form *FormView
	if h.config.FormTemplate == "" {
		d := domain.NewDraft()
		if raw := r.URL.Query().Get("editar"); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				if ed, err := h.panel.DraftFor(id); err == nil {
					d = ed
				} else {
					h.shell.Notify(r, service.NotifyWarning, domain.ErrorMessage(err))
				}
			}
		}
		form = h.formView(r, d, nil)
	}

	view := h.listView(r, q, number, size, form)
	if form != nil {
		form.Back = view.Back
	}
	h.shell.Render(w, r, h.config.ListTemplate, h.config.Title, view)
}

func (h *EntityHandler[T]) listView(r *http.Request, q service.Query, number, size int, form *FormView) ListView[T] {
	snap := h.panel.Snapshot()
	matched := service.Filter(snap.Items, q)
	page := service.Paginate(matched, number, size)

	return ListView[T]{
		Labels:       h.panel.Labels(),
		BasePath:     h.config.BasePath,
		Query:        q,
		EstadoFilter: h.config.EstadoFilter,
		Page:         page,
		Matched:      len(matched),
		Total:        len(snap.Items),
		Loaded:       snap.Loaded,
		LastError:    snap.LastError,
		LastFetched:  snap.LastFetched,
		PageSizes:    pageSizes,
		Back:         listURL(h.config.BasePath, q, page.Number, page.Size),
		Form:         form,
	}
}

func (h *EntityHandler[T]) formView(r *http.Request, d domain.Draft, errs map[string]string) *FormView {
	if errs == nil {
		errs = map[string]string{}
	}
	return &FormView{
		Labels:    h.panel.Labels(),
		BasePath:  h.config.BasePath,
		Draft:     d,
		Errors:    errs,
		Back:      backParam(r, h.config.BasePath),
		CSRFToken: csrf.Token(r.Context()),
	}
}

// =============================================================================
// Forms
// =============================================================================

// New renders an empty create form.
func (h *EntityHandler[T]) New(w http.ResponseWriter, r *http.Request) {
	if h.config.FormTemplate == "" {
		http.Redirect(w, r, h.config.BasePath, http.StatusSeeOther)
		return
	}
	form := h.formView(r, domain.NewDraft(), nil)
	h.shell.Render(w, r, h.config.FormTemplate, "Nuevo "+h.panel.Labels().Noun, form)
}

// Edit renders the edit form prefilled from the cache.
func (h *EntityHandler[T]) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundResponse(w, r, h.logger)
		return
	}
	if h.config.FormTemplate == "" {
		http.Redirect(w, r, h.config.BasePath+"?editar="+strconv.FormatInt(id, 10), http.StatusSeeOther)
		return
	}

	_, _ = h.panel.Ensure(r.Context())
	d, err := h.panel.DraftFor(id)
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	form := h.formView(r, d, nil)
	h.shell.Render(w, r, h.config.FormTemplate, "Editar "+h.panel.Labels().Noun, form)
}

// Create handles POST {base}.
func (h *EntityHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	d, ok := h.draftFromRequest(w, r)
	if !ok {
		return
	}
	if next, err := h.panel.Create(r.Context(), d); err != nil {
		h.renderFailedForm(w, r, next, err)
		return
	}
	redirectBack(w, r, h.config.BasePath)
}

// Update handles POST {base}/{id}.
func (h *EntityHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundResponse(w, r, h.logger)
		return
	}
	d, ok := h.draftFromRequest(w, r)
	if !ok {
		return
	}
	if next, err := h.panel.Update(r.Context(), id, d); err != nil {
		h.renderFailedForm(w, r, next, err)
		return
	}
	redirectBack(w, r, h.config.BasePath)
}

// draftFromRequest copies the posted fields into a draft.
func (h *EntityHandler[T]) draftFromRequest(w http.ResponseWriter, r *http.Request) (domain.Draft, bool) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("failed to parse form", "error", err)
		http.Error(w, "Formulario inválido", http.StatusBadRequest)
		return domain.Draft{}, false
	}

	d := domain.NewDraft()
	for key, values := range r.PostForm {
		if key == csrf.FormFieldName || key == "back" || len(values) == 0 {
			continue
		}
		d.Set(key, values[0])
	}
	return d, true
}

// renderFailedForm re-renders the form with the draft the user submitted.
func (h *EntityHandler[T]) renderFailedForm(w http.ResponseWriter, r *http.Request, d domain.Draft, err error) {
	status := ErrorCodeToHTTPStatus(domain.ErrorCode(err))
	var errs map[string]string
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		errs = ve.Fields
		status = http.StatusUnprocessableEntity
	}
	form := h.formView(r, d, errs)

	if h.config.FormTemplate != "" {
		title := "Nuevo " + h.panel.Labels().Noun
		if d.IsEdit() {
			title = "Editar " + h.panel.Labels().Noun
		}
		h.shell.RenderStatus(w, r, status, h.config.FormTemplate, title, form)
		return
	}

	q, number, size := parseBackQuery(form.Back, h.config.EstadoFilter)
	view := h.listView(r, q, number, size, form)
	h.shell.RenderStatus(w, r, status, h.config.ListTemplate, h.config.Title, view)
}

// =============================================================================
// Delete flow
// =============================================================================

// RequestDelete issues a confirmation token and shows the confirmation page.
func (h *EntityHandler[T]) RequestDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundResponse(w, r, h.logger)
		return
	}

	_, _ = h.panel.Ensure(r.Context())
	req, err := h.panel.RequestDelete(id)
	if err != nil {
		h.shell.Notify(r, service.NotifyWarning, domain.ErrorMessage(err))
		redirectBack(w, r, h.config.BasePath)
		return
	}

	target := h.config.BasePath + "/eliminar?token=" + url.QueryEscape(req.Token)
	if back := r.FormValue("back"); back != "" && isSafeRedirectURL(back) {
		target += "&back=" + url.QueryEscape(back)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// ShowDelete renders the confirmation page for a pending token.
func (h *EntityHandler[T]) ShowDelete(w http.ResponseWriter, r *http.Request) {
	req, err := h.panel.PendingDelete(r.URL.Query().Get("token"))
	if err != nil {
		h.shell.Notify(r, service.NotifyWarning, domain.ErrorMessage(err))
		http.Redirect(w, r, h.config.BasePath, http.StatusSeeOther)
		return
	}

	view := ConfirmView{
		Request:   req,
		Action:    h.config.BasePath + "/eliminar",
		Back:      backParam(r, h.config.BasePath),
		CSRFToken: csrf.Token(r.Context()),
	}
	h.shell.Render(w, r, "confirmar", req.Title, view)
}

// ConfirmDelete consumes the token; "confirmar=si" deletes, anything else
// cancels.
func (h *EntityHandler[T]) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	confirmed := r.FormValue("confirmar") == "si"

	err := h.panel.ConfirmDelete(r.Context(), token, confirmed)
	if err != nil && domain.ErrorCode(err) == domain.ENOTFOUND {
		h.shell.Notify(r, service.NotifyWarning, domain.ErrorMessage(err))
	}
	redirectBack(w, r, h.config.BasePath)
}

// RegisterRoutes registers the entity routes on mux.
func (h *EntityHandler[T]) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	base := h.config.BasePath
	mux.Handle("GET "+base, wrap(http.HandlerFunc(h.List)))
	mux.Handle("GET "+base+"/nuevo", wrap(http.HandlerFunc(h.New)))
	mux.Handle("POST "+base, wrap(http.HandlerFunc(h.Create)))
	mux.Handle("GET "+base+"/{id}/editar", wrap(http.HandlerFunc(h.Edit)))
	mux.Handle("POST "+base+"/{id}", wrap(http.HandlerFunc(h.Update)))
	mux.Handle("POST "+base+"/{id}/eliminar", wrap(http.HandlerFunc(h.RequestDelete)))
	mux.Handle("GET "+base+"/eliminar", wrap(http.HandlerFunc(h.ShowDelete)))
	mux.Handle("POST "+base+"/eliminar", wrap(http.HandlerFunc(h.ConfirmDelete)))
}

// =============================================================================
// Helpers
// =============================================================================

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// backParam returns the "back" query or form value when it is a safe path.
func backParam(r *http.Request, fallback string) string {
	if back := r.FormValue("back"); back != "" && isSafeRedirectURL(back) {
		return back
	}
	return fallback
}

// parseListQuery reads q, estado, page and size from the request.
func parseListQuery(r *http.Request, estadoFilter bool) (service.Query, int, int) {
	return parseValues(r.URL.Query(), estadoFilter)
}

// parseBackQuery recovers the list state from a back URL.
func parseBackQuery(back string, estadoFilter bool) (service.Query, int, int) {
	u, err := url.Parse(back)
	if err != nil {
		return service.Query{}, 1, service.DefaultPageSize
	}
	return parseValues(u.Query(), estadoFilter)
}

func parseValues(v url.Values, estadoFilter bool) (service.Query, int, int) {
	q := service.Query{Text: v.Get("q")}
	if estadoFilter {
		switch e := v.Get("estado"); e {
		case service.EstadoActivo, service.EstadoInactivo:
			q.Estado = e
		}
	}

	number := 1
	if p, err := strconv.Atoi(v.Get("page")); err == nil && p > 0 {
		number = p
	}

	size := service.DefaultPageSize
	if s, err := strconv.Atoi(v.Get("size")); err == nil {
		for _, allowed := range pageSizes {
			if s == allowed {
				size = s
			}
		}
	}
	return q, number, size
}

// listURL builds a list link, leaving out defaults.
func listURL(base string, q service.Query, page, size int) string {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.Estado != "" {
		v.Set("estado", q.Estado)
	}
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}
	if size != service.DefaultPageSize && size > 0 {
		v.Set("size", strconv.Itoa(size))
	}
	if len(v) == 0 {
		return base
	}
	return base + "?" + v.Encode()
}
