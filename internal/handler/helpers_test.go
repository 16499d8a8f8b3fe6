package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/service"
)

// =============================================================================
// Stub renderer
// =============================================================================

// renderCall records one call to the stub renderer.
type renderCall struct {
	Name   string
	Status int
	Data   any
}

// stubRenderer implements TemplateRenderer by recording what was rendered
// and writing the template name as the body.
type stubRenderer struct {
	mu    sync.Mutex
	calls []renderCall
}

func (s *stubRenderer) record(w http.ResponseWriter, status int, name string, data any) {
	s.mu.Lock()
	s.calls = append(s.calls, renderCall{Name: name, Status: status, Data: data})
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, name)
}

func (s *stubRenderer) RenderHTTP(w http.ResponseWriter, name string, data any) {
	s.record(w, http.StatusOK, name, data)
}

func (s *stubRenderer) RenderStatus(w http.ResponseWriter, status int, name string, data any) {
	s.record(w, status, name, data)
}

func (s *stubRenderer) RenderPartial(w http.ResponseWriter, name string, data any) {
	s.record(w, http.StatusOK, "partial/"+name, data)
}

func (s *stubRenderer) last(t *testing.T) renderCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		t.Fatal("nothing was rendered")
	}
	return s.calls[len(s.calls)-1]
}

// pageContent returns the Content of the last rendered app page.
func pageContent[T any](t *testing.T, s *stubRenderer) T {
	t.Helper()
	call := s.last(t)
	page, ok := call.Data.(PageData)
	if !ok {
		t.Fatalf("rendered data is %T, want PageData", call.Data)
	}
	content, ok := page.Content.(T)
	if !ok {
		t.Fatalf("page content is %T", page.Content)
	}
	return content
}

// =============================================================================
// Stub status source
// =============================================================================

type stubStatus struct {
	mu      sync.Mutex
	status  domain.ConnectionStatus
	checked int
	subs    []chan domain.ConnectionStatus
}

func newStubStatus(connected bool) *stubStatus {
	st := domain.ConnectionStatus{State: domain.StateDisconnected, Error: "connection refused"}
	if connected {
		st = domain.ConnectionStatus{State: domain.StateConnected, IsConnected: true, Endpoint: "/health"}
	}
	return &stubStatus{status: st}
}

func (s *stubStatus) Status() domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubStatus) Check(ctx context.Context) domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked++
	return s.status
}

func (s *stubStatus) Subscribe() (<-chan domain.ConnectionStatus, func()) {
	ch := make(chan domain.ConnectionStatus, 4)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch, func() {}
}

func (s *stubStatus) publish(st domain.ConnectionStatus) {
	s.mu.Lock()
	s.status = st
	subs := append([]chan domain.ConnectionStatus(nil), s.subs...)
	s.mu.Unlock()
	for _, ch := range subs {
		ch <- st
	}
}

// =============================================================================
// In-memory backend
// =============================================================================

// memBackend implements service.Backend over in-memory collections keyed by
// resource name.
type memBackend struct {
	mu      sync.Mutex
	nextID  int64
	data    map[string][]map[string]any
	failAll bool
	// failList makes GET fail for one resource only.
	failList string
	deleted  []string
}

func newMemBackend() *memBackend {
	return &memBackend{nextID: 100, data: map[string][]map[string]any{}}
}

func (b *memBackend) seed(resource string, records ...map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[resource] = append(b.data[resource], records...)
}

func (b *memBackend) count(resource string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data[resource])
}

var errBackendDown = errors.New("backend unavailable")

func splitPath(path string) (string, int64) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return parts[0], 0
	}
	id, _ := strconv.ParseInt(parts[1], 10, 64)
	return parts[0], id
}

func (b *memBackend) Get(ctx context.Context, path string) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll {
		return nil, errBackendDown
	}
	resource, _ := splitPath(path)
	if resource == b.failList {
		return nil, errBackendDown
	}
	records := b.data[resource]
	if records == nil {
		records = []map[string]any{}
	}
	return json.Marshal(map[string]any{"data": records})
}

func (b *memBackend) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll {
		return nil, errBackendDown
	}
	rec, err := toMap(body)
	if err != nil {
		return nil, err
	}
	b.nextID++
	rec["id"] = b.nextID
	resource, _ := splitPath(path)
	b.data[resource] = append(b.data[resource], rec)
	return json.Marshal(rec)
}

func (b *memBackend) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll {
		return nil, errBackendDown
	}
	rec, err := toMap(body)
	if err != nil {
		return nil, err
	}
	resource, id := splitPath(path)
	for i, existing := range b.data[resource] {
		if recordID(existing) == id {
			rec["id"] = id
			b.data[resource][i] = rec
			return json.Marshal(rec)
		}
	}
	return nil, errors.New("not found")
}

func (b *memBackend) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll {
		return nil, errBackendDown
	}
	resource, id := splitPath(path)
	records := b.data[resource]
	for i, existing := range records {
		if recordID(existing) == id {
			b.data[resource] = append(records[:i], records[i+1:]...)
			b.deleted = append(b.deleted, path)
			return json.RawMessage(`{}`), nil
		}
	}
	return nil, errors.New("not found")
}

func toMap(body any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	return out, json.Unmarshal(raw, &out)
}

func recordID(rec map[string]any) int64 {
	switch v := rec["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// =============================================================================
// Fixture
// =============================================================================

// fixture wires the page handlers over an in-memory backend the way the
// dashboard binary does, minus sessions and CSRF.
type fixture struct {
	backend  *memBackend
	panels   *service.Panels
	renderer *stubRenderer
	status   *stubStatus
	toasts   *ToastStore
	shell    *Shell
	mux      *http.ServeMux
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend:  newMemBackend(),
		renderer: &stubRenderer{},
		status:   newStubStatus(true),
		toasts:   NewToastStore(false),
	}
	f.panels = service.NewPanels(f.backend, discardLogger())
	f.shell = NewShell(f.renderer, f.status, f.toasts, discardLogger(), false)

	f.mux = http.NewServeMux()
	NewClienteHandler(f.shell, f.panels.Clientes, discardLogger()).RegisterRoutes(f.mux, identity)
	NewEntityHandler(f.shell, f.panels.Camiones, EntityConfig{
		BasePath:     "/camiones",
		Title:        "Camiones",
		ListTemplate: "entidades/list",
	}, discardLogger()).RegisterRoutes(f.mux, identity)
	f.handler = f.toasts.Middleware(f.mux)
	return f
}

const toastCookieValue = "browser-1"

// do sends a request carrying a fixed toast cookie so notifications can be
// inspected with pendingToasts.
func (f *fixture) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.AddCookie(&http.Cookie{Name: toastCookieName, Value: toastCookieValue})
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) pendingToasts() []Toast {
	return f.toasts.Drain(toastCookieValue)
}
