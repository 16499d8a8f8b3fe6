// Package service contains the business logic layer.
//
// A Panel owns the transient copy of one backend collection. It lists,
// creates, updates and deletes records through the REST backend and reports
// outcomes to the user through a Notifier. Panels never let an error escape
// without also recording it in their local state.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/mapaclientes/internal/apiclient"
	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/metrics"
)

// DeleteTokenTTL bounds how long a delete confirmation stays valid.
const DeleteTokenTTL = 5 * time.Minute

// MsgLoadError is shown when a collection cannot be fetched.
const MsgLoadError = "No se pudo conectar al servidor. Verificar conexión."

// =============================================================================
// Interface Definition
// =============================================================================

// Backend is the subset of the API client a panel needs.
type Backend interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any) (json.RawMessage, error)
	Delete(ctx context.Context, path string) (json.RawMessage, error)
}

// Labels are the Spanish nouns used in a panel's messages.
type Labels struct {
	Title  string // "Camión"
	Noun   string // "camión"
	Plural string // "camiones"
}

// Schema describes one resource: where it lives, how drafts are validated
// and turned into request bodies, and how records become drafts again.
type Schema[T domain.Record] struct {
	Resource      string // path segment, e.g. "dias-entrega"
	Labels        Labels
	Validate      func(d domain.Draft) error
	Payload       func(d domain.Draft) any
	ToDraft       func(record T) domain.Draft
	DecodeOptions []apiclient.DecodeOption
}

func (s Schema[T]) collectionPath() string { return "/" + s.Resource }

func (s Schema[T]) itemPath(id int64) string {
	return "/" + s.Resource + "/" + strconv.FormatInt(id, 10)
}

// Snapshot is a consistent copy of a panel's state.
type Snapshot[T any] struct {
	Items       []T
	Loading     bool
	Loaded      bool
	LastError   string
	LastFetched time.Time
}

// DeleteRequest is a pending, unconfirmed deletion.
type DeleteRequest struct {
	Token     string
	ID        int64
	Name      string
	Resource  string
	Title     string // confirmation dialog title
	Message   string // confirmation dialog body
	ExpiresAt time.Time
}

// =============================================================================
// Implementation
// =============================================================================

// Panel is a cached, notifying view over one backend collection.
type Panel[T domain.Record] struct {
	backend  Backend
	schema   Schema[T]
	logger   *slog.Logger
	fallback Notifier
	now      func() time.Time

	seq      atomic.Uint64
	inflight atomic.Int32

	mu        sync.RWMutex
	items     []T
	applied   uint64
	loaded    bool
	lastErr   string
	lastFetch time.Time

	pendingMu sync.Mutex
	pending   map[string]DeleteRequest
}

// NewPanel creates a panel for the given resource schema.
func NewPanel[T domain.Record](backend Backend, schema Schema[T], logger *slog.Logger) *Panel[T] {
	logger = logger.With("resource", schema.Resource)
	return &Panel[T]{
		backend:  backend,
		schema:   schema,
		logger:   logger,
		fallback: logNotifier{logger: logger},
		now:      time.Now,
		items:    []T{},
		pending:  make(map[string]DeleteRequest),
	}
}

// Resource returns the backend path segment this panel manages.
func (p *Panel[T]) Resource() string { return p.schema.Resource }

// Labels returns the display nouns for this panel.
func (p *Panel[T]) Labels() Labels { return p.schema.Labels }

func (p *Panel[T]) notify(ctx context.Context, kind NotificationKind, msg string) {
	n := notifierFrom(ctx)
	if n == nil {
		n = p.fallback
	}
	n.Notify(Notification{Kind: kind, Message: msg})
}

// List fetches the collection and replaces the cache. On failure the cache is
// kept and returned along with the error. A response that arrives after a
// newer one has been applied is dropped.
func (p *Panel[T]) List(ctx context.Context) ([]T, error) {
	const op = "panel.list"

	seq := p.seq.Add(1)
	p.inflight.Add(1)
	defer p.inflight.Add(-1)

	raw, err := p.backend.Get(ctx, p.schema.collectionPath())
	if err != nil {
		p.mu.Lock()
		if seq <= p.applied {
			current := p.copyItems()
			p.mu.Unlock()
			metrics.StaleListResponses.WithLabelValues(p.schema.Resource).Inc()
			p.logger.Debug("discarded stale list failure", "seq", seq, "error", err)
			return current, nil
		}
		p.lastErr = err.Error()
		items := p.copyItems()
		p.mu.Unlock()
		p.logger.Warn("failed to fetch collection", "op", op, "error", err)
		p.notify(ctx, NotifyError, MsgLoadError)
		return items, apiclient.ToDomain(err, op)
	}

	items, derr := apiclient.DecodeList[T](raw, p.schema.DecodeOptions...)
	if derr != nil {
		var ue *apiclient.UnknownEnvelopeError
		if errors.As(derr, &ue) {
			p.logger.Warn("unexpected response shape", "op", op, "snippet", ue.Snippet)
		} else {
			p.logger.Warn("failed to decode collection", "op", op, "error", derr)
		}
		metrics.EnvelopeMismatchTotal.WithLabelValues(p.schema.Resource).Inc()
		items = []T{}
	}

	p.mu.Lock()
	if seq <= p.applied {
		current := p.copyItems()
		p.mu.Unlock()
		metrics.StaleListResponses.WithLabelValues(p.schema.Resource).Inc()
		p.logger.Debug("discarded stale list response", "seq", seq)
		return current, nil
	}
	p.applied = seq
	p.items = items
	p.loaded = true
	p.lastErr = ""
	p.lastFetch = p.now()
	out := p.copyItems()
	p.mu.Unlock()

	metrics.PanelCacheRecords.WithLabelValues(p.schema.Resource).Set(float64(len(out)))

	if info := infoMessage(raw); info != "" {
		p.notify(ctx, NotifyInfo, info)
	}
	return out, nil
}

// Ensure lists the collection only if it has never been loaded.
func (p *Panel[T]) Ensure(ctx context.Context) ([]T, error) {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if loaded {
		return p.Snapshot().Items, nil
	}
	return p.List(ctx)
}

// copyItems must be called with mu held.
func (p *Panel[T]) copyItems() []T {
	out := make([]T, len(p.items))
	copy(out, p.items)
	return out
}

// Snapshot returns a copy of the panel state.
func (p *Panel[T]) Snapshot() Snapshot[T] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot[T]{
		Items:       p.copyItems(),
		Loading:     p.inflight.Load() > 0,
		Loaded:      p.loaded,
		LastError:   p.lastErr,
		LastFetched: p.lastFetch,
	}
}

// Get returns a cached record by id.
func (p *Panel[T]) Get(id int64) (T, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, item := range p.items {
		if item.RecordID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// DraftFor returns an update-mode draft prefilled from the cached record.
func (p *Panel[T]) DraftFor(id int64) (domain.Draft, error) {
	item, ok := p.Get(id)
	if !ok {
		return domain.Draft{}, domain.NotFound("panel.draft", p.schema.Labels.Noun, strconv.FormatInt(id, 10))
	}
	d := p.schema.ToDraft(item)
	d.EditID = &id
	return d, nil
}

// Submit validates the draft and then creates or updates the record. On
// success the list is refreshed and an empty draft is returned. On failure
// the same draft is returned so the form keeps what the user typed.
func (p *Panel[T]) Submit(ctx context.Context, d domain.Draft) (domain.Draft, error) {
	const op = "panel.submit"

	if err := p.schema.Validate(d); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			ve.Op = op
			p.notify(ctx, NotifyWarning, ve.First())
		} else {
			p.notify(ctx, NotifyWarning, domain.ErrorMessage(err))
		}
		return d, err
	}

	labels := p.schema.Labels
	body := p.schema.Payload(d)

	var (
		err    error
		action string
		verb   string
		done   string
	)
	if d.IsEdit() {
		action, verb, done = "update", "actualizar", "actualizado"
		_, err = p.backend.Put(ctx, p.schema.itemPath(*d.EditID), body)
	} else {
		action, verb, done = "create", "agregar", "agregado"
		_, err = p.backend.Post(ctx, p.schema.collectionPath(), body)
	}
	metrics.PanelMutation(p.schema.Resource, action, err)

	if err != nil {
		p.logger.Error("failed to save record", "op", op, "action", action, "error", err)
		p.notify(ctx, NotifyError, fmt.Sprintf("Error al %s el %s: %s", verb, labels.Noun, err.Error()))
		return d, apiclient.ToDomain(err, op)
	}

	p.logger.Info("record saved", "op", op, "action", action)
	p.notify(ctx, NotifySuccess, fmt.Sprintf("%s %s correctamente", labels.Title, done))

	// A failed refresh already notified and kept the cache.
	_, _ = p.List(ctx)
	return domain.NewDraft(), nil
}

// Create submits d as a new record.
func (p *Panel[T]) Create(ctx context.Context, d domain.Draft) (domain.Draft, error) {
	d = d.Clone()
	d.EditID = nil
	return p.Submit(ctx, d)
}

// Update submits d as the new state of record id.
func (p *Panel[T]) Update(ctx context.Context, id int64, d domain.Draft) (domain.Draft, error) {
	d = d.Clone()
	d.EditID = &id
	return p.Submit(ctx, d)
}

// RequestDelete issues a single-use confirmation token for deleting id.
func (p *Panel[T]) RequestDelete(id int64) (DeleteRequest, error) {
	item, ok := p.Get(id)
	if !ok {
		return DeleteRequest{}, domain.NotFound("panel.request_delete", p.schema.Labels.Noun, strconv.FormatInt(id, 10))
	}

	labels := p.schema.Labels
	req := DeleteRequest{
		Token:     uuid.NewString(),
		ID:        id,
		Name:      item.DisplayName(),
		Resource:  p.schema.Resource,
		Title:     fmt.Sprintf("¿Eliminar %s?", labels.Noun),
		Message:   fmt.Sprintf("¿Seguro que deseas eliminar a %q? Esta acción no se puede deshacer.", item.DisplayName()),
		ExpiresAt: p.now().Add(DeleteTokenTTL),
	}

	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	p.pruneLocked()
	p.pending[req.Token] = req
	return req, nil
}

// PendingDelete looks up an unexpired confirmation token without consuming it.
func (p *Panel[T]) PendingDelete(token string) (DeleteRequest, error) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	req, ok := p.pending[token]
	if !ok || p.now().After(req.ExpiresAt) {
		return DeleteRequest{}, domain.Errorf(domain.ENOTFOUND, "panel.pending_delete", "La confirmación expiró o no existe")
	}
	return req, nil
}

// ConfirmDelete consumes the token. When confirmed is false nothing is sent to
// the backend and the cache is left alone.
func (p *Panel[T]) ConfirmDelete(ctx context.Context, token string, confirmed bool) error {
	const op = "panel.confirm_delete"

	p.pendingMu.Lock()
	req, ok := p.pending[token]
	delete(p.pending, token)
	p.pendingMu.Unlock()

	if !ok || p.now().After(req.ExpiresAt) {
		return domain.Errorf(domain.ENOTFOUND, op, "La confirmación expiró o no existe")
	}
	if !confirmed {
		p.logger.Debug("delete cancelled", "id", req.ID)
		return nil
	}

	labels := p.schema.Labels
	_, err := p.backend.Delete(ctx, p.schema.itemPath(req.ID))
	metrics.PanelMutation(p.schema.Resource, "delete", err)
	if err != nil {
		p.logger.Error("failed to delete record", "op", op, "id", req.ID, "error", err)
		p.notify(ctx, NotifyError, fmt.Sprintf("Error al eliminar el %s", labels.Noun))
		return apiclient.ToDomain(err, op)
	}

	p.logger.Info("record deleted", "op", op, "id", req.ID)
	p.notify(ctx, NotifySuccess, fmt.Sprintf("%s %q eliminado correctamente", labels.Title, req.Name))
	_, _ = p.List(ctx)
	return nil
}

// pruneLocked drops expired tokens. pendingMu must be held.
func (p *Panel[T]) pruneLocked() {
	now := p.now()
	for token, req := range p.pending {
		if now.After(req.ExpiresAt) {
			delete(p.pending, token)
		}
	}
}

// infoMessage extracts an optional top-level "info" string that some list
// endpoints include next to the data.
func infoMessage(raw json.RawMessage) string {
	var env struct {
		Info json.RawMessage `json:"info"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Info) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(env.Info, &s); err == nil {
		return s
	}
	return ""
}
