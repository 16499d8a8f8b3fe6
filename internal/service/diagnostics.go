package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/DukeRupert/mapaclientes/internal/apiclient"
	"github.com/DukeRupert/mapaclientes/internal/domain"
)

// Messages shown by the configuration page checks.
const (
	MsgBackendOK    = "Conexión al backend exitosa"
	MsgBackendError = "No se pudo conectar al backend"
	MsgDatabaseOK   = "Conexión a la base de datos exitosa"
	MsgDatabaseFail = "No se pudo conectar a la base de datos"
)

// Diagnostics runs the manual connectivity checks on the configuration page.
type Diagnostics struct {
	backend Backend
	logger  *slog.Logger
}

// NewDiagnostics creates a Diagnostics service.
func NewDiagnostics(backend Backend, logger *slog.Logger) *Diagnostics {
	return &Diagnostics{backend: backend, logger: logger}
}

// PingBackend calls /ping and notifies the outcome.
func (d *Diagnostics) PingBackend(ctx context.Context) error {
	const op = "diagnostics.ping_backend"

	if _, err := d.backend.Get(ctx, "/ping"); err != nil {
		d.logger.Warn("backend ping failed", "op", op, "error", err)
		d.notify(ctx, NotifyError, MsgBackendError)
		return apiclient.ToDomain(err, op)
	}
	d.notify(ctx, NotifySuccess, MsgBackendOK)
	return nil
}

// PingDatabase calls /ping?db=1. The backend must answer with a truthy db
// field; a 2xx response alone is not enough.
func (d *Diagnostics) PingDatabase(ctx context.Context) error {
	const op = "diagnostics.ping_database"

	raw, err := d.backend.Get(ctx, "/ping?db=1")
	if err != nil {
		d.logger.Warn("database ping failed", "op", op, "error", err)
		d.notify(ctx, NotifyError, MsgDatabaseFail)
		return apiclient.ToDomain(err, op)
	}

	var body struct {
		DB json.RawMessage `json:"db"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &body) != nil || !truthy(body.DB) {
		d.logger.Warn("database ping returned no db flag", "op", op)
		d.notify(ctx, NotifyError, MsgDatabaseFail)
		return domain.Errorf(domain.EUNAVAILABLE, op, MsgDatabaseFail)
	}
	d.notify(ctx, NotifySuccess, MsgDatabaseOK)
	return nil
}

func (d *Diagnostics) notify(ctx context.Context, kind NotificationKind, msg string) {
	n := notifierFrom(ctx)
	if n == nil {
		n = logNotifier{logger: d.logger}
	}
	n.Notify(Notification{Kind: kind, Message: msg})
}

// truthy follows the usual loose rules: false, 0, "", null and missing are
// false; anything else is true.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}
