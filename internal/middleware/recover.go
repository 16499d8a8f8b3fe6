package middleware

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"runtime/debug"
)

var recoveryPage = template.Must(template.New("recovery").Parse(`<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>Algo salió mal · MapaClientes</title>
<link rel="stylesheet" href="/static/app.css">
</head>
<body class="recovery">
<main class="card recovery-card">
  <h1>Algo salió mal</h1>
  <p>Ocurrió un error inesperado al mostrar esta página.</p>
  <div class="actions">
    <a class="btn btn-primary" href="{{.Reload}}">Recargar</a>
    <a class="btn btn-secondary" href="/">Volver al inicio</a>
  </div>
</main>
</body>
</html>`))

// Recoverer turns a panicking handler into a recovery page offering to
// reload the same URL or go back to the dashboard. JSON callers get a 500
// body instead.
type Recoverer struct {
	logger *slog.Logger
}

// NewRecoverer creates the recovery middleware.
func NewRecoverer(logger *slog.Logger) *Recoverer {
	return &Recoverer{logger: logger}
}

// Handler wraps next with panic recovery.
func (m *Recoverer) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			m.logger.Error("panic recovered",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()),
			)

			if isAPIRequest(r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal","message":"Ocurrió un error interno. Intenta nuevamente más tarde."}`))
				return
			}

			reload := "/"
			if r.Method == http.MethodGet {
				reload = r.URL.RequestURI()
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusInternalServerError)
			if err := recoveryPage.Execute(w, struct{ Reload string }{reload}); err != nil {
				m.logger.Error("failed to render recovery page", "error", err)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
