package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/mapaclientes/internal/domain"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api/"}), srv
}

// =============================================================================
// Request
// =============================================================================

func TestRequest_SetsJSONHeadersAndBody(t *testing.T) {
	var gotContentType, gotAuth, gotMethod, gotPath string
	var gotBody map[string]string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":10,"descripcion":"Truck A"}`))
	}))

	ctx := WithToken(context.Background(), "secret-token")
	raw, err := c.Post(ctx, "/camiones", map[string]string{"descripcion": "Truck A"})
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/camiones", gotPath)
	assert.Equal(t, "Truck A", gotBody["descripcion"])
	assert.JSONEq(t, `{"id":10,"descripcion":"Truck A"}`, string(raw))
}

func TestRequest_CallerHeadersOverrideDefaults(t *testing.T) {
	var gotContentType string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))

	raw, err := c.Request(context.Background(), "/camiones/1", RequestOptions{
		Method:  http.MethodPut,
		Body:    []byte(`descripcion=x`),
		Headers: map[string]string{"Content-Type": "text/plain"},
	})
	require.NoError(t, err)
	assert.Nil(t, raw, "empty 2xx body yields nil")
	assert.Equal(t, "text/plain", gotContentType)
}

func TestRequest_NonOKStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	}))

	_, err := c.Get(context.Background(), "/clientes")
	require.Error(t, err)

	var se *HTTPStatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.Status)
	assert.Equal(t, "Error 500: Internal Server Error", err.Error())
	assert.Equal(t, "/clientes", se.Path)
	assert.Equal(t, 500, StatusCode(err))
	assert.Equal(t, domain.EUPSTREAM, Code(err))
}

func TestRequest_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url})
	_, err := c.Get(context.Background(), "/clientes")
	require.Error(t, err)

	assert.True(t, IsNetworkError(err))
	assert.Equal(t, domain.EUNAVAILABLE, Code(err))
	assert.Contains(t, err.Error(), "Error de conexión")

	wrapped := ToDomain(err, "panel.list")
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(wrapped))
	assert.Equal(t, "panel.list", domain.ErrorOp(wrapped))
}

func TestRequest_InvalidJSON(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>hola</html>")
	}))

	_, err := c.Get(context.Background(), "/camiones")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
	assert.False(t, IsNetworkError(err))
}

func TestRequest_HonoursCanceledContext(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "/camiones")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCode_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusBadRequest, domain.EINVALID},
		{http.StatusUnauthorized, domain.EUNAUTHORIZED},
		{http.StatusForbidden, domain.EFORBIDDEN},
		{http.StatusNotFound, domain.ENOTFOUND},
		{http.StatusConflict, domain.ECONFLICT},
		{http.StatusTooManyRequests, domain.ERATELIMIT},
		{http.StatusBadGateway, domain.EUPSTREAM},
	}
	for _, tt := range tests {
		err := &HTTPStatusError{Status: tt.status, StatusText: http.StatusText(tt.status)}
		assert.Equal(t, tt.want, Code(err), "status %d", tt.status)
	}
	assert.Equal(t, domain.EINTERNAL, Code(errors.New("other")))
}
