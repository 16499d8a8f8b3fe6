package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/DukeRupert/mapaclientes/internal/domain"
)

// NetworkError reports that the backend could not be reached at all.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

// Error returns the message shown to users. The transport detail stays in Err.
func (e *NetworkError) Error() string {
	return "Error de conexión: No se pudo conectar al servidor"
}

// Detail includes the request line and the transport error, for logs.
func (e *NetworkError) Detail() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPStatusError reports a non-2xx response. Its message matches the
// status line format shown to users: "Error 404: Not Found".
type HTTPStatusError struct {
	Status     int
	StatusText string
	Method     string
	Path       string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("Error %d: %s", e.Status, e.StatusText)
}

// UnknownEnvelopeError reports a list response whose shape was not recognised.
type UnknownEnvelopeError struct {
	Snippet string
	Err     error
}

func (e *UnknownEnvelopeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unknown list envelope %q: %v", e.Snippet, e.Err)
	}
	return fmt.Sprintf("unknown list envelope %q", e.Snippet)
}

func (e *UnknownEnvelopeError) Unwrap() error {
	return e.Err
}

// HealthError reports that none of the liveness paths answered with 2xx.
// Last is the error observed on the final path tried.
type HealthError struct {
	Tried []string
	Last  error
}

func (e *HealthError) Error() string {
	msg := "Error de conexión: Ningún endpoint de salud disponible"
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *HealthError) Unwrap() error {
	return e.Last
}

// IsNetworkError reports whether err was caused by a transport failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// StatusCode returns the HTTP status of a backend error, or 0.
func StatusCode(err error) int {
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Code maps a client error onto the domain error codes.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return domain.EUNAVAILABLE
	}
	var he *HealthError
	if errors.As(err, &he) {
		return domain.EUNAVAILABLE
	}
	var se *HTTPStatusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return domain.EINVALID
		case http.StatusUnauthorized:
			return domain.EUNAUTHORIZED
		case http.StatusForbidden:
			return domain.EFORBIDDEN
		case http.StatusNotFound:
			return domain.ENOTFOUND
		case http.StatusConflict:
			return domain.ECONFLICT
		case http.StatusTooManyRequests:
			return domain.ERATELIMIT
		default:
			return domain.EUPSTREAM
		}
	}
	return domain.EINTERNAL
}

// ToDomain wraps a client error into a *domain.Error for op. The message is
// what the dashboard shows the user.
func ToDomain(err error, op string) error {
	if err == nil {
		return nil
	}
	code := Code(err)
	switch code {
	case domain.EUNAVAILABLE:
		return domain.Unavailable(err, op)
	case domain.EUPSTREAM:
		return domain.Upstream(err, op)
	case domain.EINTERNAL:
		return domain.Internal(err, op, "Respuesta inesperada del servidor")
	default:
		return &domain.Error{Code: code, Op: op, Message: err.Error(), Err: err}
	}
}
