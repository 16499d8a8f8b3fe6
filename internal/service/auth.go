package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/DukeRupert/mapaclientes/internal/apiclient"
	"github.com/DukeRupert/mapaclientes/internal/domain"
)

// MsgLoginFailed is used when the backend rejects a login without a message.
const MsgLoginFailed = "Error en el login"

// Credentials are submitted by the login form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is what a successful backend login yields.
type LoginResult struct {
	Token string
	User  domain.Usuario
}

// AuthService authenticates against the backend's /usuarios/login endpoint.
type AuthService struct {
	backend Backend
	logger  *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(backend Backend, logger *slog.Logger) *AuthService {
	return &AuthService{backend: backend, logger: logger}
}

// loginResponse is {success, message} where message is either the payload
// or an error string.
type loginResponse struct {
	Success bool            `json:"success"`
	Message json.RawMessage `json:"message"`
}

type loginPayload struct {
	Token   string         `json:"token"`
	Usuario domain.Usuario `json:"usuario"`
}

// Login validates the credentials locally, then asks the backend.
// Returns EINVALID for a malformed form, EUNAUTHORIZED when the backend
// rejects the credentials and EUNAVAILABLE when it cannot be reached.
func (s *AuthService) Login(ctx context.Context, c Credentials) (*LoginResult, error) {
	const op = "auth.login"

	c.Email = strings.TrimSpace(c.Email)
	var verr error
	if c.Email == "" {
		verr = domain.AddFieldError(verr, "email", "El email es requerido")
	} else if _, err := mail.ParseAddress(c.Email); err != nil {
		verr = domain.AddFieldError(verr, "email", "El email no es válido")
	}
	if c.Password == "" {
		verr = domain.AddFieldError(verr, "password", "La contraseña es requerida")
	}
	if verr != nil {
		return nil, verr
	}

	raw, err := s.backend.Post(ctx, "/usuarios/login", c)
	if err != nil {
		var se *apiclient.HTTPStatusError
		if errors.As(err, &se) && (se.Status == 400 || se.Status == 401 || se.Status == 403) {
			s.logger.Info("login rejected", "op", op, "status", se.Status)
			return nil, domain.Unauthorized(op, rejectionMessage([]byte(se.Body)))
		}
		s.logger.Warn("login request failed", "op", op, "error", err)
		return nil, apiclient.ToDomain(err, op)
	}

	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, domain.Wrap(err, domain.EUPSTREAM, op, "Respuesta de login inválida")
	}
	if !resp.Success {
		s.logger.Info("login rejected", "op", op)
		return nil, domain.Unauthorized(op, rejectionMessage(raw))
	}

	var payload loginPayload
	if err := json.Unmarshal(resp.Message, &payload); err != nil || payload.Token == "" {
		return nil, domain.Errorf(domain.EUPSTREAM, op, "Respuesta de login inválida")
	}

	s.logger.Info("user logged in", "op", op, "user_id", payload.Usuario.ID)
	return &LoginResult{Token: payload.Token, User: payload.Usuario}, nil
}

// rejectionMessage pulls the string message out of a failed login body.
func rejectionMessage(raw []byte) string {
	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err == nil {
		var msg string
		if json.Unmarshal(resp.Message, &msg) == nil && msg != "" {
			return msg
		}
	}
	return MsgLoginFailed
}
