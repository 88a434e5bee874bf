package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/models"
	"smartplug/backend/services/plug-console/internal/service"
)

// Authenticator registers and logs in users.
type Authenticator interface {
	Signup(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
}

// AuthHandlers serves the account endpoints.
type AuthHandlers struct {
	auth   Authenticator
	logger *zap.Logger
}

// NewAuthHandlers returns handler struct.
func NewAuthHandlers(auth Authenticator, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{auth: auth, logger: logger}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *credentials) valid() bool {
	c.Email = strings.TrimSpace(c.Email)
	return c.Email != "" && c.Password != ""
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.valid() {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailInUse):
			writeError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, service.ErrMissingCredentials):
			writeError(w, http.StatusBadRequest, "email and password are required")
		default:
			h.logger.Error("signup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Token     string       `json:"token"`
		TokenType string       `json:"token_type"`
		User      *models.User `json:"user"`
	}

	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.valid() {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}
	writeJSON(w, http.StatusOK, response{Token: token, TokenType: "Bearer", User: user})
}
