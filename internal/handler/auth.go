package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lunalab/luna-kernel/internal/apperror"
	"github.com/lunalab/luna-kernel/internal/auth"
)

// AuthHandler exchanges the access password for a JWT.
type AuthHandler struct {
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthHandler(tokens *auth.TokenService, passwords *auth.PasswordService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, passwords: passwords, logger: logger}
}

type tokenRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// HandleToken verifies the password and issues an access token. A wrong
// password is a plain 401 with no detail, matching the middleware.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("body", "invalid JSON in request body"))
		return
	}
	if req.Password == "" {
		writeError(w, h.logger, apperror.ValidationFailed("password", "password is required"))
		return
	}

	if !h.passwords.Verify(req.Password) {
		h.logger.Warn("rejected token request with bad password")
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
			Code:    "unauthorized",
			Message: "invalid password",
		}})
		return
	}

	token, err := h.tokens.Generate("kernel-user")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}
