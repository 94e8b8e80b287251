package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunalab/luna-kernel/internal/auth"
)

func authRouter(t *testing.T) (*chi.Mux, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	passwords, err := auth.NewPasswordService(hash)
	require.NoError(t, err)

	h := NewAuthHandler(tokens, passwords, slog.New(slog.DiscardHandler))
	r := chi.NewRouter()
	r.Post("/auth/token", h.HandleToken)
	return r, tokens
}

func TestHandleTokenIssuesValidJWT(t *testing.T) {
	router, tokens := authRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/token",
		map[string]string{"password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)

	subject, err := tokens.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "kernel-user", subject)
}

func TestHandleTokenRejectsWrongPassword(t *testing.T) {
	router, _ := authRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/token",
		map[string]string{"password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestHandleTokenValidation(t *testing.T) {
	router, _ := authRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/token", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_failed")
}
