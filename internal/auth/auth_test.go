package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenRoundTrip(t *testing.T) {
	svc, err := NewTokenService(testSecret)
	require.NoError(t, err)

	token, err := svc.Generate("kernel-user")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "kernel-user", subject)
}

func TestTokenServiceRejectsShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	assert.Error(t, err)
}

func TestValidateRejectsBadTokens(t *testing.T) {
	svc, err := NewTokenService(testSecret)
	require.NoError(t, err)

	other, err := NewTokenService("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	foreign, err := other.Generate("kernel-user")
	require.NoError(t, err)

	expired, err := svc.GenerateWithDuration("kernel-user", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.jwt"},
		{"empty", ""},
		{"wrong secret", foreign},
		{"expired", expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestPasswordServiceVerify(t *testing.T) {
	hash, err := HashPassword("open sesame")
	require.NoError(t, err)

	svc, err := NewPasswordService(hash)
	require.NoError(t, err)

	assert.True(t, svc.Verify("open sesame"))
	assert.False(t, svc.Verify("wrong"))
	assert.False(t, svc.Verify(""))
}

func TestPasswordServiceRejectsBadHash(t *testing.T) {
	_, err := NewPasswordService("")
	assert.Error(t, err)

	_, err = NewPasswordService("not-a-bcrypt-hash")
	assert.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	tokens, err := NewTokenService(testSecret)
	require.NoError(t, err)
	token, err := tokens.Generate("kernel-user")
	require.NoError(t, err)

	var gotSubject string
	protected := RequireAuth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"mangled token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSubject = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "kernel-user", gotSubject)
			} else {
				assert.Contains(t, rec.Body.String(), "unauthorized")
			}
		})
	}
}
