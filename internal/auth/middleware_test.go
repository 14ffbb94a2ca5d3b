package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedProbe(t *testing.T, issuer *TokenIssuer) http.Handler {
	t.Helper()
	return Middleware(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r.Context())
		require.True(t, ok)
		assert.Equal(t, int64(42), userID)
		w.WriteHeader(http.StatusOK)
	}))
}

func TestMiddlewareAcceptsAccessToken(t *testing.T) {
	issuer := testTokenIssuer()
	token, err := issuer.IssueAccess(42)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedProbe(t, issuer).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejections(t *testing.T) {
	issuer := testTokenIssuer()

	refresh, err := issuer.IssueRefresh(42)
	require.NoError(t, err)
	verification, err := issuer.IssueVerification(42)
	require.NoError(t, err)
	expired := signTestToken(t, "access-secret", "42", PurposeAccess, time.Now().UTC().Add(-time.Minute))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwdw=="},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer garbage"},
		{"refresh token", "Bearer " + refresh},
		{"verification token", "Bearer " + verification},
		{"expired token", "Bearer " + expired},
	}

	handler := Middleware(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestUserIDAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := UserID(req.Context())
	assert.False(t, ok)
}
