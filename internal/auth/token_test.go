package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokenIssuer() *TokenIssuer {
	return NewTokenIssuer(TokenConfig{
		AccessSecret:       "access-secret",
		RefreshSecret:      "refresh-secret",
		VerificationSecret: "verification-secret",
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		VerificationTTL:    24 * time.Hour,
	})
}

// signTestToken builds a token outside the issuer so tests can control
// expiry, subject and purpose freely.
func signTestToken(t *testing.T, secret, subject, purpose string, expiresAt time.Time) string {
	t.Helper()

	claims := tokenClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return encoded
}

func TestIssueAndAuthenticatePerClass(t *testing.T) {
	issuer := testTokenIssuer()

	tests := []struct {
		purpose string
		issue   func(int64) (string, error)
	}{
		{PurposeAccess, issuer.IssueAccess},
		{PurposeRefresh, issuer.IssueRefresh},
		{PurposeVerification, issuer.IssueVerification},
	}

	for _, tc := range tests {
		t.Run(tc.purpose, func(t *testing.T) {
			token, err := tc.issue(42)
			require.NoError(t, err)
			assert.Equal(t, 3, len(strings.Split(token, ".")), "compact JWS has three segments")

			userID, err := issuer.Authenticate(token, tc.purpose)
			require.NoError(t, err)
			assert.Equal(t, int64(42), userID)
		})
	}
}

func TestAuthenticateExpired(t *testing.T) {
	issuer := testTokenIssuer()
	token := signTestToken(t, "access-secret", "42", PurposeAccess, time.Now().UTC().Add(-time.Minute))

	_, err := issuer.Authenticate(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAuthenticateTampered(t *testing.T) {
	issuer := testTokenIssuer()
	token := signTestToken(t, "wrong-secret", "42", PurposeAccess, time.Now().UTC().Add(time.Hour))

	_, err := issuer.Authenticate(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrTokenSignatureInvalid)
}

func TestAuthenticateMalformed(t *testing.T) {
	issuer := testTokenIssuer()

	for _, token := range []string{"", "garbage", "a.b", "a.b.c"} {
		_, err := issuer.Authenticate(token, PurposeAccess)
		assert.ErrorIs(t, err, ErrTokenMalformed, "token %q", token)
	}
}

func TestClassSeparationDistinctSecrets(t *testing.T) {
	issuer := testTokenIssuer()

	refresh, err := issuer.IssueRefresh(42)
	require.NoError(t, err)
	access, err := issuer.IssueAccess(42)
	require.NoError(t, err)

	_, err = issuer.Authenticate(refresh, PurposeAccess)
	assert.Error(t, err)

	_, err = issuer.Authenticate(access, PurposeRefresh)
	assert.Error(t, err)
}

func TestClassSeparationHoldsWithSharedSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenConfig{
		AccessSecret:       "shared",
		RefreshSecret:      "shared",
		VerificationSecret: "shared",
	})

	refresh, err := issuer.IssueRefresh(42)
	require.NoError(t, err)

	// The signature verifies, so only the purpose claim stands between the
	// classes here.
	_, err = issuer.Authenticate(refresh, PurposeAccess)
	assert.ErrorIs(t, err, ErrTokenSignatureInvalid)

	verification, err := issuer.IssueVerification(42)
	require.NoError(t, err)
	_, err = issuer.Authenticate(verification, PurposeAccess)
	assert.ErrorIs(t, err, ErrTokenSignatureInvalid)
}

func TestAuthenticateSubjectValidation(t *testing.T) {
	issuer := testTokenIssuer()
	future := time.Now().UTC().Add(time.Hour)

	missing := signTestToken(t, "access-secret", "", PurposeAccess, future)
	_, err := issuer.Authenticate(missing, PurposeAccess)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	nonNumeric := signTestToken(t, "access-secret", "abc", PurposeAccess, future)
	_, err = issuer.Authenticate(nonNumeric, PurposeAccess)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestAuthenticateUnknownPurpose(t *testing.T) {
	issuer := testTokenIssuer()
	token, err := issuer.IssueAccess(42)
	require.NoError(t, err)

	_, err = issuer.Authenticate(token, "password_reset")
	assert.Error(t, err)
}

func TestAuthenticateRejectsUnexpectedAlgorithm(t *testing.T) {
	issuer := testTokenIssuer()

	claims := tokenClaims{
		Purpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = issuer.Authenticate(token, PurposeAccess)
	assert.Error(t, err)
}
