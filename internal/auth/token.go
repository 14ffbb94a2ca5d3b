package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. A token minted for one purpose never authenticates as
// another, even if two class secrets happen to share a value.
const (
	PurposeAccess       = "access"
	PurposeRefresh      = "refresh"
	PurposeVerification = "email_verification"
)

const (
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 7 * 24 * time.Hour
	defaultVerificationTTL = 24 * time.Hour
)

var (
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
	ErrTokenExpired          = errors.New("token is expired")
)

type tokenClaims struct {
	Purpose string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenConfig struct {
	AccessSecret       string
	RefreshSecret      string
	VerificationSecret string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	VerificationTTL    time.Duration
}

// TokenIssuer mints and authenticates the three token classes. Each class is
// bound to its own signing secret and lifetime.
type TokenIssuer struct {
	secrets map[string][]byte
	ttls    map[string]time.Duration
}

func NewTokenIssuer(cfg TokenConfig) *TokenIssuer {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = defaultVerificationTTL
	}

	return &TokenIssuer{
		secrets: map[string][]byte{
			PurposeAccess:       []byte(cfg.AccessSecret),
			PurposeRefresh:      []byte(cfg.RefreshSecret),
			PurposeVerification: []byte(cfg.VerificationSecret),
		},
		ttls: map[string]time.Duration{
			PurposeAccess:       cfg.AccessTTL,
			PurposeRefresh:      cfg.RefreshTTL,
			PurposeVerification: cfg.VerificationTTL,
		},
	}
}

func (t *TokenIssuer) IssueAccess(userID int64) (string, error) {
	return t.issue(userID, PurposeAccess)
}

func (t *TokenIssuer) IssueRefresh(userID int64) (string, error) {
	return t.issue(userID, PurposeRefresh)
}

func (t *TokenIssuer) IssueVerification(userID int64) (string, error) {
	return t.issue(userID, PurposeVerification)
}

func (t *TokenIssuer) AccessExpiresIn() int64 {
	return int64(t.ttls[PurposeAccess].Seconds())
}

func (t *TokenIssuer) issue(userID int64, purpose string) (string, error) {
	now := time.Now().UTC()
	claims := tokenClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttls[purpose])),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(t.secrets[purpose])
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}

	return encoded, nil
}

// Authenticate decodes an opaque token string under the given purpose's
// secret and returns the subject user id. Failures are classified as
// ErrTokenExpired, ErrTokenSignatureInvalid or ErrTokenMalformed; a token
// minted for a different purpose fails as signature-invalid.
func (t *TokenIssuer) Authenticate(tokenStr, purpose string) (int64, error) {
	secret, ok := t.secrets[purpose]
	if !ok {
		return 0, fmt.Errorf("unknown token purpose: %s", purpose)
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return 0, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return 0, ErrTokenSignatureInvalid
		default:
			return 0, ErrTokenMalformed
		}
	}
	if !token.Valid {
		return 0, ErrTokenSignatureInvalid
	}
	if claims.Purpose != purpose {
		return 0, ErrTokenSignatureInvalid
	}

	if claims.Subject == "" {
		return 0, ErrTokenMalformed
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrTokenMalformed
	}

	return userID, nil
}
