package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	MarkVerified(ctx context.Context, id int64) error
}

type VerificationMailer interface {
	SendVerification(ctx context.Context, email, link string) error
}

type Service struct {
	store   UserStore
	hasher  *PasswordHasher
	tokens  *TokenIssuer
	mailer  VerificationMailer
	baseURL string
}

func NewService(store UserStore, hasher *PasswordHasher, tokens *TokenIssuer, mailer VerificationMailer, baseURL string) *Service {
	return &Service{
		store:   store,
		hasher:  hasher,
		tokens:  tokens,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Register creates an unverified account and sends the verification link.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}

	user, err := s.store.Create(ctx, email, hash)
	if err != nil {
		return User{}, err
	}

	token, err := s.tokens.IssueVerification(user.ID)
	if err != nil {
		return User{}, err
	}

	link := fmt.Sprintf("%s/auth/verify/%s", s.baseURL, token)
	if err := s.mailer.SendVerification(ctx, user.Email, link); err != nil {
		return User{}, fmt.Errorf("send verification mail: %w", err)
	}

	return user, nil
}

// Login checks credentials and issues an access/refresh pair. An unknown
// email and a wrong password fail identically; a correct password against an
// unverified account fails with ErrEmailNotVerified.
func (s *Service) Login(ctx context.Context, email, password string) (Tokens, error) {
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Tokens{}, ErrInvalidCredentials
		}
		return Tokens{}, err
	}

	if !s.hasher.Check(password, user.PasswordHash) {
		return Tokens{}, ErrInvalidCredentials
	}
	if !user.Verified {
		return Tokens{}, ErrEmailNotVerified
	}

	return s.issuePair(user.ID)
}

// Refresh trades a valid refresh token for a fresh access/refresh pair.
// Expiry is the only revocation mechanism; nothing is stored.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	userID, err := s.tokens.Authenticate(refreshToken, PurposeRefresh)
	if err != nil {
		return Tokens{}, ErrInvalidRefreshToken
	}

	if _, err := s.store.GetByID(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Tokens{}, ErrInvalidRefreshToken
		}
		return Tokens{}, err
	}

	return s.issuePair(userID)
}

// VerifyEmail drives the unverified -> verified transition. Expiry is checked
// before the user lookup, so an expired token fails even for an account that
// is already verified. Re-verifying an already-verified account succeeds.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.tokens.Authenticate(token, PurposeVerification)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return ErrVerificationExpired
		}
		return ErrVerificationInvalid
	}

	return s.store.MarkVerified(ctx, userID)
}

func (s *Service) issuePair(userID int64) (Tokens, error) {
	access, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return Tokens{}, err
	}

	refresh, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    s.tokens.AccessExpiresIn(),
	}, nil
}

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailNotVerified    = errors.New("email not verified")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrVerificationExpired = errors.New("verification token expired")
	ErrVerificationInvalid = errors.New("verification token invalid")
)
