package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]User
	byEmail map[string]int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		nextID:  1,
		users:   make(map[int64]User),
		byEmail: make(map[string]int64),
	}
}

func (s *fakeUserStore) Create(_ context.Context, email, passwordHash string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return User{}, ErrDuplicateEmail
	}

	now := time.Now().UTC()
	user := User{
		ID:           s.nextID,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.nextID++
	s.users[user.ID] = user
	s.byEmail[email] = user.ID

	return user, nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *fakeUserStore) MarkVerified(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.Verified = true
	s.users[id] = user
	return nil
}

type fakeMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *fakeMailer) SendVerification(_ context.Context, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return nil
}

func (m *fakeMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.links)
	link := m.links[len(m.links)-1]
	idx := strings.LastIndex(link, "/")
	require.Greater(t, idx, 0)
	return link[idx+1:]
}

func newTestService(issuer *TokenIssuer) (*Service, *fakeUserStore, *fakeMailer) {
	store := newFakeUserStore()
	mailer := &fakeMailer{}
	service := NewService(store, NewPasswordHasher(bcrypt.MinCost), issuer, mailer, "http://localhost:8080/")
	return service, store, mailer
}

func TestRegisterSendsVerificationLink(t *testing.T) {
	service, _, mailer := newTestService(testTokenIssuer())
	ctx := context.Background()

	user, err := service.Register(ctx, "a@x.com", "pw1secret")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.False(t, user.Verified)

	token := mailer.lastToken(t)
	userID, err := testTokenIssuer().Authenticate(token, PurposeVerification)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	require.Len(t, mailer.links, 1)
	assert.True(t, strings.HasPrefix(mailer.links[0], "http://localhost:8080/auth/verify/"))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	service, _, _ := newTestService(testTokenIssuer())
	ctx := context.Background()

	_, err := service.Register(ctx, "a@x.com", "pw1secret")
	require.NoError(t, err)

	_, err = service.Register(ctx, "a@x.com", "other-password")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestLoginPolicy(t *testing.T) {
	service, store, mailer := newTestService(testTokenIssuer())
	ctx := context.Background()

	user, err := service.Register(ctx, "a@x.com", "pw1secret")
	require.NoError(t, err)

	// Correct credentials against an unverified account: rejected distinctly
	// from wrong credentials.
	_, err = service.Login(ctx, "a@x.com", "pw1secret")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	_, err = service.Login(ctx, "a@x.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = service.Login(ctx, "nobody@x.com", "pw1secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, service.VerifyEmail(ctx, mailer.lastToken(t)))

	tokens, err := service.Login(ctx, "a@x.com", "pw1secret")
	require.NoError(t, err)
	assert.Equal(t, "bearer", tokens.TokenType)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	stored, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
}

func TestVerifyEmailIdempotent(t *testing.T) {
	service, _, mailer := newTestService(testTokenIssuer())
	ctx := context.Background()

	_, err := service.Register(ctx, "a@x.com", "pw1secret")
	require.NoError(t, err)
	token := mailer.lastToken(t)

	require.NoError(t, service.VerifyEmail(ctx, token))
	// Replaying a still-valid token against an already-verified account is a
	// no-op, not an error.
	require.NoError(t, service.VerifyEmail(ctx, token))
}

func TestVerifyEmailExpiredBeatsIdempotence(t *testing.T) {
	service, store, mailer := newTestService(testTokenIssuer())
	ctx := context.Background()

	user, err := service.Register(ctx, "a@x.com", "pw1secret")
	require.NoError(t, err)
	require.NoError(t, service.VerifyEmail(ctx, mailer.lastToken(t)))

	expired := signTestToken(t, "verification-secret", "1", PurposeVerification, time.Now().UTC().Add(-time.Minute))
	err = service.VerifyEmail(ctx, expired)
	assert.ErrorIs(t, err, ErrVerificationExpired)

	stored, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
}

func TestVerifyEmailClassification(t *testing.T) {
	service, _, _ := newTestService(testTokenIssuer())
	ctx := context.Background()

	err := service.VerifyEmail(ctx, "garbage")
	assert.ErrorIs(t, err, ErrVerificationInvalid)

	tampered := signTestToken(t, "wrong-secret", "1", PurposeVerification, time.Now().UTC().Add(time.Hour))
	err = service.VerifyEmail(ctx, tampered)
	assert.ErrorIs(t, err, ErrVerificationInvalid)

	// Access tokens never verify an email, even when well-formed.
	access := signTestToken(t, "verification-secret", "1", PurposeAccess, time.Now().UTC().Add(time.Hour))
	err = service.VerifyEmail(ctx, access)
	assert.ErrorIs(t, err, ErrVerificationInvalid)

	// Well-formed token for a subject that does not exist.
	unknown := signTestToken(t, "verification-secret", "999", PurposeVerification, time.Now().UTC().Add(time.Hour))
	err = service.VerifyEmail(ctx, unknown)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRefresh(t *testing.T) {
	issuer := testTokenIssuer()
	service, _, mailer := newTestService(issuer)
	ctx := context.Background()

	_, err := service.Register(ctx, "a@x.com", "pw1secret")
	require.NoError(t, err)
	require.NoError(t, service.VerifyEmail(ctx, mailer.lastToken(t)))

	tokens, err := service.Login(ctx, "a@x.com", "pw1secret")
	require.NoError(t, err)

	fresh, err := service.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)
	assert.NotEmpty(t, fresh.RefreshToken)

	// An access token is not accepted on the refresh path.
	_, err = service.Refresh(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// Expired refresh token.
	expired := signTestToken(t, "refresh-secret", "1", PurposeRefresh, time.Now().UTC().Add(-time.Minute))
	_, err = service.Refresh(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// Well-formed refresh token for a deleted account.
	unknown := signTestToken(t, "refresh-secret", "999", PurposeRefresh, time.Now().UTC().Add(time.Hour))
	_, err = service.Refresh(ctx, unknown)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}
