package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"shiftbook/internal/domain"
	"shiftbook/internal/events"
	"shiftbook/internal/models"
	"shiftbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockAuth) SignOut(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockAuth) Verify(token string) (*models.Session, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func newSessionService(t *testing.T) (*SessionService, *mockAuth, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	auth := new(mockAuth)
	logger := zerolog.Nop()
	repo := repository.NewMemorySessionRepository(time.Hour)
	svc := NewSessionService(auth, env.db, repo, env.bus, 2, time.Minute, &logger)
	return svc, auth, env
}

func TestSessionSignIn(t *testing.T) {
	svc, auth, env := newSessionService(t)
	ctx := context.Background()

	auth.On("SignIn", ctx, "admin@example.com", "pw").
		Return(&models.Session{Token: "tok-a", UserID: "adm", Email: "admin@example.com"}, nil).Once()

	sess, err := svc.SignIn(ctx, " Admin@Example.com ", "pw")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, sess.Role)
	assert.Contains(t, env.published(), events.EventSessionChanged)

	// cached: Verify is not consulted
	got, err := svc.Authenticate(ctx, "tok-a")
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())
	auth.AssertNotCalled(t, "Verify", "tok-a")
}

func TestSessionSignInMirrorsUser(t *testing.T) {
	svc, auth, env := newSessionService(t)
	ctx := context.Background()

	auth.On("SignIn", ctx, "new@example.com", "pw").
		Return(&models.Session{Token: "tok-n", UserID: "u9", Email: "new@example.com"}, nil).Once()

	sess, err := svc.SignIn(ctx, "new@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, sess.Role)

	users, err := env.db.ListUsers(ctx)
	require.NoError(t, err)
	var found bool
	for _, u := range users {
		found = found || u.ID == "u9"
	}
	assert.True(t, found)
}

func TestSessionSignInRateLimited(t *testing.T) {
	svc, auth, _ := newSessionService(t)
	ctx := context.Background()

	bad := &domain.AuthError{Err: errors.New("invalid login credentials")}
	auth.On("SignIn", ctx, "alice@example.com", "nope").Return(nil, bad).Twice()

	for i := 0; i < 2; i++ {
		_, err := svc.SignIn(ctx, "alice@example.com", "nope")
		assert.True(t, domain.IsAuthError(err))
	}
	_, err := svc.SignIn(ctx, "alice@example.com", "nope")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	auth.AssertExpectations(t)
}

func TestSessionAuthenticate(t *testing.T) {
	svc, auth, _ := newSessionService(t)
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "  ")
		assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	})

	t.Run("VerifiedAndCached", func(t *testing.T) {
		auth.On("Verify", "tok-v").Return(&models.Session{Token: "tok-v", UserID: "u1", Email: "alice@example.com"}, nil).Once()

		sess, err := svc.Authenticate(ctx, "tok-v")
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, sess.Role)

		_, err = svc.Authenticate(ctx, "tok-v")
		require.NoError(t, err)
		auth.AssertExpectations(t)
	})

	t.Run("Invalid", func(t *testing.T) {
		auth.On("Verify", "bad").Return(nil, &domain.AuthError{Err: errors.New("signature is invalid")}).Once()
		_, err := svc.Authenticate(ctx, "bad")
		assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
		assert.True(t, domain.IsAuthError(err))
	})

	t.Run("ExpiredCachedSession", func(t *testing.T) {
		require.NoError(t, svc.repo.SetSession(ctx, &models.Session{Token: "old", UserID: "u1", ExpiresAt: time.Now().Add(time.Minute).Unix()}))
		svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		defer func() { svc.now = time.Now }()

		_, err := svc.Authenticate(ctx, "old")
		assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	})
}

func TestSessionSignOut(t *testing.T) {
	svc, auth, env := newSessionService(t)
	ctx := context.Background()

	auth.On("SignIn", ctx, "alice@example.com", "pw").
		Return(&models.Session{Token: "tok-o", UserID: "u1", Email: "alice@example.com"}, nil).Once()
	auth.On("SignOut", ctx, "tok-o").Return(errors.New("upstream down")).Once()
	auth.On("Verify", "tok-o").Return(nil, &domain.AuthError{Err: errors.New("revoked")}).Once()

	_, err := svc.SignIn(ctx, "alice@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, "tok-o"))
	_, err = svc.Authenticate(ctx, "tok-o")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	assert.Equal(t, []string{events.EventSessionChanged, events.EventSessionChanged}, env.published())
	auth.AssertExpectations(t)
}
