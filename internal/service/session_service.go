package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shiftbook/internal/domain"
	"shiftbook/internal/events"
	"shiftbook/internal/metrics"
	"shiftbook/internal/models"

	"github.com/rs/zerolog"
)

// SessionService establishes sessions through the auth collaborator and keeps
// them in the session repository with the role resolved once.
type SessionService struct {
	auth       domain.Authenticator
	store      domain.Store
	repo       domain.SessionRepository
	eventBus   domain.EventPublisher
	rateLimit  int
	rateWindow time.Duration
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewSessionService(
	auth domain.Authenticator,
	store domain.Store,
	repo domain.SessionRepository,
	eventBus domain.EventPublisher,
	rateLimit int,
	rateWindow time.Duration,
	logger *zerolog.Logger,
) *SessionService {
	return &SessionService{
		auth:       auth,
		store:      store,
		repo:       repo,
		eventBus:   eventBus,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
		logger:     logger,
		now:        time.Now,
	}
}

// SignIn authenticates the user, mirrors them into users and stores the
// session with its role.
func (s *SessionService) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	if s.rateLimit > 0 {
		allowed, err := s.repo.CheckRateLimit(ctx, "sign_in:"+email, s.rateLimit, s.rateWindow)
		if err != nil {
			s.logger.Warn().Err(err).Msg("sign in rate limit check failed")
		} else if !allowed {
			metrics.ObserveSignIn("rate_limited")
			return nil, domain.ErrRateLimited
		}
	}

	sess, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		metrics.ObserveSignIn("rejected")
		return nil, err
	}
	if err := s.establish(ctx, sess); err != nil {
		metrics.ObserveSignIn("error")
		return nil, err
	}
	metrics.ObserveSignIn("ok")

	s.logger.Info().Str("user_id", sess.UserID).Str("role", sess.Role).Msg("user signed in")
	s.publish(sess, true)
	return sess, nil
}

func (s *SessionService) establish(ctx context.Context, sess *models.Session) error {
	if err := s.store.UpsertUser(ctx, &models.User{ID: sess.UserID, Email: sess.Email}); err != nil {
		return err
	}
	role, err := s.store.GetRole(ctx, sess.UserID)
	if err != nil {
		return err
	}
	sess.Role = role
	if err := s.repo.SetSession(ctx, sess); err != nil {
		// сессия валидна и без кэша, роль резолвится повторно
		s.logger.Error().Err(err).Str("user_id", sess.UserID).Msg("failed to store session")
	}
	return nil
}

// Authenticate resolves a bearer token to a session. Tokens issued elsewhere
// (another instance, a previous process) are verified and then cached.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrNotAuthenticated
	}

	sess, err := s.repo.GetSession(ctx, token)
	if err != nil {
		s.logger.Warn().Err(err).Msg("session lookup failed")
	}
	if sess != nil {
		if sess.ExpiresAt > 0 && s.now().Unix() >= sess.ExpiresAt {
			_ = s.repo.ClearSession(ctx, token)
			return nil, domain.ErrNotAuthenticated
		}
		return sess, nil
	}

	sess, err = s.auth.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, err)
	}
	if err := s.establish(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SignOut drops the session locally and revokes it upstream. An upstream
// failure is logged only.
func (s *SessionService) SignOut(ctx context.Context, token string) error {
	sess, err := s.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotAuthenticated) {
			return nil
		}
		return err
	}

	if err := s.auth.SignOut(ctx, token); err != nil {
		s.logger.Warn().Err(err).Str("user_id", sess.UserID).Msg("upstream sign out failed")
	}
	if err := s.repo.ClearSession(ctx, token); err != nil {
		return err
	}

	s.logger.Info().Str("user_id", sess.UserID).Msg("user signed out")
	s.publish(sess, false)
	return nil
}

func (s *SessionService) publish(sess *models.Session, signedIn bool) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.PublishJSON(events.EventSessionChanged, events.SessionEventPayload{
		UserID:   sess.UserID,
		Email:    sess.Email,
		Role:     sess.Role,
		SignedIn: signedIn,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("publish session event error")
	}
}
