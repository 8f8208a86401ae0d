package repository

import (
	"context"
	"sync/atomic"
	"time"

	"shiftbook/internal/domain"
	"shiftbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionRepository uses primary until it fails, then serves from
// fallback and retries primary once per recoveryInterval.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

var _ domain.SessionRepository = (*FailoverSessionRepository)(nil)

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	if r.now().Sub(last) < recoveryInterval {
		return false
	}
	r.lastCheck.Store(r.now().UnixNano())
	return true
}

func (r *FailoverSessionRepository) report(err error) {
	if err == nil {
		if r.isDown.CompareAndSwap(true, false) {
			r.logger.Info().Msg("Primary session repository recovered")
		}
		return
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

// IsDown reports whether calls are currently served by the fallback.
func (r *FailoverSessionRepository) IsDown() bool {
	return r.isDown.Load()
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, token string) (*models.Session, error) {
	if r.usePrimary() {
		s, err := r.primary.GetSession(ctx, token)
		r.report(err)
		if err == nil {
			if s != nil {
				return s, nil
			}
			// Сессия могла быть сохранена в память, пока Redis был недоступен
			return r.fallback.GetSession(ctx, token)
		}
	}
	return r.fallback.GetSession(ctx, token)
}

func (r *FailoverSessionRepository) SetSession(ctx context.Context, s *models.Session) error {
	if r.usePrimary() {
		err := r.primary.SetSession(ctx, s)
		r.report(err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.SetSession(ctx, s)
}

// ClearSession removes the token from both repositories.
func (r *FailoverSessionRepository) ClearSession(ctx context.Context, token string) error {
	if r.usePrimary() {
		r.report(r.primary.ClearSession(ctx, token))
	}
	return r.fallback.ClearSession(ctx, token)
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.report(err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
