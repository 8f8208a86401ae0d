package api

import (
	"sync"

	"shiftbook/internal/config"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// rateLimiter hands out one token bucket per client key.
type rateLimiter struct {
	limiters sync.Map
	limit    rate.Limit
	burst    int
}

// newRateLimiter returns nil when cfg disables limiting.
func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	if cfg.RPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &rateLimiter{limit: rate.Limit(cfg.RPS), burst: burst}
}

func (l *rateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.get(key).Allow()
}

func (l *rateLimiter) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	lim := rate.NewLimiter(l.limit, l.burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
