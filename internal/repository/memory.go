package repository

import (
	"context"
	"sync"
	"time"

	"shiftbook/internal/models"
)

// MemorySessionRepository is the in-process fallback when Redis is down.
type MemorySessionRepository struct {
	mu         sync.Mutex
	sessions   map[string]memorySession
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

type memorySession struct {
	session   *models.Session
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions:   make(map[string]memorySession),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemorySessionRepository) GetSession(_ context.Context, token string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[token]
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt) {
		delete(r.sessions, token)
		return nil, nil
	}
	cp := *entry.session
	return &cp, nil
}

func (r *MemorySessionRepository) SetSession(_ context.Context, s *models.Session) error {
	now := r.now()
	entry := memorySession{session: new(models.Session)}
	*entry.session = *s
	if ttl := sessionTTL(s, r.ttl, now); ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}

	r.mu.Lock()
	r.sessions[s.Token] = entry
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) ClearSession(_ context.Context, token string) error {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
