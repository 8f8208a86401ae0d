package domain

import (
	"context"
	"time"

	"shiftbook/internal/models"
)

// Store is the only channel through which the core reads or writes persistent
// state. Every failure is returned as a *StoreError unless it is one of the
// recognizable sentinels (ErrSlotTaken, ErrAlreadyCanceled, ErrNotFound).
type Store interface {
	FetchBookings(ctx context.Context, year int, month time.Month) ([]*models.Booking, error)
	FetchClosedDays(ctx context.Context, year int, month time.Month) ([]*models.ClosedDay, error)
	FetchUserShifts(ctx context.Context, userID, today string) ([]*models.Booking, error)
	FetchUserBookings(ctx context.Context, userID string) ([]*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	BookShift(ctx context.Context, req models.SlotRequest) (*models.Booking, error)
	CancelShift(ctx context.Context, id string, at time.Time) error

	AddClosedDay(ctx context.Context, date, reason string) (*models.ClosedDay, error)
	DeleteClosedDay(ctx context.Context, id string) error

	ListUsers(ctx context.Context) ([]*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error
	GetRole(ctx context.Context, userID string) (string, error)

	Ping(ctx context.Context) error
	Close() error
}

// SessionRepository keeps resolved sessions between requests.
type SessionRepository interface {
	GetSession(ctx context.Context, token string) (*models.Session, error)
	SetSession(ctx context.Context, session *models.Session) error
	ClearSession(ctx context.Context, token string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Authenticator is the backend-as-a-service auth collaborator.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, token string) error
	Verify(token string) (*models.Session, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type StatsWriter interface {
	WriteMonthStats(ctx context.Context, period string, rows []StatsRow) error
}

type SyncWorker interface {
	EnqueueMonth(ctx context.Context, year int, month time.Month) error
}

// StatsRow is one user's line in a statistics table.
type StatsRow struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	HoursWorked   int    `json:"hours_worked"`
	HoursBooked   int    `json:"hours_booked"`
	ShiftsBooked  int    `json:"shifts_booked"`
	Cancellations int    `json:"cancellations"`
}
