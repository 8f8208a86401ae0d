package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"shiftbook/internal/database"
	"shiftbook/internal/events"
	"shiftbook/internal/models"
	"shiftbook/internal/slots"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// 2025-06-10 is a Tuesday.
var fixedNow = time.Date(2025, time.June, 10, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	db      *database.DB
	bus     *events.EventBus
	svc     *CalendarService
	user    *models.Session
	other   *models.Session
	admin   *models.Session
	events  []string
	eventMu sync.Mutex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", true, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertUser(ctx, &models.User{ID: "u1", Email: "alice@example.com"}))
	require.NoError(t, db.UpsertUser(ctx, &models.User{ID: "u2", Email: "bob@example.com"}))
	require.NoError(t, db.UpsertUser(ctx, &models.User{ID: "adm", Email: "admin@example.com"}))
	require.NoError(t, db.SetRole(ctx, "adm", models.RoleAdmin))

	env := &testEnv{
		db:    db,
		bus:   events.NewEventBus(),
		user:  &models.Session{Token: "t1", UserID: "u1", Email: "alice@example.com", Role: models.RoleUser},
		other: &models.Session{Token: "t2", UserID: "u2", Email: "bob@example.com", Role: models.RoleUser},
		admin: &models.Session{Token: "t3", UserID: "adm", Email: "admin@example.com", Role: models.RoleAdmin},
	}
	for _, typ := range []string{
		events.EventBookingCreated, events.EventBookingCanceled, events.EventBlockCompleted,
		events.EventClosedDayAdded, events.EventClosedDayRemoved, events.EventSessionChanged,
	} {
		env.bus.Subscribe(typ, func(e *events.Event) error {
			env.eventMu.Lock()
			env.events = append(env.events, e.Type)
			env.eventMu.Unlock()
			return nil
		})
	}

	env.svc = NewCalendarService(db, env.bus, slots.Default(), time.UTC, models.DefaultMaxBlockDays, &logger)
	env.svc.now = func() time.Time { return fixedNow }
	return env
}

func (e *testEnv) published() []string {
	e.eventMu.Lock()
	defer e.eventMu.Unlock()
	return append([]string(nil), e.events...)
}
