package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"shiftbook/internal/config"
	"shiftbook/internal/events"
	"shiftbook/internal/models"
	"shiftbook/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStoreSQLite(t *testing.T) {
	logger := zerolog.Nop()
	cfg := &config.Config{Store: config.StoreConfig{
		Backend: config.BackendSQLite,
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "shiftbook.db")},
	}}

	st, err := OpenStore(cfg, nil, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NotNil(t, st.SQLite)
	require.NoError(t, st.Ping(context.Background()))
	require.NoError(t, st.UpsertUser(context.Background(), &models.User{ID: "u1", Email: "a@example.com"}))
	users, err := st.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestOpenStoreREST(t *testing.T) {
	logger := zerolog.Nop()
	cfg := &config.Config{Store: config.StoreConfig{
		Backend: config.BackendREST,
		REST:    config.RESTConfig{URL: "http://127.0.0.1:1", APIKey: "key", Timeout: 1},
	}}

	st, err := OpenStore(cfg, nil, &logger)
	require.NoError(t, err)
	assert.Nil(t, st.SQLite)
}

func TestOpenStoreUnknown(t *testing.T) {
	logger := zerolog.Nop()
	_, err := OpenStore(&config.Config{Store: config.StoreConfig{Backend: "mongo"}}, nil, &logger)
	assert.Error(t, err)
}

func TestOpenRedis(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()

	assert.Nil(t, OpenRedis(ctx, config.RedisConfig{}, &logger))

	mr := miniredis.RunT(t)
	client := OpenRedis(ctx, config.RedisConfig{Address: mr.Addr()}, &logger)
	require.NotNil(t, client)
	t.Cleanup(func() { client.Close() })

	assert.Nil(t, OpenRedis(ctx, config.RedisConfig{Address: "127.0.0.1:1"}, &logger))
}

func TestSessionRepository(t *testing.T) {
	logger := zerolog.Nop()
	_, ok := SessionRepository(nil, time.Hour, &logger).(*repository.MemorySessionRepository)
	assert.True(t, ok)

	mr := miniredis.RunT(t)
	client := repository.NewRedisClient(config.RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	_, ok = SessionRepository(client, time.Hour, &logger).(*repository.FailoverSessionRepository)
	assert.True(t, ok)
}

func TestPublisherWithoutBroker(t *testing.T) {
	logger := zerolog.Nop()
	bus := events.NewEventBus()
	pub, closeFn := Publisher(config.EventsConfig{}, bus, &logger)
	defer closeFn()

	got := make(chan string, 1)
	bus.Subscribe(events.EventClosedDayAdded, func(e *events.Event) error {
		got <- e.Type
		return nil
	})
	require.NoError(t, pub.PublishJSON(events.EventClosedDayAdded, events.ClosedDayEventPayload{ID: "c1", Date: "2025-06-12"}))
	assert.Equal(t, events.EventClosedDayAdded, <-got)
}

func TestCalendarServiceConfig(t *testing.T) {
	logger := zerolog.Nop()
	_, err := CalendarService(config.BookingConfig{SlotHours: []int{9, 13}, Timezone: "UTC", MaxBlockDays: 30}, nil, nil, &logger)
	require.NoError(t, err)

	_, err = CalendarService(config.BookingConfig{SlotHours: []int{9}, Timezone: "Mars/Base"}, nil, nil, &logger)
	assert.Error(t, err)
}
