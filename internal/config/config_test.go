package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SHIFTBOOK_TEST_KEY", "anon-key")

	path := writeConfig(t, `
store:
  backend: rest
  rest:
    url: "https://project.example.co"
    api_key: "${SHIFTBOOK_TEST_KEY}"
booking:
  slot_hours: [8, 12, 16, 20]
  enforce_unique_slot: false
  timezone: "UTC"
api:
  enabled: true
auth:
  jwt_secret: "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anon-key", cfg.Store.REST.APIKey)
	assert.Equal(t, "anon-key", cfg.Auth.AnonKey)
	assert.Equal(t, "https://project.example.co/auth/v1", cfg.Auth.URL)
	assert.Equal(t, []int{8, 12, 16, 20}, cfg.Booking.SlotHours)
	assert.False(t, cfg.Booking.UniqueSlot())
	assert.True(t, cfg.API.HTTP.Enabled)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)

	grid, err := cfg.Booking.Grid()
	require.NoError(t, err)
	assert.True(t, grid.Contains(20))
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "data/shiftbook.db", cfg.Store.SQLite.Path)
	assert.Equal(t, []int{7, 11, 15, 19}, cfg.Booking.SlotHours)
	assert.True(t, cfg.Booking.UniqueSlot())
	assert.Equal(t, "UTC", cfg.Booking.Timezone)
	assert.Equal(t, 62, cfg.Booking.MaxBlockDays)
	assert.Equal(t, 12*60*60, cfg.Auth.SessionTTLSeconds)
	assert.Equal(t, "shiftbook.events", cfg.Events.Exchange)
	assert.False(t, cfg.Google.Enabled())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{Store: StoreConfig{Backend: BackendSQLite, SQLite: SQLiteConfig{Path: "x.db"}}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, true},
		{"rest without url", func(c *Config) { c.Store.Backend = BackendREST }, true},
		{"postgres without host", func(c *Config) { c.Store.Backend = BackendPostgres }, true},
		{"bad grid", func(c *Config) { c.Booking.SlotHours = []int{22} }, true},
		{"bad timezone", func(c *Config) { c.Booking.Timezone = "Mars/Olympus" }, true},
		{"api without jwt secret", func(c *Config) { c.API.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "app", DBName: "shifts", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=app dbname=shifts sslmode=disable", p.DSN())

	p.Password = "pw"
	assert.Contains(t, p.DSN(), "password=pw")
}
