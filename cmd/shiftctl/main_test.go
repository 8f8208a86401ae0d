package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	cfg := fmt.Sprintf(`
store:
  backend: sqlite
  sqlite:
    path: %q
booking:
  timezone: UTC
backup:
  storage_path: %q
exports:
  path: %q
logging:
  level: error
`, filepath.Join(dir, "shiftbook.db"), filepath.Join(dir, "backups"), filepath.Join(dir, "exports"))
	path = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, dir
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execute(append([]string{"--config", configPath}, args...), &out)
	return out.String(), err
}

func mustRun(t *testing.T, configPath string, args ...string) string {
	t.Helper()
	out, err := run(t, configPath, args...)
	require.NoError(t, err, out)
	return out
}

func TestAdminWorkflow(t *testing.T) {
	cfg, dir := writeConfig(t)

	out := mustRun(t, cfg, "users", "add", "u1", "Alice@Example.com")
	assert.Contains(t, out, "user u1 saved")
	out = mustRun(t, cfg, "users", "ls")
	assert.Contains(t, out, "alice@example.com")

	out = mustRun(t, cfg, "closed-days", "add", "2030-01-02", "--reason", "inventory")
	fields := strings.Fields(out)
	require.Len(t, fields, 5)
	closedID := fields[2]

	out = mustRun(t, cfg, "closed-days", "ls", "--year", "2030", "--month", "1")
	assert.Contains(t, out, closedID)
	assert.Contains(t, out, "inventory")

	out = mustRun(t, cfg, "block", "--user", "u1", "--start", "2030-01-01T00:00", "--end", "2030-01-03T00:00")
	assert.Contains(t, out, "4 of 8 slots booked")
	assert.Contains(t, out, "2030-01-02")

	out = mustRun(t, cfg, "stats", "--year", "2030", "--month", "1")
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "EMAIL")

	out = mustRun(t, cfg, "export", "--year", "2030", "--month", "1")
	path := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(dir, "exports", "stats_2030-01.xlsx"), path)
	assert.FileExists(t, path)

	out = mustRun(t, cfg, "backup")
	assert.Contains(t, out, filepath.Join(dir, "backups"))

	out = mustRun(t, cfg, "closed-days", "rm", closedID)
	assert.Contains(t, out, "removed closed day")
	out = mustRun(t, cfg, "closed-days", "ls", "--year", "2030", "--month", "1")
	assert.NotContains(t, out, "inventory")
}

func TestCommandErrors(t *testing.T) {
	cfg, _ := writeConfig(t)

	_, err := run(t, cfg, "block", "--user", "u1")
	assert.Error(t, err, "missing range flags")

	_, err = run(t, cfg, "block", "--user", "u1", "--start", "2030-01-03T00:00", "--end", "2030-01-01T00:00")
	assert.Error(t, err)

	_, err = run(t, cfg, "closed-days", "add", "not-a-date")
	assert.Error(t, err)

	_, err = run(t, cfg, "stats", "--month", "13")
	assert.Error(t, err)

	_, err = run(t, cfg, "stats", "--sync")
	assert.ErrorContains(t, err, "google sheets is not configured")

	_, err = run(t, filepath.Join(t.TempDir(), "missing.yaml"), "users", "ls")
	assert.Error(t, err)
}
