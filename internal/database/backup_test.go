package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shiftbook/internal/config"
	"shiftbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	tempDir := t.TempDir()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(tempDir, "source.db"), true, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.BookShift(ctx, models.SlotRequest{UserID: "u1", Date: "2025-06-20", StartTime: "07:00:00", EndTime: "11:00:00"})
	require.NoError(t, err)

	storagePath := filepath.Join(tempDir, "backups")
	s := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: storagePath, RetentionDays: 1}, &logger)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	var backupPath string
	t.Run("PerformBackup", func(t *testing.T) {
		path, err := s.PerformBackup(ctx)
		require.NoError(t, err)
		backupPath = path
		assert.Equal(t, "shiftbook_20250601_120000.db", filepath.Base(path))

		restored, err := NewDB(path, true, &logger)
		require.NoError(t, err)
		defer restored.Close()
		rows, err := restored.FetchBookings(ctx, 2025, time.June)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("RefusesToOverwrite", func(t *testing.T) {
		_, err := s.PerformBackup(ctx)
		assert.Error(t, err)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		s.now = time.Now

		oldFile := filepath.Join(storagePath, "shiftbook_old.db")
		require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
		foreign := filepath.Join(storagePath, "notes.txt")
		require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0o644))

		oldTime := time.Now().AddDate(0, 0, -2)
		require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))
		require.NoError(t, os.Chtimes(foreign, oldTime, oldTime))

		assert.Equal(t, 1, s.CleanupOldBackups())

		_, err := os.Stat(oldFile)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(foreign)
		assert.NoError(t, err)
		_, err = os.Stat(backupPath)
		assert.NoError(t, err)
	})
}

func TestBackupService_Disabled(t *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService(nil, config.BackupConfig{Enabled: false}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
}
