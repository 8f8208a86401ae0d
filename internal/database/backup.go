package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shiftbook/internal/config"

	"github.com/rs/zerolog"
)

const backupPrefix = "shiftbook_"

// BackupService periodically snapshots the SQLite store with VACUUM INTO.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{db: db, config: cfg, logger: logger, now: time.Now}
}

// Start blocks until ctx is done, taking one backup immediately and then one
// per schedule interval (a Go duration, 24h by default).
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	interval := 24 * time.Hour
	if s.config.Schedule != "" {
		if d, err := time.ParseDuration(s.config.Schedule); err == nil && d > 0 {
			interval = d
		} else {
			s.logger.Warn().Err(err).Str("schedule", s.config.Schedule).Msg("Invalid backup schedule, using 24h")
		}
	}
	s.logger.Info().Dur("interval", interval).Msg("Backup service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Backup failed")
		return
	}
	if removed := s.CleanupOldBackups(); removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Old backups removed")
	}
}

// PerformBackup writes a consistent copy of the live database and returns
// its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.db", backupPrefix, s.now().Format("20060102_150405"))
	target := filepath.Join(s.config.StoragePath, name)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("backup %s already exists", target)
	}

	// VACUUM INTO не принимает параметры, экранируем кавычки вручную
	stmt := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(target, "'", "''"))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", target, err)
	}

	s.logger.Info().Str("path", target).Msg("Backup completed")
	return target, nil
}

// CleanupOldBackups removes backups older than the retention period and
// reports how many files were deleted.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	entries, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.config.StoragePath, e.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("Failed to delete old backup")
			continue
		}
		removed++
	}
	return removed
}
