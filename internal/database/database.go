package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"shiftbook/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the SQLite implementation of domain.Store.
type DB struct {
	*sql.DB
	logger     *zerolog.Logger
	path       string
	uniqueSlot bool
}

var _ domain.Store = (*DB)(nil)

// NewDB opens (and migrates) the database at path. With uniqueSlot the schema
// carries a partial unique index that allows one booked row per slot.
func NewDB(path string, uniqueSlot bool, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite пишет в один поток; для :memory: это ещё и одна общая БД
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logger, path: path, uniqueSlot: uniqueSlot}
	if err := db.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Bool("unique_slot", uniqueSlot).Msg("Database initialized")
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            email TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS roles (
            user_id TEXT PRIMARY KEY,
            role TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'booked',
            canceled_at DATETIME,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS closed_days (
            id TEXT PRIMARY KEY,
            date TEXT NOT NULL UNIQUE,
            reason TEXT NOT NULL DEFAULT ''
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
	}
	if db.uniqueSlot {
		queries = append(queries, `CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_slot_booked
            ON bookings(date, start_time) WHERE status = 'booked'`)
	} else {
		queries = append(queries, `DROP INDEX IF EXISTS idx_bookings_slot_booked`)
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Path is the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) Ping(ctx context.Context) error {
	return domain.WrapStore("ping", db.PingContext(ctx))
}

func isUniqueViolation(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
