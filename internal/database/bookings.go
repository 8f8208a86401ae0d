package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shiftbook/internal/calendar"
	"shiftbook/internal/domain"
	"shiftbook/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `id, user_id, date, start_time, end_time, status, canceled_at, created_at`

func (db *DB) FetchBookings(ctx context.Context, year int, month time.Month) ([]*models.Booking, error) {
	from, to := calendar.MonthRange(year, month)
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE date >= ? AND date <= ?
              ORDER BY date, start_time, created_at`
	bookings, err := db.queryBookings(ctx, query, from, to)
	return bookings, domain.WrapStore("fetch bookings", err)
}

func (db *DB) FetchUserShifts(ctx context.Context, userID, today string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE user_id = ? AND status = ? AND date >= ?
              ORDER BY date, start_time`
	bookings, err := db.queryBookings(ctx, query, userID, models.StatusBooked, today)
	return bookings, domain.WrapStore("fetch user shifts", err)
}

func (db *DB) FetchUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY date, start_time`
	bookings, err := db.queryBookings(ctx, query, userID)
	return bookings, domain.WrapStore("fetch user bookings", err)
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.WrapStore("get booking", fmt.Errorf("failed to get booking: %w", err))
	}
	return b, nil
}

// BookShift inserts a new booked row. Its only conflict check is the unique
// slot index, if the schema has one.
func (db *DB) BookShift(ctx context.Context, req models.SlotRequest) (*models.Booking, error) {
	b := &models.Booking{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    models.StatusBooked,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO bookings (id, user_id, date, start_time, end_time, status, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, b.ID, b.UserID, b.Date, b.StartTime, b.EndTime, b.Status, b.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%s %s: %w", req.Date, req.StartTime, domain.ErrSlotTaken)
	}
	if err != nil {
		return nil, domain.WrapStore("book shift", fmt.Errorf("failed to create booking: %w", err))
	}

	db.logger.Debug().Str("booking_id", b.ID).Str("date", b.Date).Str("start", b.StartTime).Msg("Booking created")
	return b, nil
}

// CancelShift moves a booked row to canceled. A row that is already canceled
// is left untouched and ErrAlreadyCanceled is returned.
func (db *DB) CancelShift(ctx context.Context, id string, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, canceled_at = ? WHERE id = ? AND status = ?`,
		models.StatusCanceled, at.UTC(), id, models.StatusBooked)
	if err != nil {
		return domain.WrapStore("cancel shift", fmt.Errorf("failed to cancel booking: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.WrapStore("cancel shift", err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = db.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case err != nil:
		return domain.WrapStore("cancel shift", err)
	default:
		return domain.ErrAlreadyCanceled
	}
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(s scanner) (*models.Booking, error) {
	var (
		b          models.Booking
		canceledAt sql.NullTime
	)
	if err := s.Scan(&b.ID, &b.UserID, &b.Date, &b.StartTime, &b.EndTime, &b.Status, &canceledAt, &b.CreatedAt); err != nil {
		return nil, err
	}
	if canceledAt.Valid {
		t := canceledAt.Time
		b.CanceledAt = &t
	}
	return &b, nil
}
