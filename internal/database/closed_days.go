package database

import (
	"context"
	"fmt"
	"time"

	"shiftbook/internal/calendar"
	"shiftbook/internal/domain"
	"shiftbook/internal/models"

	"github.com/google/uuid"
)

func (db *DB) FetchClosedDays(ctx context.Context, year int, month time.Month) ([]*models.ClosedDay, error) {
	from, to := calendar.MonthRange(year, month)
	rows, err := db.QueryContext(ctx,
		`SELECT id, date, reason FROM closed_days WHERE date >= ? AND date <= ? ORDER BY date`, from, to)
	if err != nil {
		return nil, domain.WrapStore("fetch closed days", err)
	}
	defer rows.Close()

	var days []*models.ClosedDay
	for rows.Next() {
		var cd models.ClosedDay
		if err := rows.Scan(&cd.ID, &cd.Date, &cd.Reason); err != nil {
			return nil, domain.WrapStore("fetch closed days", err)
		}
		days = append(days, &cd)
	}
	return days, domain.WrapStore("fetch closed days", rows.Err())
}

// AddClosedDay closes date. Closing an already closed date only replaces the reason.
func (db *DB) AddClosedDay(ctx context.Context, date, reason string) (*models.ClosedDay, error) {
	_, err := db.ExecContext(ctx,
		`INSERT INTO closed_days (id, date, reason) VALUES (?, ?, ?)
         ON CONFLICT(date) DO UPDATE SET reason = excluded.reason`,
		uuid.NewString(), date, reason)
	if err != nil {
		return nil, domain.WrapStore("add closed day", fmt.Errorf("failed to add closed day: %w", err))
	}

	var cd models.ClosedDay
	err = db.QueryRowContext(ctx, `SELECT id, date, reason FROM closed_days WHERE date = ?`, date).
		Scan(&cd.ID, &cd.Date, &cd.Reason)
	if err != nil {
		return nil, domain.WrapStore("add closed day", err)
	}
	return &cd, nil
}

func (db *DB) DeleteClosedDay(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM closed_days WHERE id = ?`, id)
	if err != nil {
		return domain.WrapStore("delete closed day", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.WrapStore("delete closed day", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
