package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"shiftbook/internal/calendar"
	"shiftbook/internal/domain"
	"shiftbook/internal/models"
)

type bookingRow struct {
	ID         flexID     `json:"id"`
	UserID     string     `json:"user_id"`
	Date       string     `json:"date"`
	StartTime  string     `json:"start_time"`
	EndTime    string     `json:"end_time"`
	Status     string     `json:"status"`
	CanceledAt *time.Time `json:"canceled_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (r bookingRow) model() *models.Booking {
	return &models.Booking{
		ID:         string(r.ID),
		UserID:     r.UserID,
		Date:       r.Date,
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		Status:     r.Status,
		CanceledAt: r.CanceledAt,
		CreatedAt:  r.CreatedAt,
	}
}

func toBookings(rows []bookingRow) []*models.Booking {
	out := make([]*models.Booking, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}

type closedDayRow struct {
	ID     flexID  `json:"id"`
	Date   string  `json:"date"`
	Reason *string `json:"reason"`
}

func (r closedDayRow) model() *models.ClosedDay {
	cd := &models.ClosedDay{ID: string(r.ID), Date: r.Date}
	if r.Reason != nil {
		cd.Reason = *r.Reason
	}
	return cd
}

func monthKey(table, scope string, year int, month time.Month) string {
	return fmt.Sprintf("shiftbook:%s:%s:%04d-%02d", table, scope, year, int(month))
}

// readKey is the cache key of a month read, empty when ctx is not cacheable.
func readKey(ctx context.Context, table string, year int, month time.Month) string {
	scope, ok := cacheScope(ctx)
	if !ok {
		return ""
	}
	return monthKey(table, scope, year, month)
}

// monthKeysForDate lists the keys of date's month in every scope.
func monthKeysForDate(table, date string) []string {
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(cacheScopes))
	for _, scope := range cacheScopes {
		keys = append(keys, monthKey(table, scope, t.Year(), t.Month()))
	}
	return keys
}

func (c *Client) FetchBookings(ctx context.Context, year int, month time.Month) ([]*models.Booking, error) {
	key := readKey(ctx, "bookings", year, month)
	var rows []bookingRow
	if c.readCache(ctx, key, &rows) {
		return toBookings(rows), nil
	}

	from, to := calendar.MonthRange(year, month)
	q := url.Values{}
	q.Set("select", "*")
	q.Add("date", gte(from))
	q.Add("date", lte(to))
	q.Set("order", "date.asc,start_time.asc")

	if err := c.do(ctx, request{method: http.MethodGet, table: "bookings", query: q}, &rows); err != nil {
		return nil, domain.WrapStore("fetch bookings", err)
	}
	c.writeCache(ctx, key, rows)
	return toBookings(rows), nil
}

func (c *Client) FetchClosedDays(ctx context.Context, year int, month time.Month) ([]*models.ClosedDay, error) {
	key := readKey(ctx, "closed_days", year, month)
	var rows []closedDayRow
	if !c.readCache(ctx, key, &rows) {
		from, to := calendar.MonthRange(year, month)
		q := url.Values{}
		q.Set("select", "*")
		q.Add("date", gte(from))
		q.Add("date", lte(to))
		q.Set("order", "date.asc")
		if err := c.do(ctx, request{method: http.MethodGet, table: "closed_days", query: q}, &rows); err != nil {
			return nil, domain.WrapStore("fetch closed days", err)
		}
		c.writeCache(ctx, key, rows)
	}

	out := make([]*models.ClosedDay, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (c *Client) FetchUserShifts(ctx context.Context, userID, today string) ([]*models.Booking, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", eq(userID))
	q.Set("status", eq(models.StatusBooked))
	q.Set("date", gte(today))
	q.Set("order", "date.asc,start_time.asc")

	var rows []bookingRow
	if err := c.do(ctx, request{method: http.MethodGet, table: "bookings", query: q}, &rows); err != nil {
		return nil, domain.WrapStore("fetch user shifts", err)
	}
	return toBookings(rows), nil
}

func (c *Client) FetchUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", eq(userID))
	q.Set("order", "date.asc,start_time.asc")

	var rows []bookingRow
	if err := c.do(ctx, request{method: http.MethodGet, table: "bookings", query: q}, &rows); err != nil {
		return nil, domain.WrapStore("fetch user bookings", err)
	}
	return toBookings(rows), nil
}

func (c *Client) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", eq(id))

	var rows []bookingRow
	if err := c.do(ctx, request{method: http.MethodGet, table: "bookings", query: q}, &rows); err != nil {
		return nil, domain.WrapStore("get booking", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0].model(), nil
}

func (c *Client) BookShift(ctx context.Context, req models.SlotRequest) (*models.Booking, error) {
	body := []map[string]string{{
		"user_id":    req.UserID,
		"date":       req.Date,
		"start_time": req.StartTime,
		"end_time":   req.EndTime,
		"status":     models.StatusBooked,
	}}

	var rows []bookingRow
	err := c.do(ctx, request{
		method: http.MethodPost,
		table:  "bookings",
		body:   body,
		prefer: []string{"return=representation"},
	}, &rows)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.conflict() {
		return nil, fmt.Errorf("%s %s: %w", req.Date, req.StartTime, domain.ErrSlotTaken)
	}
	if err != nil {
		return nil, domain.WrapStore("book shift", err)
	}
	c.dropCache(ctx, monthKeysForDate("bookings", req.Date)...)

	if len(rows) == 0 {
		return nil, domain.WrapStore("book shift", errors.New("insert returned no row"))
	}
	return rows[0].model(), nil
}

// CancelShift patches only rows that are still booked, so a repeated cancel
// never moves canceled_at.
func (c *Client) CancelShift(ctx context.Context, id string, at time.Time) error {
	q := url.Values{}
	q.Set("id", eq(id))
	q.Set("status", eq(models.StatusBooked))

	var rows []bookingRow
	err := c.do(ctx, request{
		method: http.MethodPatch,
		table:  "bookings",
		query:  q,
		body: map[string]string{
			"status":      models.StatusCanceled,
			"canceled_at": at.UTC().Format(time.RFC3339Nano),
		},
		prefer: []string{"return=representation"},
	}, &rows)
	if err != nil {
		return domain.WrapStore("cancel shift", err)
	}

	if len(rows) > 0 {
		c.dropCache(ctx, monthKeysForDate("bookings", rows[0].Date)...)
		return nil
	}
	if _, err := c.GetBooking(ctx, id); err != nil {
		return err
	}
	return domain.ErrAlreadyCanceled
}

func (c *Client) AddClosedDay(ctx context.Context, date, reason string) (*models.ClosedDay, error) {
	q := url.Values{}
	q.Set("on_conflict", "date")

	var rows []closedDayRow
	err := c.do(ctx, request{
		method: http.MethodPost,
		table:  "closed_days",
		query:  q,
		body:   []map[string]string{{"date": date, "reason": reason}},
		prefer: []string{"resolution=merge-duplicates", "return=representation"},
	}, &rows)
	if err != nil {
		return nil, domain.WrapStore("add closed day", err)
	}
	c.dropCache(ctx, monthKeysForDate("closed_days", date)...)

	if len(rows) == 0 {
		return nil, domain.WrapStore("add closed day", errors.New("insert returned no row"))
	}
	return rows[0].model(), nil
}

func (c *Client) DeleteClosedDay(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", eq(id))

	var rows []closedDayRow
	err := c.do(ctx, request{
		method: http.MethodDelete,
		table:  "closed_days",
		query:  q,
		prefer: []string{"return=representation"},
	}, &rows)
	if err != nil {
		return domain.WrapStore("delete closed day", err)
	}
	if len(rows) == 0 {
		return domain.ErrNotFound
	}
	c.dropCache(ctx, monthKeysForDate("closed_days", rows[0].Date)...)
	return nil
}

func (c *Client) ListUsers(ctx context.Context) ([]*models.User, error) {
	q := url.Values{}
	q.Set("select", "id,email")
	q.Set("order", "email.asc")

	var users []*models.User
	if err := c.do(ctx, request{method: http.MethodGet, table: "users", query: q}, &users); err != nil {
		return nil, domain.WrapStore("list users", err)
	}
	return users, nil
}

func (c *Client) UpsertUser(ctx context.Context, user *models.User) error {
	err := c.do(ctx, request{
		method: http.MethodPost,
		table:  "users",
		body:   []*models.User{user},
		prefer: []string{"resolution=merge-duplicates", "return=minimal"},
	}, nil)
	return domain.WrapStore("upsert user", err)
}

func (c *Client) GetRole(ctx context.Context, userID string) (string, error) {
	q := url.Values{}
	q.Set("select", "role")
	q.Set("user_id", eq(userID))

	var rows []struct {
		Role string `json:"role"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, table: "roles", query: q}, &rows); err != nil {
		return "", domain.WrapStore("get role", err)
	}
	if len(rows) == 0 || rows[0].Role == "" {
		return models.RoleUser, nil
	}
	return rows[0].Role, nil
}

func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	return domain.WrapStore("ping", c.do(ctx, request{method: http.MethodGet, table: "closed_days", query: q}, nil))
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
