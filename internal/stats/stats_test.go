package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftbook/internal/models"
)

func row(user, date, start, end, status string) *models.Booking {
	return &models.Booking{UserID: user, Date: date, StartTime: start, EndTime: end, Status: status}
}

func TestAggregateAllPast(t *testing.T) {
	rows := []*models.Booking{
		row("u1", "2025-06-01", "07:00:00", "11:00:00", models.StatusBooked),
		row("u1", "2025-06-02", "15:00:00", "19:00:00", models.StatusBooked),
		row("u1", "2025-06-03", "19:00:00", "23:00:00", models.StatusBooked),
	}

	got := Aggregate(rows, "2025-07-01")
	require.Contains(t, got, "u1")
	assert.Equal(t, 0, got["u1"].HoursBooked)
	assert.Equal(t, 12, got["u1"].HoursWorked)
	assert.Equal(t, 3, got["u1"].ShiftsBooked)
}

func TestAggregateSplitsOnAsOf(t *testing.T) {
	rows := []*models.Booking{
		row("u1", "2025-06-14", "07:00:00", "11:00:00", models.StatusBooked),
		row("u1", "2025-06-15", "07:00:00", "11:00:00", models.StatusBooked),
		row("u1", "2025-06-16", "11:00:00", "15:00:00", models.StatusCanceled),
		row("u2", "2025-06-20", "11:00:00", "15:00:00", models.StatusCanceled),
	}

	got := Aggregate(rows, "2025-06-15")
	assert.Equal(t, &Summary{HoursWorked: 4, HoursBooked: 4, ShiftsBooked: 2, Cancellations: 1}, got["u1"])
	assert.Equal(t, &Summary{Cancellations: 1}, got["u2"])
}

func TestAggregateMonthScopesRows(t *testing.T) {
	rows := []*models.Booking{
		row("u1", "2025-05-31", "07:00:00", "11:00:00", models.StatusBooked),
		row("u1", "2025-06-01", "07:00:00", "11:00:00", models.StatusBooked),
		row("u1", "2025-06-30", "07:00:00", "11:00:00", models.StatusBooked),
		row("u1", "2025-07-01", "07:00:00", "11:00:00", models.StatusBooked),
	}

	got := AggregateMonth(rows, 2025, time.June, "2025-06-15")
	assert.Equal(t, 2, got["u1"].ShiftsBooked)
	assert.Equal(t, 4, got["u1"].HoursWorked)
	assert.Equal(t, 4, got["u1"].HoursBooked)
}

func TestTableIncludesEveryUser(t *testing.T) {
	users := []*models.User{
		{ID: "u2", Email: "zed@example.com"},
		{ID: "u1", Email: "amy@example.com"},
		{ID: "u3", Email: "bob@example.com"},
	}
	summaries := map[string]*Summary{
		"u2":    {HoursWorked: 8, ShiftsBooked: 2},
		"ghost": {HoursWorked: 4},
	}

	got := Table(users, summaries)
	require.Len(t, got, 3)
	assert.Equal(t, "amy@example.com", got[0].Email)
	assert.Zero(t, got[0].HoursWorked)
	assert.Equal(t, "bob@example.com", got[1].Email)
	assert.Equal(t, "zed@example.com", got[2].Email)
	assert.Equal(t, 8, got[2].HoursWorked)
	assert.Equal(t, 2, got[2].ShiftsBooked)
}

func TestUserTotals(t *testing.T) {
	rows := []*models.Booking{
		row("u1", "2024-01-01", "07:00:00", "11:00:00", models.StatusBooked),
		row("u1", "2030-01-01", "08:00:00", "12:00:00", models.StatusBooked),
		row("u1", "2025-01-01", "08:00:00", "12:00:00", models.StatusCanceled),
	}
	assert.Equal(t, Totals{Hours: 8, Cancellations: 1}, UserTotals(rows))
	assert.Equal(t, Totals{}, UserTotals(nil))
}

func TestHoursIgnoresGarbage(t *testing.T) {
	assert.Equal(t, 0, Hours(row("u", "2025-06-01", "bad", "11:00:00", models.StatusBooked)))
	assert.Equal(t, 0, Hours(row("u", "2025-06-01", "11:00:00", "07:00:00", models.StatusBooked)))
	assert.Equal(t, 4, Hours(row("u", "2025-06-01", "20:00:00", "24:00:00", models.StatusBooked)))
}
