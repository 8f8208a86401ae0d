// Package stats derives per-user hour and cancellation figures from booking rows.
package stats

import (
	"sort"
	"time"

	"shiftbook/internal/calendar"
	"shiftbook/internal/domain"
	"shiftbook/internal/models"
	"shiftbook/internal/slots"
)

type Summary struct {
	HoursWorked   int `json:"hours_worked"`
	HoursBooked   int `json:"hours_booked"`
	ShiftsBooked  int `json:"shifts_booked"`
	Cancellations int `json:"cancellations"`
}

// Totals is the all-time figure shown on a user's own stats card.
type Totals struct {
	Hours         int `json:"hours"`
	Cancellations int `json:"cancellations"`
}

// Aggregate groups rows by user. A booked row adds its hours to HoursWorked
// when its date is before asOf and to HoursBooked otherwise.
func Aggregate(bookings []*models.Booking, asOf string) map[string]*Summary {
	out := make(map[string]*Summary)
	for _, b := range bookings {
		if b == nil {
			continue
		}
		s, ok := out[b.UserID]
		if !ok {
			s = &Summary{}
			out[b.UserID] = s
		}

		switch b.Status {
		case models.StatusBooked:
			s.ShiftsBooked++
			if b.Date < asOf {
				s.HoursWorked += Hours(b)
			} else {
				s.HoursBooked += Hours(b)
			}
		case models.StatusCanceled:
			s.Cancellations++
		}
	}
	return out
}

// AggregateMonth is Aggregate over the rows dated inside the month.
func AggregateMonth(bookings []*models.Booking, year int, month time.Month, asOf string) map[string]*Summary {
	from, to := calendar.MonthRange(year, month)
	scoped := make([]*models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b != nil && b.Date >= from && b.Date <= to {
			scoped = append(scoped, b)
		}
	}
	return Aggregate(scoped, asOf)
}

// Table produces one row per known user, including users without bookings,
// ordered by email. Rows of users missing from users are dropped.
func Table(users []*models.User, summaries map[string]*Summary) []domain.StatsRow {
	rows := make([]domain.StatsRow, 0, len(users))
	for _, u := range users {
		row := domain.StatsRow{UserID: u.ID, Email: u.Email}
		if s, ok := summaries[u.ID]; ok {
			row.HoursWorked = s.HoursWorked
			row.HoursBooked = s.HoursBooked
			row.ShiftsBooked = s.ShiftsBooked
			row.Cancellations = s.Cancellations
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Email == rows[j].Email {
			return rows[i].UserID < rows[j].UserID
		}
		return rows[i].Email < rows[j].Email
	})
	return rows
}

func UserTotals(bookings []*models.Booking) Totals {
	var t Totals
	for _, b := range bookings {
		if b == nil {
			continue
		}
		switch b.Status {
		case models.StatusBooked:
			t.Hours += Hours(b)
		case models.StatusCanceled:
			t.Cancellations++
		}
	}
	return t
}

// Hours is endHour - startHour; rows with unreadable times count as zero.
func Hours(b *models.Booking) int {
	start, err := slots.ParseHour(b.StartTime)
	if err != nil {
		return 0
	}
	end, err := slots.ParseHour(b.EndTime)
	if err != nil || end < start {
		return 0
	}
	return end - start
}
