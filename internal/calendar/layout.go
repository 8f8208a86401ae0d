// Package calendar lays out a month as rows of day cells.
package calendar

import (
	"fmt"
	"time"

	"shiftbook/internal/models"
)

// FullWeek is the column count of the wide calendar view.
const FullWeek = 7

var weekLabels = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Cell is either padding (Day == 0) or a calendar day.
type Cell struct {
	Day     int          `json:"day,omitempty"`
	Date    string       `json:"date,omitempty"`
	Weekday time.Weekday `json:"weekday"`
	Label   string       `json:"label,omitempty"`
}

func (c Cell) Empty() bool {
	return c.Day == 0
}

// Layout returns the month as rows of exactly columns cells. Leading padding is
// the weekday of the 1st for a full week, otherwise that weekday mod columns.
// Days for which skip returns true take no cell; the weekday of every other
// day still comes from its absolute date.
func Layout(year int, month time.Month, columns int, skip func(day int) bool) [][]Cell {
	if columns < 1 {
		columns = FullWeek
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	lead := int(first.Weekday())
	if columns != FullWeek {
		lead %= columns
	}

	cells := make([]Cell, lead, lead+31)
	for day := 1; day <= DaysIn(year, month); day++ {
		if skip != nil && skip(day) {
			continue
		}
		wd := first.AddDate(0, 0, day-1).Weekday()
		cells = append(cells, Cell{
			Day:     day,
			Date:    DateString(year, month, day),
			Weekday: wd,
			Label:   weekLabels[wd],
		})
	}

	// Месяц целиком пропущен
	if len(cells) == lead {
		return nil
	}
	for len(cells)%columns != 0 {
		cells = append(cells, Cell{})
	}

	rows := make([][]Cell, 0, len(cells)/columns)
	for i := 0; i < len(cells); i += columns {
		rows = append(rows, cells[i:i+columns])
	}
	return rows
}

// WeekLabels returns header labels for the first columns weekdays.
func WeekLabels(columns int) []string {
	if columns < 1 || columns > FullWeek {
		columns = FullWeek
	}
	return append([]string(nil), weekLabels[:columns]...)
}

func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func DateString(year int, month time.Month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
}

// MonthRange returns the first and last date of the month as YYYY-MM-DD.
func MonthRange(year int, month time.Month) (from, to string) {
	return DateString(year, month, 1), DateString(year, month, DaysIn(year, month))
}

// Today formats now in loc as YYYY-MM-DD.
func Today(now time.Time, loc *time.Location) string {
	if loc != nil {
		now = now.In(loc)
	}
	return now.Format(models.DateLayout)
}
