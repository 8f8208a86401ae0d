package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dayCells(rows [][]Cell) []Cell {
	var out []Cell
	for _, row := range rows {
		for _, c := range row {
			if !c.Empty() {
				out = append(out, c)
			}
		}
	}
	return out
}

func TestLayoutFebruary2025(t *testing.T) {
	rows := Layout(2025, time.February, 7, nil)
	require.Len(t, rows, 5)

	for _, row := range rows {
		assert.Len(t, row, 7)
	}

	// 1 февраля 2025 - суббота
	for i := 0; i < 6; i++ {
		assert.True(t, rows[0][i].Empty())
	}
	assert.Equal(t, 1, rows[0][6].Day)
	assert.Equal(t, time.Saturday, rows[0][6].Weekday)

	days := dayCells(rows)
	require.Len(t, days, 28)
	assert.Equal(t, "2025-02-28", days[27].Date)
	assert.Equal(t, time.Friday, days[27].Weekday)

	last := rows[4]
	assert.Equal(t, 28, last[5].Day)
	assert.True(t, last[6].Empty())
}

func TestLayoutNarrow(t *testing.T) {
	// June 2025 starts on Sunday: no padding at all
	rows := Layout(2025, time.June, 3, nil)
	require.Len(t, rows, 10)
	assert.Equal(t, 1, rows[0][0].Day)

	// February 2025: Saturday (6) mod 3 = 0
	rows = Layout(2025, time.February, 3, nil)
	assert.Equal(t, 1, rows[0][0].Day)

	// March 2025 starts on Saturday too, April on Tuesday: 2 mod 3 = 2
	rows = Layout(2025, time.April, 3, nil)
	assert.True(t, rows[0][0].Empty())
	assert.True(t, rows[0][1].Empty())
	assert.Equal(t, 1, rows[0][2].Day)
	assert.Equal(t, time.Tuesday, rows[0][2].Weekday)
}

func TestLayoutSkipKeepsWeekdays(t *testing.T) {
	skipBefore := func(cutoff int) func(int) bool {
		return func(day int) bool { return day < cutoff }
	}

	rows := Layout(2025, time.June, 3, skipBefore(10))
	days := dayCells(rows)
	require.Len(t, days, 21)

	assert.Equal(t, 10, days[0].Day)
	assert.Equal(t, rows[0][0], days[0])
	// 10 июня 2025 - вторник, не воскресенье по позиции
	assert.Equal(t, time.Tuesday, days[0].Weekday)
	assert.Equal(t, "Tue", days[0].Label)

	for _, row := range rows {
		assert.Len(t, row, 3)
	}
}

func TestLayoutEverythingSkipped(t *testing.T) {
	rows := Layout(2025, time.June, 3, func(int) bool { return true })
	assert.Empty(t, rows)
}

func TestLayoutInvalidColumnsFallsBackToWeek(t *testing.T) {
	rows := Layout(2025, time.February, 0, nil)
	require.NotEmpty(t, rows)
	assert.Len(t, rows[0], 7)
}

func TestMonthHelpers(t *testing.T) {
	assert.Equal(t, 28, DaysIn(2025, time.February))
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 31, DaysIn(2025, time.December))

	from, to := MonthRange(2025, time.June)
	assert.Equal(t, "2025-06-01", from)
	assert.Equal(t, "2025-06-30", to)

	assert.Equal(t, []string{"Sun", "Mon", "Tue"}, WeekLabels(3))
	assert.Len(t, WeekLabels(7), 7)

	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2025, 6, 1, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-02", Today(now, loc))
	assert.Equal(t, "2025-06-01", Today(now, nil))
}

func TestFormatHuman(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2025-06-01", "Sunday 1st June 2025"},
		{"2025-06-02", "Monday 2nd June 2025"},
		{"2025-06-03", "Tuesday 3rd June 2025"},
		{"2025-06-11", "Wednesday 11th June 2025"},
		{"2025-06-22", "Sunday 22nd June 2025"},
	}
	for _, tt := range tests {
		got, err := FormatDateHuman(tt.date)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := FormatDateHuman("01/06/2025")
	assert.Error(t, err)

	times := map[string]string{
		"07:00:00": "7am",
		"12:00:00": "12pm",
		"19:00:00": "7pm",
		"00:00:00": "12am",
		"23:00:00": "11pm",
	}
	for in, want := range times {
		got, err := FormatTimeHuman(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
