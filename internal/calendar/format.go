package calendar

import (
	"fmt"
	"time"

	"shiftbook/internal/models"
	"shiftbook/internal/slots"
)

// FormatDateHuman renders 2025-06-01 as "Sunday 1st June 2025".
func FormatDateHuman(date string) (string, error) {
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", date, err)
	}
	return fmt.Sprintf("%s %d%s %s %d", t.Weekday(), t.Day(), ordinal(t.Day()), t.Month(), t.Year()), nil
}

// FormatTimeHuman renders 07:00:00 as "7am" and 12:00:00 as "12pm".
func FormatTimeHuman(value string) (string, error) {
	h, err := slots.ParseHour(value)
	if err != nil {
		return "", err
	}
	h %= 24
	suffix := "am"
	if h >= 12 {
		suffix = "pm"
	}
	display := h % 12
	if display == 0 {
		display = 12
	}
	return fmt.Sprintf("%d%s", display, suffix), nil
}

func ordinal(day int) string {
	if day%100 >= 11 && day%100 <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
