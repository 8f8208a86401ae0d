// Package slots describes the canonical grid of shift start hours.
package slots

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"shiftbook/internal/models"
)

// DefaultHours is the grid used when no deployment override is configured.
var DefaultHours = []int{7, 11, 15, 19}

var ErrInvalidTime = errors.New("invalid slot time")

// Grid is the set of hours at which a slot may start. Every slot lasts
// models.SlotHours and ends on the same day.
type Grid struct {
	hours []int
	set   map[int]bool
}

func NewGrid(hours []int) (Grid, error) {
	if len(hours) == 0 {
		return Grid{}, errors.New("slot grid must contain at least one hour")
	}
	sorted := append([]int(nil), hours...)
	sort.Ints(sorted)

	set := make(map[int]bool, len(sorted))
	for _, h := range sorted {
		if h < 0 || h+models.SlotHours > 24 {
			return Grid{}, fmt.Errorf("slot hour %d does not fit in a day", h)
		}
		if set[h] {
			return Grid{}, fmt.Errorf("duplicate slot hour %d", h)
		}
		set[h] = true
	}
	return Grid{hours: sorted, set: set}, nil
}

// MustGrid is NewGrid for package-level constants and tests.
func MustGrid(hours ...int) Grid {
	g, err := NewGrid(hours)
	if err != nil {
		panic(err)
	}
	return g
}

func Default() Grid {
	return MustGrid(DefaultHours...)
}

func (g Grid) Hours() []int {
	return append([]int(nil), g.hours...)
}

func (g Grid) Contains(hour int) bool {
	return g.set[hour]
}

func (g Grid) Duration() time.Duration {
	return models.SlotHours * time.Hour
}

// StartTime formats the slot start as HH:00:00.
func (g Grid) StartTime(hour int) string {
	return FormatHour(hour)
}

// EndTime formats the slot end as HH:00:00.
func (g Grid) EndTime(hour int) string {
	return FormatHour(hour + models.SlotHours)
}

// NextStart returns the first grid boundary at or after t, rolling over to the
// following days when t is past the last start hour.
func (g Grid) NextStart(t time.Time) time.Time {
	candidate := t.Truncate(time.Hour)
	if candidate.Before(t) {
		candidate = candidate.Add(time.Hour)
	}
	day := time.Date(candidate.Year(), candidate.Month(), candidate.Day(), 0, 0, 0, 0, candidate.Location())
	for _, h := range g.hours {
		if h >= candidate.Hour() {
			return day.Add(time.Duration(h) * time.Hour)
		}
	}
	return day.AddDate(0, 0, 1).Add(time.Duration(g.hours[0]) * time.Hour)
}

func FormatHour(hour int) string {
	return fmt.Sprintf("%02d:00:00", hour)
}

// ParseHour extracts the hour from an HH:MM or HH:MM:SS string.
func ParseHour(value string) (int, error) {
	head, _, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(head) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	h, err := strconv.Atoi(head)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	return h, nil
}
