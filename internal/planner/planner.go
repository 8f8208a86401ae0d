// Package planner decomposes an admin block range into grid-aligned slots.
package planner

import (
	"fmt"
	"strings"
	"time"

	"shiftbook/internal/domain"
	"shiftbook/internal/models"
	"shiftbook/internal/slots"
)

var inputLayouts = []string{models.BlockInputLayout, models.BlockInputLayout + ":05"}

// ParseDateTime reads a wall-clock YYYY-MM-DDTHH:MM[:SS] value. The result is
// in UTC so that no daylight-saving shift can move a slot.
func ParseDateTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as %s", value, models.BlockInputLayout)
}

// PlanBlock lists every grid slot whose start falls in [start, end). The walk
// begins at the first grid boundary at or after start and advances by one slot
// length, re-aligning to the next grid start whenever a step lands off grid.
// A positive maxSpan bounds end-start.
func PlanBlock(userID, start, end string, grid slots.Grid, maxSpan time.Duration) ([]models.SlotRequest, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &domain.InvalidRangeError{Reason: "user is required"}
	}
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return nil, &domain.InvalidRangeError{Reason: "start and end are required"}
	}

	from, err := ParseDateTime(start)
	if err != nil {
		return nil, &domain.InvalidRangeError{Reason: err.Error()}
	}
	to, err := ParseDateTime(end)
	if err != nil {
		return nil, &domain.InvalidRangeError{Reason: err.Error()}
	}
	if !to.After(from) {
		return nil, &domain.InvalidRangeError{Reason: "end must be after start"}
	}
	if maxSpan > 0 && to.Sub(from) > maxSpan {
		return nil, &domain.InvalidRangeError{Reason: fmt.Sprintf("range exceeds %s", maxSpan)}
	}

	var out []models.SlotRequest
	for cur := grid.NextStart(from); cur.Before(to); cur = grid.NextStart(cur.Add(grid.Duration())) {
		out = append(out, models.SlotRequest{
			UserID:    userID,
			Date:      cur.Format(models.DateLayout),
			StartTime: grid.StartTime(cur.Hour()),
			EndTime:   grid.EndTime(cur.Hour()),
		})
	}
	return out, nil
}

// MaxSpan converts a day limit into a duration; zero or less means unbounded.
func MaxSpan(days int) time.Duration {
	if days <= 0 {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}
