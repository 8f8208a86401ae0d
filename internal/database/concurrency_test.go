package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shiftbook/internal/domain"
	"shiftbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentBookingSameSlot(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), true, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	const numGoroutines = 10

	var wg sync.WaitGroup
	results := make(chan error, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := db.BookShift(ctx, models.SlotRequest{
				UserID:    "user-" + string(rune('a'+id)),
				Date:      "2025-06-20",
				StartTime: "07:00:00",
				EndTime:   "11:00:00",
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	success, taken := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, domain.ErrSlotTaken):
			taken++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, success, "only one booking may hold the slot")
	assert.Equal(t, numGoroutines-1, taken)

	rows, err := db.FetchBookings(ctx, 2025, time.June)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
