package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftbook/internal/domain"
	"shiftbook/internal/models"
	"shiftbook/internal/slots"
)

const (
	me    = "user-me"
	other = "user-other"
)

func booked(id, user, date string, hour int) *models.Booking {
	g := slots.Default()
	return &models.Booking{
		ID:        id,
		UserID:    user,
		Date:      date,
		StartTime: g.StartTime(hour),
		EndTime:   g.EndTime(hour),
		Status:    models.StatusBooked,
		CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func june(now time.Time, bookings []*models.Booking, closed []*models.ClosedDay, admin bool) *ViewModel {
	return Reconcile(Input{
		Year:          2025,
		Month:         time.June,
		Bookings:      bookings,
		ClosedDays:    closed,
		CurrentUserID: me,
		IsAdmin:       admin,
		Now:           now,
		Grid:          slots.Default(),
		Emails:        map[string]string{other: "other@example.com", me: "me@example.com"},
	})
}

var midJune = time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)

func TestReconcileCoversEverySlotOnce(t *testing.T) {
	vm := june(midJune, []*models.Booking{
		booked("b1", me, "2025-06-20", 7),
		booked("b2", other, "2025-06-20", 11),
	}, []*models.ClosedDay{{ID: "c1", Date: "2025-06-21"}}, false)

	require.Len(t, vm.Days, 30)
	total := 0
	for _, d := range vm.Days {
		require.Len(t, d.Slots, 4)
		seen := map[int]bool{}
		for _, s := range d.Slots {
			assert.False(t, seen[s.Hour], "duplicate slot %s %d", d.Date, s.Hour)
			seen[s.Hour] = true
			total++
		}
	}

	counts := vm.Counts()
	sum := 0
	for _, n := range counts {
		sum += n
	}
	assert.Equal(t, total, sum)
	assert.Equal(t, 120, total)
	assert.Equal(t, 4, counts[Closed])
	assert.Equal(t, 1, counts[MineBooked])
	assert.Equal(t, 1, counts[OtherBooked])
}

func TestReconcilePrecedence(t *testing.T) {
	vm := june(midJune, []*models.Booking{
		booked("b1", me, "2025-06-10", 7),
		booked("b2", me, "2025-06-25", 7),
		booked("b3", other, "2025-06-26", 7),
	}, []*models.ClosedDay{
		{ID: "c1", Date: "2025-06-10", Reason: "inventory"},
		{ID: "c2", Date: "2025-06-25"},
	}, true)

	t.Run("ClosedBeatsPast", func(t *testing.T) {
		s, ok := vm.Slot("2025-06-10", 7)
		require.True(t, ok)
		assert.Equal(t, Closed, s.State)
		d, _ := vm.Day("2025-06-10")
		assert.True(t, d.Closed)
		assert.Equal(t, "inventory", d.ClosedReason)
	})

	t.Run("ClosedBeatsBooking", func(t *testing.T) {
		s, _ := vm.Slot("2025-06-25", 7)
		assert.Equal(t, Closed, s.State)
		assert.Equal(t, ActionNone, s.Action)
		assert.Empty(t, s.BookingID)
	})

	t.Run("PastBeatsBooking", func(t *testing.T) {
		past := june(midJune, []*models.Booking{booked("b4", me, "2025-06-14", 19)}, nil, false)
		s, _ := past.Slot("2025-06-14", 19)
		assert.Equal(t, Past, s.State)
		assert.Equal(t, ActionNone, s.Action)
	})

	t.Run("FutureBooking", func(t *testing.T) {
		s, _ := vm.Slot("2025-06-26", 7)
		assert.Equal(t, OtherBooked, s.State)
	})
}

func TestReconcileToday(t *testing.T) {
	vm := june(midJune, nil, nil, false)

	want := map[int]State{7: Past, 11: Past, 15: Available, 19: Available}
	for hour, state := range want {
		s, ok := vm.Slot("2025-06-15", hour)
		require.True(t, ok)
		assert.Equal(t, state, s.State, "hour %d", hour)
	}

	// Слот блокируется ровно в момент начала
	atStart := june(time.Date(2025, 6, 15, 15, 0, 0, 0, time.UTC), nil, nil, false)
	s, _ := atStart.Slot("2025-06-15", 15)
	assert.Equal(t, Past, s.State)

	before := june(time.Date(2025, 6, 15, 14, 59, 0, 0, time.UTC), nil, nil, false)
	s, _ = before.Slot("2025-06-15", 15)
	assert.Equal(t, Available, s.State)
}

func TestReconcileUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	vm := Reconcile(Input{
		Year:     2025,
		Month:    time.June,
		Now:      time.Date(2025, 5, 31, 22, 0, 0, 0, time.UTC),
		Location: loc,
		Grid:     slots.Default(),
	})

	assert.Equal(t, "2025-06-01", vm.Today)
	s, _ := vm.Slot("2025-06-01", 7)
	assert.Equal(t, Available, s.State)
}

func TestReconcileOwnership(t *testing.T) {
	rows := []*models.Booking{
		booked("mine", me, "2025-06-20", 7),
		booked("theirs", other, "2025-06-20", 11),
	}

	t.Run("User", func(t *testing.T) {
		vm := june(midJune, rows, nil, false)

		s, _ := vm.Slot("2025-06-20", 7)
		assert.Equal(t, MineBooked, s.State)
		assert.Equal(t, ActionCancel, s.Action)
		assert.Equal(t, "mine", s.BookingID)

		s, _ = vm.Slot("2025-06-20", 11)
		assert.Equal(t, OtherBooked, s.State)
		assert.Equal(t, ActionNone, s.Action)
		assert.Empty(t, s.BookingID)
		assert.Empty(t, s.OwnerEmail)
	})

	t.Run("Admin", func(t *testing.T) {
		vm := june(midJune, rows, nil, true)

		s, _ := vm.Slot("2025-06-20", 11)
		assert.Equal(t, OtherBooked, s.State)
		assert.Equal(t, ActionCancel, s.Action)
		assert.Equal(t, "theirs", s.BookingID)
		assert.Equal(t, "other@example.com", s.OwnerEmail)
	})
}

func TestReconcileIgnoresCanceledRows(t *testing.T) {
	old := booked("old", other, "2025-06-20", 7)
	old.Status = models.StatusCanceled

	vm := june(midJune, []*models.Booking{old}, nil, false)
	s, _ := vm.Slot("2025-06-20", 7)
	assert.Equal(t, Available, s.State)

	rebooked := booked("new", me, "2025-06-20", 7)
	vm = june(midJune, []*models.Booking{old, rebooked}, nil, false)
	s, _ = vm.Slot("2025-06-20", 7)
	assert.Equal(t, MineBooked, s.State)
	assert.Equal(t, "new", s.BookingID)
}

func TestReconcileDuplicateRowsPreferCurrentUser(t *testing.T) {
	first := booked("first", other, "2025-06-20", 7)
	second := booked("second", me, "2025-06-20", 7)
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	vm := june(midJune, []*models.Booking{first, second}, nil, false)
	s, _ := vm.Slot("2025-06-20", 7)
	assert.Equal(t, MineBooked, s.State)
	assert.Equal(t, "second", s.BookingID)
}

func TestReconcileIgnoresOffGridAndOtherMonths(t *testing.T) {
	offGrid := booked("x", other, "2025-06-20", 7)
	offGrid.StartTime = "08:00:00"
	july := booked("y", other, "2025-07-01", 7)

	vm := june(midJune, []*models.Booking{offGrid, july}, nil, false)
	s, _ := vm.Slot("2025-06-20", 7)
	assert.Equal(t, Available, s.State)
	_, ok := vm.Slot("2025-06-20", 8)
	assert.False(t, ok)
	_, ok = vm.Day("2025-07-01")
	assert.False(t, ok)
}

func TestCheck(t *testing.T) {
	vm := june(midJune, []*models.Booking{
		booked("mine", me, "2025-06-20", 7),
		booked("theirs", other, "2025-06-20", 11),
	}, []*models.ClosedDay{{ID: "c", Date: "2025-06-21"}}, false)

	t.Run("BookAvailable", func(t *testing.T) {
		s, err := vm.Check("2025-06-20", 15, ActionBook)
		require.NoError(t, err)
		assert.Equal(t, "15:00:00", s.StartTime)
		assert.Equal(t, "19:00:00", s.EndTime)
	})

	t.Run("BookPastRejected", func(t *testing.T) {
		_, err := vm.Check("2025-06-15", 7, ActionBook)
		assert.ErrorIs(t, err, domain.ErrSlotNotActionable)
		_, err = vm.Check("2025-06-01", 19, ActionBook)
		assert.ErrorIs(t, err, domain.ErrSlotNotActionable)
	})

	t.Run("BookClosedRejected", func(t *testing.T) {
		_, err := vm.Check("2025-06-21", 7, ActionBook)
		assert.ErrorIs(t, err, domain.ErrSlotNotActionable)
		assert.ErrorIs(t, err, domain.ErrClosedDay)
	})

	t.Run("BookTakenRejected", func(t *testing.T) {
		_, err := vm.Check("2025-06-20", 11, ActionBook)
		assert.ErrorIs(t, err, domain.ErrSlotTaken)
	})

	t.Run("CancelOwn", func(t *testing.T) {
		s, err := vm.Check("2025-06-20", 7, ActionCancel)
		require.NoError(t, err)
		assert.Equal(t, "mine", s.BookingID)
	})

	t.Run("CancelOthersLocked", func(t *testing.T) {
		_, err := vm.Check("2025-06-20", 11, ActionCancel)
		assert.ErrorIs(t, err, domain.ErrSlotNotActionable)
	})

	t.Run("CancelAvailable", func(t *testing.T) {
		_, err := vm.Check("2025-06-20", 19, ActionCancel)
		assert.ErrorIs(t, err, domain.ErrSlotNotActionable)
	})

	t.Run("UnknownSlot", func(t *testing.T) {
		_, err := vm.Check("2025-06-20", 9, ActionBook)
		assert.ErrorIs(t, err, domain.ErrSlotNotActionable)
		_, err = vm.Check("2025-07-01", 7, ActionBook)
		assert.ErrorIs(t, err, domain.ErrSlotNotActionable)
	})
}

func TestCheckOffGrid(t *testing.T) {
	vm := june(midJune, nil, []*models.ClosedDay{{ID: "c1", Date: "2025-06-21"}}, false)

	assert.NoError(t, vm.CheckOffGrid("2025-06-20", 8))
	assert.NoError(t, vm.CheckOffGrid("2025-06-15", 16), "later today")

	for name, tc := range map[string]struct {
		date string
		hour int
	}{
		"StartedToday": {"2025-06-15", 12},
		"PastDay":      {"2025-06-14", 20},
		"Closed":       {"2025-06-21", 8},
		"OtherMonth":   {"2025-07-01", 8},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, vm.CheckOffGrid(tc.date, tc.hour), domain.ErrSlotNotActionable)
		})
	}
	assert.ErrorIs(t, vm.CheckOffGrid("2025-06-21", 8), domain.ErrClosedDay)
}

func TestStateAndAction(t *testing.T) {
	assert.Equal(t, "mine", MineBooked.String())
	text, err := OtherBooked.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "other", string(text))

	a, err := ParseAction("cancel")
	require.NoError(t, err)
	assert.Equal(t, ActionCancel, a)
	_, err = ParseAction("none")
	assert.Error(t, err)
}
