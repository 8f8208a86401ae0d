package booking

import (
	"fmt"
	"sort"
	"time"

	"shiftbook/internal/calendar"
	"shiftbook/internal/domain"
	"shiftbook/internal/models"
	"shiftbook/internal/slots"
)

// Input is everything Reconcile needs. Now is converted to Location before
// today and the current hour are derived from it.
type Input struct {
	Year          int
	Month         time.Month
	Bookings      []*models.Booking
	ClosedDays    []*models.ClosedDay
	CurrentUserID string
	IsAdmin       bool
	Now           time.Time
	Location      *time.Location
	Grid          slots.Grid
	Emails        map[string]string
}

type Slot struct {
	Date       string `json:"date"`
	Hour       int    `json:"hour"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	State      State  `json:"state"`
	Action     Action `json:"action"`
	BookingID  string `json:"booking_id,omitempty"`
	OwnerEmail string `json:"owner_email,omitempty"`
}

type Day struct {
	Date         string  `json:"date"`
	Day          int     `json:"day"`
	Closed       bool    `json:"closed"`
	ClosedReason string  `json:"closed_reason,omitempty"`
	Slots        []*Slot `json:"slots"`
}

// ViewModel is rebuilt from scratch on every refresh; it is never patched.
type ViewModel struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Today string     `json:"today"`
	Days  []*Day     `json:"days"`

	index   map[string]*Day
	nowHour int
}

// Reconcile computes the state of every grid slot in the month. Precedence is
// Closed, then Past, then the booking state. Only booked rows participate.
func Reconcile(in Input) *ViewModel {
	now := in.Now
	if in.Location != nil {
		now = now.In(in.Location)
	}
	today := now.Format(models.DateLayout)
	nowHour := now.Hour()

	closed := make(map[string]*models.ClosedDay, len(in.ClosedDays))
	for _, cd := range in.ClosedDays {
		if cd != nil {
			closed[cd.Date] = cd
		}
	}

	owners := indexBooked(in.Bookings, in.CurrentUserID)

	vm := &ViewModel{
		Year:  in.Year,
		Month: in.Month,
		Today:   today,
		index:   make(map[string]*Day),
		nowHour: nowHour,
	}

	hours := in.Grid.Hours()
	for d := 1; d <= calendar.DaysIn(in.Year, in.Month); d++ {
		date := calendar.DateString(in.Year, in.Month, d)
		day := &Day{Date: date, Day: d, Slots: make([]*Slot, 0, len(hours))}
		if cd, ok := closed[date]; ok {
			day.Closed = true
			day.ClosedReason = cd.Reason
		}

		for _, h := range hours {
			slot := &Slot{
				Date:      date,
				Hour:      h,
				StartTime: in.Grid.StartTime(h),
				EndTime:   in.Grid.EndTime(h),
				Action:    ActionNone,
			}

			b := owners[slotKey{date, slot.StartTime}]
			switch {
			case day.Closed:
				slot.State = Closed
			case date < today || (date == today && nowHour >= h):
				slot.State = Past
			case b == nil:
				slot.State = Available
				slot.Action = ActionBook
			case b.UserID == in.CurrentUserID:
				slot.State = MineBooked
				slot.Action = ActionCancel
				slot.BookingID = b.ID
			default:
				slot.State = OtherBooked
				if in.IsAdmin {
					slot.Action = ActionCancel
					slot.BookingID = b.ID
					slot.OwnerEmail = in.Emails[b.UserID]
				}
			}
			day.Slots = append(day.Slots, slot)
		}

		vm.Days = append(vm.Days, day)
		vm.index[date] = day
	}

	return vm
}

type slotKey struct {
	date  string
	start string
}

// indexBooked picks the row that owns each slot. When legacy data holds more
// than one booked row for a slot, the current user's row wins, then the
// earliest created one.
func indexBooked(rows []*models.Booking, currentUserID string) map[slotKey]*models.Booking {
	booked := make([]*models.Booking, 0, len(rows))
	for _, b := range rows {
		if b != nil && b.IsBooked() {
			booked = append(booked, b)
		}
	}
	sort.SliceStable(booked, func(i, j int) bool {
		return booked[i].CreatedAt.Before(booked[j].CreatedAt)
	})

	out := make(map[slotKey]*models.Booking, len(booked))
	for _, b := range booked {
		k := slotKey{b.Date, b.StartTime}
		prev, ok := out[k]
		if !ok || (prev.UserID != currentUserID && b.UserID == currentUserID) {
			out[k] = b
		}
	}
	return out
}

func (v *ViewModel) Day(date string) (*Day, bool) {
	d, ok := v.index[date]
	return d, ok
}

func (v *ViewModel) Slot(date string, hour int) (*Slot, bool) {
	d, ok := v.index[date]
	if !ok {
		return nil, false
	}
	for _, s := range d.Slots {
		if s.Hour == hour {
			return s, true
		}
	}
	return nil, false
}

// IsPastDate reports whether date lies before today.
func (v *ViewModel) IsPastDate(date string) bool {
	return date < v.Today
}

// Check verifies that action is allowed on the slot right now. Booking a Past
// slot is rejected here even when the store would accept the insert.
func (v *ViewModel) Check(date string, hour int, action Action) (*Slot, error) {
	slot, ok := v.Slot(date, hour)
	if !ok {
		return nil, fmt.Errorf("%w: no slot at %s %02d:00", domain.ErrSlotNotActionable, date, hour)
	}

	switch {
	case slot.State == Closed:
		return slot, fmt.Errorf("%w: %w", domain.ErrSlotNotActionable, domain.ErrClosedDay)
	case slot.State == Past:
		return slot, fmt.Errorf("%w: slot %s %s has started", domain.ErrSlotNotActionable, date, slot.StartTime)
	case action == ActionBook && (slot.State == MineBooked || slot.State == OtherBooked):
		return slot, fmt.Errorf("%w: %w", domain.ErrSlotNotActionable, domain.ErrSlotTaken)
	case slot.Action != action:
		return slot, fmt.Errorf("%w: %s not allowed on %s slot", domain.ErrSlotNotActionable, action, slot.State)
	}
	return slot, nil
}

// CheckOffGrid applies the Closed and Past rules to a booked row whose start
// hour is not on the current grid, for instance after the grid changed.
func (v *ViewModel) CheckOffGrid(date string, hour int) error {
	d, ok := v.index[date]
	if !ok {
		return fmt.Errorf("%w: %s is outside %04d-%02d", domain.ErrSlotNotActionable, date, v.Year, int(v.Month))
	}
	switch {
	case d.Closed:
		return fmt.Errorf("%w: %w", domain.ErrSlotNotActionable, domain.ErrClosedDay)
	case date < v.Today || (date == v.Today && v.nowHour >= hour):
		return fmt.Errorf("%w: slot %s %02d:00 has started", domain.ErrSlotNotActionable, date, hour)
	}
	return nil
}

// Counts tallies slots per state, mostly for logging and metrics.
func (v *ViewModel) Counts() map[State]int {
	out := make(map[State]int, len(stateNames))
	for _, d := range v.Days {
		for _, s := range d.Slots {
			out[s.State]++
		}
	}
	return out
}
