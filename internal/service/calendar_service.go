package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shiftbook/internal/booking"
	"shiftbook/internal/calendar"
	"shiftbook/internal/domain"
	"shiftbook/internal/events"
	"shiftbook/internal/metrics"
	"shiftbook/internal/models"
	"shiftbook/internal/planner"
	"shiftbook/internal/slots"
	"shiftbook/internal/stats"

	"github.com/rs/zerolog"
)

// CalendarService runs the user and admin actions against the store. Every
// successful mutation is followed by a fresh fetch of the affected month and
// announced on the event bus.
type CalendarService struct {
	store    domain.Store
	eventBus domain.EventPublisher
	grid     slots.Grid
	loc      *time.Location
	maxSpan  time.Duration
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewCalendarService(
	store domain.Store,
	eventBus domain.EventPublisher,
	grid slots.Grid,
	loc *time.Location,
	maxBlockDays int,
	logger *zerolog.Logger,
) *CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarService{
		store:    store,
		eventBus: eventBus,
		grid:     grid,
		loc:      loc,
		maxSpan:  planner.MaxSpan(maxBlockDays),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *CalendarService) Grid() slots.Grid { return s.grid }

// Today is the current date in the configured location.
func (s *CalendarService) Today() string {
	return calendar.Today(s.now(), s.loc)
}

// CurrentMonth returns the year and month of Today.
func (s *CalendarService) CurrentMonth() (int, time.Month) {
	n := s.now().In(s.loc)
	return n.Year(), n.Month()
}

func requireSession(sess *models.Session) error {
	if sess == nil || sess.UserID == "" {
		return domain.ErrNotAuthenticated
	}
	return nil
}

func requireAdmin(sess *models.Session) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if !sess.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

// View fetches the month and reconciles it for the session's user.
func (s *CalendarService) View(ctx context.Context, sess *models.Session, year int, month time.Month) (*booking.ViewModel, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	if month < time.January || month > time.December {
		return nil, &domain.InvalidRangeError{Reason: fmt.Sprintf("month %d out of range", month)}
	}

	rows, err := s.store.FetchBookings(ctx, year, month)
	if err != nil {
		return nil, err
	}
	closed, err := s.store.FetchClosedDays(ctx, year, month)
	if err != nil {
		return nil, err
	}

	var emails map[string]string
	if sess.IsAdmin() {
		emails, err = s.emails(ctx)
		if err != nil {
			return nil, err
		}
	}

	vm := booking.Reconcile(booking.Input{
		Year:          year,
		Month:         month,
		Bookings:      rows,
		ClosedDays:    closed,
		CurrentUserID: sess.UserID,
		IsAdmin:       sess.IsAdmin(),
		Now:           s.now(),
		Location:      s.loc,
		Grid:          s.grid,
		Emails:        emails,
	})
	return vm, nil
}

func (s *CalendarService) emails(ctx context.Context) (map[string]string, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(users))
	for _, u := range users {
		out[u.ID] = u.Email
	}
	return out, nil
}

func parseDate(date string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return time.Time{}, &domain.InvalidRangeError{Reason: fmt.Sprintf("bad date %q", date)}
	}
	return t, nil
}

// BookResult carries the created row and the refreshed month. View is nil
// when the refresh failed; RefreshError then says why.
type BookResult struct {
	Booking      *models.Booking    `json:"booking"`
	View         *booking.ViewModel `json:"view"`
	RefreshError string             `json:"refresh_error,omitempty"`
}

// CancelResult is the canceled row and the refreshed month, as in BookResult.
type CancelResult struct {
	Booking      *models.Booking    `json:"booking"`
	View         *booking.ViewModel `json:"view"`
	RefreshError string             `json:"refresh_error,omitempty"`
}

// Book reserves the slot starting at hour on date for the session's user.
func (s *CalendarService) Book(ctx context.Context, sess *models.Session, date string, hour int) (*BookResult, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}

	vm, err := s.View(ctx, sess, d.Year(), d.Month())
	if err != nil {
		return nil, err
	}
	slot, err := vm.Check(date, hour, booking.ActionBook)
	if err != nil {
		metrics.ObserveBooking("rejected")
		return nil, err
	}

	b, err := s.store.BookShift(ctx, models.SlotRequest{
		UserID:    sess.UserID,
		Date:      date,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSlotTaken) {
			metrics.ObserveBooking("taken")
		} else {
			metrics.ObserveBooking("error")
		}
		s.logger.Warn().Err(err).Str("user_id", sess.UserID).Str("date", date).Int("hour", hour).Msg("book shift failed")
		return nil, err
	}
	metrics.ObserveBooking("ok")

	s.logger.Info().Str("booking_id", b.ID).Str("user_id", sess.UserID).Str("date", date).Str("start", b.StartTime).Msg("shift booked")
	s.publishBooking(events.EventBookingCreated, b, sess.UserID)

	res := &BookResult{Booking: b}
	res.View, res.RefreshError = s.refresh(ctx, sess, d.Year(), d.Month())
	return res, nil
}

// refresh reloads the month after a committed write. A failure is only a
// warning: the write stands and the caller keeps its previous view.
func (s *CalendarService) refresh(ctx context.Context, sess *models.Session, year int, month time.Month) (*booking.ViewModel, string) {
	vm, err := s.View(ctx, sess, year, month)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", sess.UserID).Int("year", year).Int("month", int(month)).Msg("refresh after write failed")
		return nil, err.Error()
	}
	return vm, ""
}

// Cancel releases a booking. Users may cancel their own upcoming shifts;
// admins may cancel anyone's. Rows whose hour left the grid are still
// cancelable until they start.
func (s *CalendarService) Cancel(ctx context.Context, sess *models.Session, bookingID string) (*CancelResult, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}

	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != sess.UserID && !sess.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if !b.IsBooked() {
		metrics.ObserveCancel("already_canceled")
		return nil, domain.ErrAlreadyCanceled
	}

	d, err := parseDate(b.Date)
	if err != nil {
		return nil, err
	}
	hour, err := slots.ParseHour(b.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSlotNotActionable, err)
	}

	vm, err := s.View(ctx, sess, d.Year(), d.Month())
	if err != nil {
		return nil, err
	}
	if _, onGrid := vm.Slot(b.Date, hour); onGrid {
		_, err = vm.Check(b.Date, hour, booking.ActionCancel)
	} else {
		err = vm.CheckOffGrid(b.Date, hour)
	}
	if err != nil {
		metrics.ObserveCancel("rejected")
		return nil, err
	}

	if err := s.store.CancelShift(ctx, b.ID, s.now().UTC()); err != nil {
		metrics.ObserveCancel("error")
		return nil, err
	}
	metrics.ObserveCancel("ok")

	s.logger.Info().Str("booking_id", b.ID).Str("actor_id", sess.UserID).Msg("shift canceled")
	b.Status = models.StatusCanceled
	s.publishBooking(events.EventBookingCanceled, b, sess.UserID)

	res := &CancelResult{Booking: b}
	res.View, res.RefreshError = s.refresh(ctx, sess, d.Year(), d.Month())
	return res, nil
}

// BlockRequest books every grid slot in [Start, End) for UserID.
type BlockRequest struct {
	UserID string `json:"user_id"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type SlotFailure struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	Error     string `json:"error"`

	err error
}

// Err is the underlying failure, for errors.Is checks.
func (f SlotFailure) Err() error { return f.err }

type BlockResult struct {
	Requested    int                `json:"requested"`
	Booked       int                `json:"booked"`
	Bookings     []*models.Booking  `json:"bookings"`
	Failures     []SlotFailure      `json:"failures,omitempty"`
	View         *booking.ViewModel `json:"view,omitempty"`
	RefreshError string             `json:"refresh_error,omitempty"`
}

// Summary is the one-line outcome shown to the admin.
func (r *BlockResult) Summary() string {
	return fmt.Sprintf("%d of %d slots booked", r.Booked, r.Requested)
}

type monthKey struct {
	year  int
	month time.Month
}

type monthState struct {
	closed map[string]bool
	taken  map[string]bool
}

// Block books a range of slots on behalf of a user. Slots that are closed,
// already taken or rejected by the store are reported and skipped. Every
// month of the range is fetched before the first write, so an error return
// means nothing was booked.
func (s *CalendarService) Block(ctx context.Context, sess *models.Session, req BlockRequest) (*BlockResult, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}

	plan, err := planner.PlanBlock(req.UserID, req.Start, req.End, s.grid, s.maxSpan)
	if err != nil {
		return nil, err
	}

	months := make(map[monthKey]*monthState)
	var order []monthKey
	for _, slot := range plan {
		d, _ := time.Parse(models.DateLayout, slot.Date)
		key := monthKey{d.Year(), d.Month()}
		if _, ok := months[key]; ok {
			continue
		}
		ms, err := s.loadMonth(ctx, key)
		if err != nil {
			// без данных месяца проверить слоты нельзя
			return nil, err
		}
		months[key] = ms
		order = append(order, key)
	}

	res := &BlockResult{Requested: len(plan)}
	for _, slot := range plan {
		d, _ := time.Parse(models.DateLayout, slot.Date)
		ms := months[monthKey{d.Year(), d.Month()}]

		var failure error
		switch {
		case ms.closed[slot.Date]:
			failure = domain.ErrClosedDay
		case ms.taken[slot.Date+" "+slot.StartTime]:
			failure = domain.ErrSlotTaken
		default:
			b, err := s.store.BookShift(ctx, slot)
			if err != nil {
				failure = err
				break
			}
			ms.taken[slot.Date+" "+slot.StartTime] = true
			res.Bookings = append(res.Bookings, b)
			res.Booked++
		}
		if failure != nil {
			res.Failures = append(res.Failures, SlotFailure{
				Date:      slot.Date,
				StartTime: slot.StartTime,
				Error:     failure.Error(),
				err:       failure,
			})
		}
	}

	metrics.ObserveBlock(res.Booked, len(res.Failures))
	s.logger.Info().
		Str("user_id", req.UserID).
		Str("actor_id", sess.UserID).
		Int("requested", res.Requested).
		Int("booked", res.Booked).
		Msg(res.Summary())

	labels := make([]string, 0, len(order))
	for _, k := range order {
		labels = append(labels, fmt.Sprintf("%04d-%02d", k.year, k.month))
	}
	s.publish(events.EventBlockCompleted, events.BlockEventPayload{
		UserID:    req.UserID,
		ActorID:   sess.UserID,
		Requested: res.Requested,
		Booked:    res.Booked,
		Months:    labels,
	})

	if len(order) > 0 {
		res.View, res.RefreshError = s.refresh(ctx, sess, order[0].year, order[0].month)
	}
	return res, nil
}

func (s *CalendarService) loadMonth(ctx context.Context, key monthKey) (*monthState, error) {
	rows, err := s.store.FetchBookings(ctx, key.year, key.month)
	if err != nil {
		return nil, err
	}
	closed, err := s.store.FetchClosedDays(ctx, key.year, key.month)
	if err != nil {
		return nil, err
	}
	ms := &monthState{closed: make(map[string]bool, len(closed)), taken: make(map[string]bool, len(rows))}
	for _, cd := range closed {
		ms.closed[cd.Date] = true
	}
	for _, b := range rows {
		if b.IsBooked() {
			ms.taken[b.Date+" "+b.StartTime] = true
		}
	}
	return ms, nil
}

func (s *CalendarService) ListClosedDays(ctx context.Context, sess *models.Session, year int, month time.Month) ([]*models.ClosedDay, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.store.FetchClosedDays(ctx, year, month)
}

// AddClosedDay closes date; closing an already closed date updates its reason.
func (s *CalendarService) AddClosedDay(ctx context.Context, sess *models.Session, date, reason string) (*models.ClosedDay, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	if _, err := parseDate(date); err != nil {
		return nil, err
	}

	cd, err := s.store.AddClosedDay(ctx, date, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("date", date).Str("actor_id", sess.UserID).Msg("day closed")
	s.publish(events.EventClosedDayAdded, events.ClosedDayEventPayload{ID: cd.ID, Date: cd.Date, Reason: cd.Reason})
	return cd, nil
}

func (s *CalendarService) DeleteClosedDay(ctx context.Context, sess *models.Session, id string) error {
	if err := requireAdmin(sess); err != nil {
		return err
	}
	if err := s.store.DeleteClosedDay(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("closed_day_id", id).Str("actor_id", sess.UserID).Msg("day reopened")
	s.publish(events.EventClosedDayRemoved, events.ClosedDayEventPayload{ID: id})
	return nil
}

// Shift is an upcoming booking with human readable labels.
type Shift struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	DateLabel string `json:"date_label"`
	TimeLabel string `json:"time_label"`
}

// MyShifts lists the user's booked shifts from today on.
func (s *CalendarService) MyShifts(ctx context.Context, sess *models.Session) ([]Shift, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	rows, err := s.store.FetchUserShifts(ctx, sess.UserID, s.Today())
	if err != nil {
		return nil, err
	}

	out := make([]Shift, 0, len(rows))
	for _, b := range rows {
		sh := Shift{ID: b.ID, Date: b.Date, StartTime: b.StartTime, EndTime: b.EndTime}
		sh.DateLabel, _ = calendar.FormatDateHuman(b.Date)
		from, _ := calendar.FormatTimeHuman(b.StartTime)
		to, _ := calendar.FormatTimeHuman(b.EndTime)
		sh.TimeLabel = from + " - " + to
		out = append(out, sh)
	}
	return out, nil
}

// MyStats is the all-time total for the session's user.
func (s *CalendarService) MyStats(ctx context.Context, sess *models.Session) (stats.Totals, error) {
	if err := requireSession(sess); err != nil {
		return stats.Totals{}, err
	}
	rows, err := s.store.FetchUserBookings(ctx, sess.UserID)
	if err != nil {
		return stats.Totals{}, err
	}
	return stats.UserTotals(rows), nil
}

// MonthStats builds the per-user table for a month without a session check.
// The sync worker and the CLI call it directly.
func (s *CalendarService) MonthStats(ctx context.Context, year int, month time.Month) ([]domain.StatsRow, error) {
	rows, err := s.store.FetchBookings(ctx, year, month)
	if err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return stats.Table(users, stats.AggregateMonth(rows, year, month, s.Today())), nil
}

func (s *CalendarService) AdminStats(ctx context.Context, sess *models.Session, year int, month time.Month) ([]domain.StatsRow, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	return s.MonthStats(ctx, year, month)
}

func (s *CalendarService) Users(ctx context.Context, sess *models.Session) ([]*models.User, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

func (s *CalendarService) publishBooking(eventType string, b *models.Booking, actorID string) {
	s.publish(eventType, events.BookingEventPayload{
		BookingID: b.ID,
		UserID:    b.UserID,
		Date:      b.Date,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Status:    b.Status,
		ActorID:   actorID,
	})
}

func (s *CalendarService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
