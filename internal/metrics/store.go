package metrics

import (
	"context"
	"time"

	"shiftbook/internal/domain"
	"shiftbook/internal/models"
)

type instrumentedStore struct {
	next domain.Store
}

// InstrumentStore records the latency of every round-trip made through next.
func InstrumentStore(next domain.Store) domain.Store {
	return &instrumentedStore{next: next}
}

func (s *instrumentedStore) FetchBookings(ctx context.Context, year int, month time.Month) ([]*models.Booking, error) {
	defer ObserveStore("fetch_bookings", time.Now())
	return s.next.FetchBookings(ctx, year, month)
}

func (s *instrumentedStore) FetchClosedDays(ctx context.Context, year int, month time.Month) ([]*models.ClosedDay, error) {
	defer ObserveStore("fetch_closed_days", time.Now())
	return s.next.FetchClosedDays(ctx, year, month)
}

func (s *instrumentedStore) FetchUserShifts(ctx context.Context, userID, today string) ([]*models.Booking, error) {
	defer ObserveStore("fetch_user_shifts", time.Now())
	return s.next.FetchUserShifts(ctx, userID, today)
}

func (s *instrumentedStore) FetchUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	defer ObserveStore("fetch_user_bookings", time.Now())
	return s.next.FetchUserBookings(ctx, userID)
}

func (s *instrumentedStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	defer ObserveStore("get_booking", time.Now())
	return s.next.GetBooking(ctx, id)
}

func (s *instrumentedStore) BookShift(ctx context.Context, req models.SlotRequest) (*models.Booking, error) {
	defer ObserveStore("book_shift", time.Now())
	return s.next.BookShift(ctx, req)
}

func (s *instrumentedStore) CancelShift(ctx context.Context, id string, at time.Time) error {
	defer ObserveStore("cancel_shift", time.Now())
	return s.next.CancelShift(ctx, id, at)
}

func (s *instrumentedStore) AddClosedDay(ctx context.Context, date, reason string) (*models.ClosedDay, error) {
	defer ObserveStore("add_closed_day", time.Now())
	return s.next.AddClosedDay(ctx, date, reason)
}

func (s *instrumentedStore) DeleteClosedDay(ctx context.Context, id string) error {
	defer ObserveStore("delete_closed_day", time.Now())
	return s.next.DeleteClosedDay(ctx, id)
}

func (s *instrumentedStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	defer ObserveStore("list_users", time.Now())
	return s.next.ListUsers(ctx)
}

func (s *instrumentedStore) UpsertUser(ctx context.Context, user *models.User) error {
	defer ObserveStore("upsert_user", time.Now())
	return s.next.UpsertUser(ctx, user)
}

func (s *instrumentedStore) GetRole(ctx context.Context, userID string) (string, error) {
	defer ObserveStore("get_role", time.Now())
	return s.next.GetRole(ctx, userID)
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	defer ObserveStore("ping", time.Now())
	return s.next.Ping(ctx)
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
