// Package gormstore implements domain.Store over GORM, for deployments that
// connect straight to the backend's Postgres database.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shiftbook/internal/calendar"
	"shiftbook/internal/config"
	"shiftbook/internal/domain"
	"shiftbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type Store struct {
	db         *gorm.DB
	logger     *zerolog.Logger
	uniqueSlot bool
}

var _ domain.Store = (*Store)(nil)

// Open connects to Postgres and migrates the schema.
func Open(cfg config.PostgresConfig, uniqueSlot bool, logger *zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), GormConfig(gormlogger.Warn))
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db.DB(): %w", err)
	}
	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
		sqlDB.SetMaxIdleConns(cfg.MaxConnections / 2)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return New(db, uniqueSlot, logger)
}

// GormConfig translates driver errors so unique violations surface as
// gorm.ErrDuplicatedKey on every dialect.
func GormConfig(level gormlogger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// New wraps an already opened connection and migrates it.
func New(db *gorm.DB, uniqueSlot bool, logger *zerolog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger, uniqueSlot: uniqueSlot}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	logger.Info().Str("dialect", db.Dialector.Name()).Bool("unique_slot", uniqueSlot).Msg("GORM store ready")
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&models.User{}, &models.RoleAssignment{}, &models.Booking{}, &models.ClosedDay{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// Частичный индекс AutoMigrate не создаёт
	stmt := `DROP INDEX IF EXISTS idx_bookings_slot_booked`
	if s.uniqueSlot {
		stmt = `CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_slot_booked
                ON bookings (date, start_time) WHERE status = 'booked'`
	}
	if err := s.db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("slot index: %w", err)
	}
	return nil
}

func (s *Store) FetchBookings(ctx context.Context, year int, month time.Month) ([]*models.Booking, error) {
	from, to := calendar.MonthRange(year, month)
	var out []*models.Booking
	err := s.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", from, to).
		Order("date, start_time, created_at").
		Find(&out).Error
	return out, domain.WrapStore("fetch bookings", err)
}

func (s *Store) FetchClosedDays(ctx context.Context, year int, month time.Month) ([]*models.ClosedDay, error) {
	from, to := calendar.MonthRange(year, month)
	var out []*models.ClosedDay
	err := s.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", from, to).
		Order("date").
		Find(&out).Error
	return out, domain.WrapStore("fetch closed days", err)
}

func (s *Store) FetchUserShifts(ctx context.Context, userID, today string) ([]*models.Booking, error) {
	var out []*models.Booking
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND date >= ?", userID, models.StatusBooked, today).
		Order("date, start_time").
		Find(&out).Error
	return out, domain.WrapStore("fetch user shifts", err)
}

func (s *Store) FetchUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	var out []*models.Booking
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("date, start_time").Find(&out).Error
	return out, domain.WrapStore("fetch user bookings", err)
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.WrapStore("get booking", err)
	}
	return &b, nil
}

func (s *Store) BookShift(ctx context.Context, req models.SlotRequest) (*models.Booking, error) {
	b := &models.Booking{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    models.StatusBooked,
	}
	err := s.db.WithContext(ctx).Create(b).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%s %s: %w", req.Date, req.StartTime, domain.ErrSlotTaken)
	}
	if err != nil {
		return nil, domain.WrapStore("book shift", err)
	}
	return b, nil
}

func (s *Store) CancelShift(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, models.StatusBooked).
		Updates(map[string]any{"status": models.StatusCanceled, "canceled_at": at.UTC()})
	if res.Error != nil {
		return domain.WrapStore("cancel shift", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	if _, err := s.GetBooking(ctx, id); err != nil {
		return err
	}
	return domain.ErrAlreadyCanceled
}

func (s *Store) AddClosedDay(ctx context.Context, date, reason string) (*models.ClosedDay, error) {
	cd := &models.ClosedDay{ID: uuid.NewString(), Date: date, Reason: reason}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason"}),
	}).Create(cd).Error
	if err != nil {
		return nil, domain.WrapStore("add closed day", err)
	}

	var stored models.ClosedDay
	if err := s.db.WithContext(ctx).First(&stored, "date = ?", date).Error; err != nil {
		return nil, domain.WrapStore("add closed day", err)
	}
	return &stored, nil
}

func (s *Store) DeleteClosedDay(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.ClosedDay{}, "id = ?", id)
	if res.Error != nil {
		return domain.WrapStore("delete closed day", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*models.User, error) {
	var out []*models.User
	err := s.db.WithContext(ctx).Order("email").Find(&out).Error
	return out, domain.WrapStore("list users", err)
}

func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email"}),
	}).Create(user).Error
	return domain.WrapStore("upsert user", err)
}

func (s *Store) GetRole(ctx context.Context, userID string) (string, error) {
	var ra models.RoleAssignment
	err := s.db.WithContext(ctx).First(&ra, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RoleUser, nil
	}
	if err != nil {
		return "", domain.WrapStore("get role", err)
	}
	return ra.Role, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return domain.WrapStore("ping", err)
	}
	return domain.WrapStore("ping", sqlDB.PingContext(ctx))
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
