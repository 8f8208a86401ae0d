package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"shiftbook/internal/domain"
	"shiftbook/internal/events"
	"shiftbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const periodLayout = "2006-01"

// StatsSource builds the statistics table of a month.
type StatsSource interface {
	MonthStats(ctx context.Context, year int, month time.Month) ([]domain.StatsRow, error)
}

type monthTask struct {
	Period    string    `json:"period"`
	CreatedAt time.Time `json:"created_at"`
}

// StatsSyncWorker rewrites a month's statistics in the StatsWriter whenever
// that month changes. Requests for a month already waiting are merged.
type StatsSyncWorker struct {
	source        StatsSource
	writer        domain.StatsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan monthTask
	redisQueueKey string
	deadLetterKey string
	logger        *zerolog.Logger

	mu      sync.Mutex
	pending map[string]bool
}

var _ domain.SyncWorker = (*StatsSyncWorker)(nil)

func NewStatsSyncWorker(source StatsSource, writer domain.StatsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *StatsSyncWorker {
	return &StatsSyncWorker{
		source:        source,
		writer:        writer,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan monthTask, 64),
		redisQueueKey: "shiftbook:stats:queue",
		deadLetterKey: "shiftbook:stats:deadletter",
		logger:        logger,
		pending:       make(map[string]bool),
	}
}

// EnqueueMonth schedules a rewrite of the month.
func (w *StatsSyncWorker) EnqueueMonth(ctx context.Context, year int, month time.Month) error {
	if month < time.January || month > time.December {
		return fmt.Errorf("invalid month %d", month)
	}
	period := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format(periodLayout)

	w.mu.Lock()
	if w.pending[period] {
		w.mu.Unlock()
		return nil
	}
	w.pending[period] = true
	w.mu.Unlock()

	task := monthTask{Period: period, CreatedAt: time.Now()}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Str("period", period).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		w.forget(period)
		return fmt.Errorf("stats queue full, %s dropped", period)
	}
}

// Subscribe feeds the worker from booking and block events.
func (w *StatsSyncWorker) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingCreated, w.onBooking)
	bus.Subscribe(events.EventBookingCanceled, w.onBooking)
	bus.Subscribe(events.EventBlockCompleted, w.onBlock)
}

func (w *StatsSyncWorker) onBooking(e *events.Event) error {
	var p events.BookingEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	d, err := time.Parse(models.DateLayout, p.Date)
	if err != nil {
		return err
	}
	return w.EnqueueMonth(context.Background(), d.Year(), d.Month())
}

func (w *StatsSyncWorker) onBlock(e *events.Event) error {
	var p events.BlockEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if p.Booked == 0 {
		return nil
	}
	var errs []error
	for _, m := range p.Months {
		d, err := time.Parse(periodLayout, m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := w.EnqueueMonth(context.Background(), d.Year(), d.Month()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start launches main loop; stops when ctx is done.
func (w *StatsSyncWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("stats sync worker started")
	defer w.logger.Info().Msg("stats sync worker stopped")

	for {
		if w.redis == nil {
			select {
			case <-ctx.Done():
				return
			case t := <-w.queue:
				w.processTask(ctx, t)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			w.processTask(ctx, t)
			continue
		default:
		}
		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, t)
		}
	}
}

func (w *StatsSyncWorker) tryRedis(ctx context.Context) (monthTask, bool) {
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("redis BRPOP error")
			sleep(ctx, time.Second)
		}
		return monthTask{}, false
	}
	if len(res) != 2 {
		return monthTask{}, false
	}
	var task monthTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return monthTask{}, false
	}
	return task, true
}

// processTask syncs one month, retrying with backoff. A month that keeps
// failing goes to the dead letter list.
func (w *StatsSyncWorker) processTask(ctx context.Context, task monthTask) {
	w.forget(task.Period)

	d, err := time.Parse(periodLayout, task.Period)
	if err != nil {
		w.logger.Error().Err(err).Str("period", task.Period).Msg("bad stats task")
		return
	}

	var lastErr error
	for attempt := 1; attempt <= w.retryPolicy.MaxRetries; attempt++ {
		if lastErr = w.syncMonth(ctx, d.Year(), d.Month(), task.Period); lastErr == nil {
			w.logger.Debug().Str("period", task.Period).Int("attempt", attempt).Msg("stats synced")
			return
		}
		w.logger.Warn().Err(lastErr).Str("period", task.Period).Int("attempt", attempt).Msg("stats sync failed")
		if attempt == w.retryPolicy.MaxRetries || !sleep(ctx, w.retryPolicy.NextDelay(attempt)) {
			break
		}
	}

	w.logger.Error().Err(lastErr).Str("period", task.Period).Msg("stats sync gave up")
	if w.redis != nil {
		if err := w.pushRedis(context.WithoutCancel(ctx), w.deadLetterKey, task); err != nil {
			w.logger.Error().Err(err).Str("period", task.Period).Msg("deadletter push failed")
		}
	}
}

func (w *StatsSyncWorker) syncMonth(ctx context.Context, year int, month time.Month, period string) error {
	rows, err := w.source.MonthStats(ctx, year, month)
	if err != nil {
		return fmt.Errorf("build stats: %w", err)
	}
	return w.writer.WriteMonthStats(ctx, period, rows)
}

func (w *StatsSyncWorker) forget(period string) {
	w.mu.Lock()
	delete(w.pending, period)
	w.mu.Unlock()
}

func (w *StatsSyncWorker) pushRedis(ctx context.Context, key string, task monthTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
