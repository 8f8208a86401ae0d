package app

import (
	"fmt"

	"shiftbook/internal/config"
	"shiftbook/internal/domain"
	"shiftbook/internal/events"
	"shiftbook/internal/service"

	"github.com/rs/zerolog"
)

// Publisher feeds the in-process bus and, when configured, RabbitMQ. The
// returned close func is never nil.
func Publisher(cfg config.EventsConfig, bus *events.EventBus, logger *zerolog.Logger) (domain.EventPublisher, func()) {
	if cfg.AMQPURL == "" {
		return bus, func() {}
	}

	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "shiftbook.events"
	}
	amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, exchange, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq unavailable, events stay in process")
		return bus, func() {}
	}
	logger.Info().Str("exchange", exchange).Msg("rabbitmq publisher connected")
	return events.Fanout{bus, amqpPub}, func() { _ = amqpPub.Close() }
}

// CalendarService builds the calendar service from booking settings.
func CalendarService(cfg config.BookingConfig, store domain.Store, pub domain.EventPublisher, logger *zerolog.Logger) (*service.CalendarService, error) {
	grid, err := cfg.Grid()
	if err != nil {
		return nil, fmt.Errorf("slot grid: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return service.NewCalendarService(store, pub, grid, loc, cfg.MaxBlockDays, logger), nil
}
