package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"shiftbook/internal/api"
	"shiftbook/internal/app"
	"shiftbook/internal/auth"
	"shiftbook/internal/config"
	"shiftbook/internal/database"
	"shiftbook/internal/events"
	"shiftbook/internal/google"
	"shiftbook/internal/logging"
	"shiftbook/internal/metrics"
	"shiftbook/internal/service"
	"shiftbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := app.OpenRedis(ctx, cfg.Redis, logging.Component(&logger, "redis"))
	if redisClient != nil {
		defer redisClient.Close()
	}

	store, err := app.OpenStore(cfg, redisClient, logging.Component(&logger, "store"))
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.Store.Backend).Msg("open store")
		return err
	}
	defer store.Close()

	bus := events.NewEventBus()
	pub, closePub := app.Publisher(cfg.Events, bus, logging.Component(&logger, "events"))
	defer closePub()

	calendarSvc, err := app.CalendarService(cfg.Booking, store, pub, logging.Component(&logger, "calendar"))
	if err != nil {
		return err
	}

	ttl := time.Duration(cfg.Auth.SessionTTLSeconds) * time.Second
	sessions := service.NewSessionService(
		auth.NewClient(cfg.Auth.URL, cfg.Auth.AnonKey, cfg.Auth.JWTSecret, logging.Component(&logger, "auth")),
		store,
		app.SessionRepository(redisClient, ttl, logging.Component(&logger, "sessions")),
		pub,
		cfg.Auth.SignInRateLimit,
		time.Duration(cfg.Auth.SignInRateWindow)*time.Second,
		logging.Component(&logger, "sessions"),
	)

	startStatsSync(ctx, cfg, calendarSvc, bus, redisClient, &logger)
	startBackups(ctx, cfg, store.SQLite, &logger)
	startMetrics(ctx, cfg, &logger)

	grpcServer, err := api.NewGRPCServer(cfg.API.GRPC, store, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	httpServer := api.NewHTTPServer(cfg.API, calendarSvc, sessions, store, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func startStatsSync(
	ctx context.Context,
	cfg *config.Config,
	source worker.StatsSource,
	bus *events.EventBus,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) {
	if !cfg.Google.Enabled() {
		return
	}

	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.StatsSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return
	}
	if err := sheets.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return
	}

	w := worker.NewStatsSyncWorker(source, sheets, redisClient, worker.DefaultRetryPolicy(), logging.Component(logger, "stats-sync"))
	w.Subscribe(bus)
	go w.Start(ctx)
	logger.Info().Msg("google sheets stats sync started")
}

func startBackups(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) {
	if !cfg.Backup.Enabled {
		return
	}
	if db == nil {
		logger.Warn().Str("backend", cfg.Store.Backend).Msg("backups are only supported for the sqlite backend")
		return
	}
	go database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go grpcServer.WatchHealth(ctx, 15*time.Second)

	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
