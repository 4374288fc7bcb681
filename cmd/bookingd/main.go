package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/example/worker-booking/internal/application"
	"github.com/example/worker-booking/internal/config"
	"github.com/example/worker-booking/internal/directory"
	"github.com/example/worker-booking/internal/events"
	httptransport "github.com/example/worker-booking/internal/http"
	"github.com/example/worker-booking/internal/logging"
	"github.com/example/worker-booking/internal/metrics"
	"github.com/example/worker-booking/internal/persistence"
	"github.com/example/worker-booking/internal/persistence/memory"
	"github.com/example/worker-booking/internal/persistence/postgres"
	"github.com/example/worker-booking/internal/persistence/sqlite"
)

func main() {
	bootLogger := logging.New(os.Stdout, slog.LevelInfo)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := logging.New(os.Stdout, level)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("booking service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	svc, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           svc.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("booking API listening", "addr", server.Addr, "store_driver", cfg.StoreDriver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// service is the assembled dependency graph.
type service struct {
	handler  http.Handler
	bookings *application.BookingService
	metrics  *metrics.Metrics
	closers  []func() error
	logger   *slog.Logger
}

func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Error("failed to release resource", "error", err)
		}
	}
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (svc *service, err error) {
	svc = &service{logger: logger}
	defer func() {
		if err != nil {
			svc.close()
			svc = nil
		}
	}()

	store, writer, dir, err := openStore(ctx, cfg, logger, svc)
	if err != nil {
		return svc, err
	}

	if cfg.DirectorySeedFile != "" {
		seed, err := directory.LoadSeed(cfg.DirectorySeedFile)
		if err != nil {
			return svc, err
		}
		if err := seed.Apply(ctx, writer); err != nil {
			return svc, fmt.Errorf("apply directory seed: %w", err)
		}
		logger.Info("directory seed applied",
			"file", cfg.DirectorySeedFile,
			"users", len(seed.Users),
			"workers", len(seed.Workers),
			"customers", len(seed.Customers),
			"jobs", len(seed.Jobs),
		)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		svc.closers = append(svc.closers, client.Close)
		dir = directory.NewCached(dir, directory.NewRedisCache(client), cfg.DirectoryCacheTTL, logger)
		logger.Info("directory cache enabled", "redis_addr", cfg.RedisAddr, "ttl", cfg.DirectoryCacheTTL)
	}

	svc.metrics = metrics.NewMetrics("bookingd")
	sinks := application.Sinks{svc.metrics}
	if cfg.AMQPURL != "" {
		publisher, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return svc, err
		}
		svc.closers = append(svc.closers, publisher.Close)
		sinks = append(sinks, publisher)
		logger.Info("event publishing enabled", "exchange", cfg.AMQPExchange)
	}

	svc.bookings = application.NewBookingServiceWithLogger(store, dir, dir, sinks, uuid.NewString, time.Now, logger)

	svc.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Bookings:   httptransport.NewBookingHandler(svc.bookings, logger, svc.metrics),
		Health:     httptransport.NewHealthHandler(store, logger),
		Metrics:    svc.metrics.Handler(),
		Auth:       httptransport.RequireBearer(httptransport.NewJWTVerifier(cfg.JWTSecret), logger),
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger, svc.metrics)},
	})
	return svc, nil
}

// openStore returns the booking store, the directory seed target and the
// directory read side for the configured driver.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, svc *service) (persistence.BookingStore, directory.Writer, directory.Directory, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		storage, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN), logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		svc.closers = append(svc.closers, storage.Close)
		return storage.Bookings, storage.Directory, storage.Directory, nil

	case config.DriverPostgres:
		store, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		svc.closers = append(svc.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		static := directory.NewStatic()
		return store, static, static, nil

	case config.DriverMemory:
		static := directory.NewStatic()
		return memory.NewStore(), static, static, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
