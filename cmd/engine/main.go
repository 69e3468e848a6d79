package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"reservation-engine/internal/config"
	"reservation-engine/internal/database"
	"reservation-engine/internal/domain"
	"reservation-engine/internal/events"
	"reservation-engine/internal/export"
	"reservation-engine/internal/logging"
	"reservation-engine/internal/metrics"
	"reservation-engine/internal/notify"
	"reservation-engine/internal/repository"
	"reservation-engine/internal/service"
	"reservation-engine/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	exportOnly := flag.Bool("export", false, "write an availability workbook and exit")
	exportDays := flag.Int("export-days", 0, "days covered by -export (defaults to exports.days)")
	flag.Parse()

	if err := run(*exportOnly, *exportDays); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(exportOnly bool, exportDays int) error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := logging.Component(baseLogger, "engine-main")

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.SeedCatalog(ctx, cfg); err != nil {
		return err
	}

	redisClient, locker := initLocker(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	dispatcher, cleanup := initDispatcher(cfg, db, redisClient, baseLogger)
	defer cleanup()

	svc := service.NewReservationService(service.Deps{
		Resources:    db,
		Identities:   db,
		Groups:       db,
		Reservations: db,
		Approvals:    db,
		Waitlist:     db,
		Sink:         dispatcher,
		Locker:       locker,
		Logger:       logging.Component(baseLogger, "reservations"),
	}, service.OptionsFromConfig(cfg.Engine))

	if exportOnly {
		if exportDays <= 0 {
			exportDays = cfg.Exports.Days
		}
		exporter := export.NewExporter(svc, cfg.Exports.Path, logging.Component(baseLogger, "export"))
		now := time.Now()
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		path, err := exporter.WriteAvailability(ctx, from, exportDays, now)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	}

	dispatcher.Start()

	sweeper := worker.NewSweepWorker(svc, cfg.Engine.SweepInterval, logging.Component(baseLogger, "sweep"))
	loops := []func(context.Context){sweeper.Start}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, logging.Component(baseLogger, "backup"))
		loops = append(loops, backupService.Start)
	}
	wait := startLoops(ctx, loops...)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	logger.Info().
		Str("conflict_policy", string(cfg.Engine.ConflictPolicy)).
		Int("resources", len(cfg.Resources)).
		Msg("Reservation engine started")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")
	wait()
	return nil
}

// startLoops runs each loop in its own goroutine. The returned func blocks
// until every loop has returned, so the store and dispatcher outlive them.
func startLoops(ctx context.Context, loops ...func(context.Context)) (wait func()) {
	var wg sync.WaitGroup
	for _, loop := range loops {
		loop := loop
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}
	return wg.Wait
}

// initLocker prefers a Redis lock shared between processes and falls back to
// the in-process locker when Redis is disabled or unreachable.
func initLocker(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.ResourceLocker) {
	memory := repository.NewMemoryLocker()
	if !cfg.Redis.Enabled {
		return nil, memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, using in-process locks")
		_ = repository.Close(client)
		return nil, memory
	}

	redisLocker := repository.NewRedisLocker(client, cfg.Engine.LockTTL)
	logger.Info().Str("address", cfg.Redis.Address).Msg("Redis locker initialized")
	return client, repository.NewFailoverLocker(redisLocker, memory, logging.Component(logger, "locker"))
}

func initDispatcher(cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) (*notify.Dispatcher, func()) {
	var closers []func()
	deliverers := []notify.Deliverer{notify.NewLogDeliverer(logging.Component(logger, "events"))}

	bus := events.NewEventBus()
	subscribeAudit(bus, logging.Component(logger, "audit"))
	deliverers = append(deliverers, notify.NewBusDeliverer(bus))

	if cfg.Notifications.AMQP.Enabled {
		publisher, err := notify.DialAMQP(cfg.Notifications.AMQP, logging.Component(logger, "amqp"))
		if err != nil {
			logger.Warn().Err(err).Msg("AMQP unavailable, broker notifications disabled")
		} else {
			deliverers = append(deliverers, publisher)
			closers = append(closers, func() { _ = publisher.Close() })
		}
	}

	if cfg.Notifications.Telegram.Enabled {
		botAPI, err := notify.NewBotAPI(cfg.Notifications.Telegram)
		if err != nil {
			logger.Warn().Err(err).Msg("Telegram unavailable, chat notifications disabled")
		} else {
			deliverers = append(deliverers, notify.NewTelegramNotifier(botAPI, db, db, logging.Component(logger, "telegram")))
		}
	}

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		QueueSize:       cfg.Notifications.QueueSize,
		Workers:         cfg.Notifications.Workers,
		DeliveryTimeout: cfg.Notifications.DeliveryTimeout,
		DeadLetter:      redisClient,
	}, logging.Component(logger, "notify"), deliverers...)

	return dispatcher, func() {
		dispatcher.Stop()
		for _, c := range closers {
			c()
		}
	}
}

func subscribeAudit(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventWaitlistSlotOpened, func(ev *events.Event) error {
		var payload events.LifecycleEvent
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		logger.Info().
			Int64("waitlist_entry_id", payload.WaitlistEntryID).
			Int64("resource_id", payload.ResourceID).
			Int64("user_id", payload.UserID).
			Time("start", payload.Start).
			Time("end", payload.End).
			Msg("Waitlist offer issued")
		return nil
	})
	bus.Subscribe(events.EventReservationCancelled, func(ev *events.Event) error {
		var payload events.LifecycleEvent
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		logger.Info().
			Int64("reservation_id", payload.ReservationID).
			Int64("actor_id", payload.ActorID).
			Msg("Reservation cancelled")
		return nil
	})
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
	logger.Info().Int("port", port).Msg("Metrics server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("Metrics server error")
	}
}
