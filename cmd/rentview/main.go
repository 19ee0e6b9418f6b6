package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"rentview/internal/api"
	"rentview/internal/appointments"
	"rentview/internal/booking"
	"rentview/internal/calendar"
	"rentview/internal/config"
	"rentview/internal/coordinator"
	"rentview/internal/database"
	"rentview/internal/events"
	"rentview/internal/metrics"
	"rentview/internal/notify"
	"rentview/internal/reminders"
	"rentview/internal/sheets"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("RENTVIEW_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus(logger)
	loc := cfg.Location()

	store, err := database.NewDB(cfg.Database.Path, bus, loc, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer store.Close()

	var svc appointments.Service = store
	if cfg.Appointments.BaseURL != "" {
		svc = appointments.NewClient(cfg.Appointments.BaseURL, cfg.Appointments.APIKey, cfg.AppointmentsTimeout(), logger)
		logger.Info().Str("base_url", cfg.Appointments.BaseURL).Msg("using remote appointment service")
	}

	var rdb *redis.Client
	var sessions booking.SessionStore
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		sessions = booking.NewRedisSessionStore(rdb, cfg.SessionTTL())
	} else {
		mem := booking.NewMemorySessionStore(cfg.SessionTTL())
		go cleanupSessions(ctx, mem, &logger)
		sessions = mem
	}

	if cfg.Notify.Telegram.Enabled {
		bot, err := notify.NewBotSender(cfg.Notify.Telegram.BotToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram bot error")
		}
		notifier := notify.NewNotifier(bot, notify.StaticChats(cfg.Notify.Telegram.Chats), cfg.Notify.Telegram.RatePerSecond, logger)
		notifier.Subscribe(bus)

		switch {
		case cfg.Reminders.Enabled && cfg.Appointments.BaseURL != "":
			logger.Warn().Msg("reminders need the local appointment store; disabled")
		case cfg.Reminders.Enabled:
			scheduler := reminders.NewScheduler(reminders.Config{
				DailyHour:   cfg.Reminders.DailyHour,
				DailyMinute: cfg.Reminders.DailyMinute,
			}, store, notifier, loc, logger)
			go scheduler.Start(ctx)
		}
	}

	if cfg.Sheets.Enabled {
		srv, err := sheets.NewService(ctx, cfg.Sheets.CredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("create sheets service error")
		}
		mirror := sheets.NewMirror(srv, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, logger)
		if err := mirror.EnsureHeader(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to write sheet header")
		}
		mirror.Subscribe(bus)
	}

	if cfg.Backup.Enabled {
		go database.NewBackupService(store, cfg.Backup, &logger).Start(ctx)
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, store, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Monitoring.GRPCHealthPort > 0 {
		go startGRPCHealthServer(ctx, cfg.Monitoring.GRPCHealthPort, &logger)
	}

	wizards := booking.NewFactory(
		svc,
		calendar.Generator{WeekStart: cfg.WeekStart()},
		func() time.Time { return time.Now().In(loc) },
		logger,
	)
	server := api.NewHTTPServer(cfg.Server.Address, api.Deps{
		Service:  svc,
		Rooms:    store,
		Wizards:  wizards,
		Sessions: sessions,
		Tracker:  coordinator.NewTracker(),
		APIKey:   cfg.Server.APIKey,
	}, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server error")
			stop()
		}
	}()

	logger.Info().Msg("rentview started")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api server shutdown error")
	}
	logger.Info().Msg("rentview stopped")
}

func cleanupSessions(ctx context.Context, mem *booking.MemorySessionStore, logger *zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mem.Cleanup(); n > 0 {
				logger.Debug().Int("sessions", n).Msg("expired wizard sessions dropped")
			}
		}
	}
}

func startHealthServer(ctx context.Context, port int, store *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := store.Ready(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
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
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func startGRPCHealthServer(ctx context.Context, port int, logger *zerolog.Logger) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Error().Err(err).Msg("grpc health listen error")
		return
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()
	logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health server listening")
	if err := srv.Serve(lis); err != nil {
		logger.Error().Err(err).Msg("grpc health server error")
	}
}
