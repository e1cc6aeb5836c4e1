package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"luxurystay/internal/api"
	"luxurystay/internal/booking"
	"luxurystay/internal/config"
	"luxurystay/internal/events"
	"luxurystay/internal/hotelapi"
	"luxurystay/internal/journal"
	"luxurystay/internal/metrics"
	"luxurystay/internal/notify"
	"luxurystay/internal/session"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := config.LoadDotEnv(); err != nil {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	cfgPath := config.PathFromEnv()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfgPath).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		logger = logger.Level(level)
	}
	live := config.NewLive(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := live.Watch(ctx, cfgPath, 30*time.Second, func(updated *config.Config) {
		logger.Info().
			Bool("free_checkout_day", updated.Calendar.FreeCheckoutDay).
			Time("reloaded_at", time.Now()).
			Msg("config reloaded")
	}); err != nil {
		logger.Error().Err(err).Msg("config watch failed")
	}

	client := hotelapi.NewClient(cfg.API.BaseURL, cfg.APITimeout())
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.API.CacheTTLSeconds > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}

	jrnl, err := journal.Open(cfg.Journal.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open journal error")
	}
	defer jrnl.Close()

	bus := events.NewEventBus()
	bus.OnError(func(ev events.Event, err error) {
		logger.Error().Err(err).Str("event", ev.Type).Int64("event_id", ev.ID).Msg("event handler failed")
	})
	jrnl.Subscribe(bus)

	if cfg.Telegram.BotToken != "" && len(cfg.Telegram.StaffIDs) > 0 {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Error().Err(err).Msg("telegram bot init failed, staff notifications disabled")
		} else {
			botAPI.Debug = cfg.Telegram.Debug
			notifier := notify.NewStaffNotifier(botAPI, notify.Config{ChatIDs: cfg.Telegram.StaffIDs}, &logger)
			notifier.Subscribe(bus)
			go notifier.Run(ctx)
			logger.Info().Str("bot", botAPI.Self.UserName).Int("chats", len(cfg.Telegram.StaffIDs)).Msg("staff notifications enabled")
		}
	}

	store := booking.NewStore(cfg.ProposalTimeout(), nil)
	store.StartCleanup(ctx, cfg.ProposalCleanupInterval(), func(n int) {
		logger.Debug().Int("removed", n).Msg("expired proposals removed")
	})
	bookings := booking.NewService(store, client, client, bus, &logger)

	perSecond, burst := cfg.SubmitRate()
	server := api.NewHTTPServer(cfg.Server.Address, api.Deps{
		Backend:  client,
		Bookings: bookings,
		Auth:     session.NewAuthenticator(cfg.Auth.JWTSecret, client),
		Policy:   live,
		Exporter: jrnl,
	}, api.Options{
		Location:    cfg.Location(),
		SubmitRate:  perSecond,
		SubmitBurst: burst,
	}, &logger)
	server.StartLimiterCleanup(ctx, cfg.ProposalCleanupInterval())

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, jrnl, rdb, client, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	backups := journal.NewBackupService(jrnl, journal.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		Interval:      cfg.BackupInterval(),
		StoragePath:   cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)
	go backups.Start(ctx)

	go startRetentionLoop(ctx, jrnl, cfg.JournalRetention(), &logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Str("api", cfg.API.BaseURL).Msg("storefront started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("storefront stopped")
}

func startRetentionLoop(ctx context.Context, jrnl *journal.Journal, retention time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().Add(-retention)
		if n, err := jrnl.DeleteOlderThan(ctx, cutoff); err != nil {
			logger.Error().Err(err).Msg("journal retention failed")
		} else if n > 0 {
			logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("old attempts removed")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func startHealthServer(ctx context.Context, port int, jrnl *journal.Journal, rdb *redis.Client, client *hotelapi.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := jrnl.Ping(ctxPing); err != nil {
			http.Error(w, "journal not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if err := client.HealthCheck(ctxPing); err != nil {
			http.Error(w, "booking api not ready", http.StatusServiceUnavailable)
			return
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
