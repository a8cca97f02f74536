package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/catalog"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/telegram"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal("config load error", "error", err)
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Service: "api-server"})
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", "error", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", "error", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(reg)

	store := catalog.NewPgStore(pgPool)
	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)

	var (
		bot      *telegram.Client
		notifier booking.Notifier
	)
	if cfg.NotificationsEnabled() {
		bot = telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIURL, logger.With("component", "telegram"))
		notifier = bot
		logger.Info("telegram notifications enabled")
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, notifications disabled")
	}

	svc := booking.NewService(repo, store, locker, notifier, booking.Options{
		Location:      cfg.ClinicLocation,
		NotifyTimeout: cfg.NotifyTimeout,
		Logger:        logger.With("component", "booking"),
		Metrics:       bookingMetrics,
	})

	var webhook http.Handler
	if bot != nil && !cfg.WebhookEnabled() {
		logger.Warn("TELEGRAM_WEBHOOK_SECRET not set, telegram webhook not mounted")
	}
	if bot != nil && cfg.WebhookEnabled() {
		webhook = telegram.NewWebhookHandler(cfg.TelegramWebhookSecret, svc, store, bot, logger.With("component", "telegram_webhook"))

		if cfg.TelegramWebhookURL != "" {
			hookCtx, cancelHook := context.WithTimeout(rootCtx, 15*time.Second)
			if err := bot.SetWebhook(hookCtx, cfg.TelegramWebhookURL, cfg.TelegramWebhookSecret); err != nil {
				logger.Warn("telegram webhook registration failed", "error", err)
			}
			cancelHook()
		}
	}

	router := api.NewRouter(api.RouterConfig{
		Bookings:      svc,
		Catalog:       store,
		Postgres:      pgPool,
		Redis:         api.RedisPinger(rdb),
		Webhook:       webhook,
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		SessionSecret: cfg.SessionSecret,
		Location:      cfg.ClinicLocation,
		Logger:        logger,
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	// let in-flight notices finish before the pools close
	svc.Wait()
	logger.Info("api-server stopped")
}
