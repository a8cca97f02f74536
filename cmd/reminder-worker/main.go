package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/catalog"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal("config load error", "error", err)
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Service: "reminder-worker"})
	logger.Info("reminder-worker starting up", "env", cfg.Env, "interval", cfg.WorkerInterval, "lead", cfg.ReminderLead)

	if !cfg.NotificationsEnabled() {
		logger.Fatal("TELEGRAM_BOT_TOKEN is required for reminders")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", "error", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	bot := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIURL, logger.With("component", "telegram"))

	// reminders never create appointments, so no slot locker
	svc := booking.NewService(booking.NewPgRepository(pgPool), catalog.NewPgStore(pgPool), nil, bot, booking.Options{
		Location:      cfg.ClinicLocation,
		NotifyTimeout: cfg.NotifyTimeout,
		Logger:        logger.With("component", "booking"),
	})

	runOnce(rootCtx, svc, cfg.ReminderLead, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.ReminderLead, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, lead time.Duration, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	sent, err := svc.SendReminders(runCtx, lead)
	if err != nil {
		logger.Error("reminder run error", "error", err)
		return
	}
	logger.Info("reminder run complete", "sent", sent, "duration_ms", time.Since(start).Milliseconds())
}
