package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shifalabs/clinic-receptionist/internal/api/router"
	"github.com/shifalabs/clinic-receptionist/internal/appointments"
	appconfig "github.com/shifalabs/clinic-receptionist/internal/config"
	"github.com/shifalabs/clinic-receptionist/internal/conversation"
	"github.com/shifalabs/clinic-receptionist/internal/intake"
	"github.com/shifalabs/clinic-receptionist/internal/messaging"
	"github.com/shifalabs/clinic-receptionist/internal/notify"
	"github.com/shifalabs/clinic-receptionist/internal/observability/metrics"
	"github.com/shifalabs/clinic-receptionist/internal/reminder"
	"github.com/shifalabs/clinic-receptionist/internal/schedule"
	"github.com/shifalabs/clinic-receptionist/internal/triage"
	"github.com/shifalabs/clinic-receptionist/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-receptionist API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Appointment storage: Postgres in production, in-memory otherwise.
	var repo appointments.Repository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		repo = appointments.NewPostgresRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory appointment store")
		repo = appointments.NewInMemoryRepository()
	}

	// Session storage: Redis in production, in-memory otherwise.
	var sessions intake.Store
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis ping failed", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		sessions = intake.NewRedisStore(client, cfg.SessionIdleTimeout)
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory session store")
		sessions = intake.NewMemoryStore()
	}

	scheduler, err := schedule.NewEngine(cfg.ClinicOpenHour, cfg.ClinicCloseHour, cfg.SlotDurationMinutes, cfg.BookingHorizonDays)
	if err != nil {
		logger.Error("invalid clinic hours", "error", err)
		os.Exit(1)
	}

	// Field extraction: Gemini when a key is configured, rules otherwise.
	var extractor conversation.Extractor
	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiExtractor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("failed to create gemini extractor", "error", err)
			os.Exit(1)
		}
		defer func() { _ = gemini.Close() }()
		extractor = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, using rule-based extraction")
		extractor = conversation.NewRuleExtractor(nil)
	}

	// Outbound messaging.
	var messenger messaging.Messenger
	if cfg.WhatsAppProvider == "twilio" {
		messenger = messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	} else {
		logger.Warn("whatsapp provider is console, outbound messages are logged only")
		messenger = messaging.NewConsoleSender(os.Stdout)
	}

	registry := prometheus.NewRegistry()
	convMetrics := metrics.NewConversationMetrics(registry)

	email := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	var notifier conversation.BookingNotifier
	if email != nil || cfg.DoctorPhone != "" {
		var emailSender notify.EmailSender
		if email != nil {
			emailSender = email
		}
		notifier = notify.NewDoctorNotifier(messenger, emailSender, logger, cfg.DoctorPhone, cfg.DoctorEmail, cfg.ClinicName)
	}

	engine := conversation.NewEngine(conversation.EngineConfig{
		Sessions:     sessions,
		Triage:       triage.NewClassifier(),
		Scheduler:    scheduler,
		Appointments: repo,
		Extractor:    extractor,
		Notifier:     notifier,
		Logger:       logger,
		Metrics:      convMetrics,
		ClinicName:   cfg.ClinicName,
		LLMTimeout:   cfg.LLMTimeout,
		IdleTimeout:  cfg.SessionIdleTimeout,
	})

	scanner := reminder.NewScanner(repo, messenger, logger, convMetrics, cfg.ClinicName, cfg.ReminderLookahead, cfg.ReminderInterval)
	go scanner.Run(ctx)

	r := router.New(&router.Config{
		Logger:              logger,
		MessagingHandler:    messaging.NewHandler(engine, cfg.TwilioWebhookSecret, logger),
		AppointmentsHandler: appointments.NewHandler(repo, logger),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		WebhookRatePerSec:   5,
		WebhookBurst:        10,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
