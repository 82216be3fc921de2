package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DmitryZaika/granite-webhooks/internal/adapters/storage"
	"github.com/DmitryZaika/granite-webhooks/internal/email"
	"github.com/DmitryZaika/granite-webhooks/internal/events"
	apphttp "github.com/DmitryZaika/granite-webhooks/internal/http"
	"github.com/DmitryZaika/granite-webhooks/internal/http/router"
	"github.com/DmitryZaika/granite-webhooks/internal/inboundemail"
	"github.com/DmitryZaika/granite-webhooks/internal/leads"
	"github.com/DmitryZaika/granite-webhooks/internal/telegram"
	"github.com/DmitryZaika/granite-webhooks/internal/telemetry"
	"github.com/DmitryZaika/granite-webhooks/platform/config"
	"github.com/DmitryZaika/granite-webhooks/platform/db"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
	"github.com/DmitryZaika/granite-webhooks/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Close()

	// Telemetry subscribes to notification failures; nil when disabled
	telemetryClient := telemetry.NewClient(cfg, log)
	telemetry.Subscribe(eventBus, telemetryClient)
	if telemetryClient != nil {
		log.Info("telemetry initialized")
	}

	var emailSender email.Sender
	if cfg.GetEmailEnabled() {
		emailSender = email.NewSMTPSender(cfg)
		log.Info("email sender initialized", "host", cfg.GetSMTPHost())
	} else {
		emailSender = email.NewNopSender(log)
		log.Warn("email sending disabled; registration invites will be dropped")
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	telegramClient := telegram.NewClient(cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsModule := leads.NewModule(pool, eventBus, cfg, val, log, telegramClient, emailSender)
	telegramModule := telegram.NewModule(telegramClient, leadsModule.Service(), log)

	modules := []apphttp.Module{
		leadsModule,
		telegramModule,
	}

	// Inbound email needs object storage for raw messages and attachments
	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		ensureBucket(ctx, log, storageSvc, "inbound-email", cfg.GetMinioBucketInboundEmail())
		ensureBucket(ctx, log, storageSvc, "email-attachments", cfg.GetMinioBucketEmailAttachments())
		log.Info("storage service initialized",
			"inboundEmailBucket", cfg.GetMinioBucketInboundEmail(),
			"emailAttachmentsBucket", cfg.GetMinioBucketEmailAttachments(),
		)

		modules = append(modules, inboundemail.NewModule(
			pool, storageSvc, cfg.GetMinioBucketEmailAttachments(), eventBus, log))
	} else {
		log.Warn("MinIO not configured; inbound email webhooks disabled")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules:  modules,
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// ensureBucket wraps the retry logic for verifying a MinIO bucket exists.
func ensureBucket(ctx context.Context, log *logger.Logger, storageSvc storage.ObjectStore, name, bucket string) {
	if err := withRetry(ctx, log, "ensure "+name+" bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
