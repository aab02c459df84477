package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/clinvia/revenue-engine/internal/appointments"
	"github.com/clinvia/revenue-engine/internal/audit"
	"github.com/clinvia/revenue-engine/internal/clinics"
	appconfig "github.com/clinvia/revenue-engine/internal/config"
	"github.com/clinvia/revenue-engine/internal/flashoffers"
	"github.com/clinvia/revenue-engine/internal/gaps"
	"github.com/clinvia/revenue-engine/internal/notify"
	"github.com/clinvia/revenue-engine/internal/observability/metrics"
	"github.com/clinvia/revenue-engine/internal/patients"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

// The sweeper owns the periodic recovery loop: expire stale flash offers,
// record conversions, dispatch new offers. It shares no state with the API
// servers; every write is a conditional update, so running both is safe.
func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting revenue-engine sweeper", "interval", cfg.SweeperInterval.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("postgres pool creation failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres unreachable", "error", err)
		os.Exit(1)
	}

	clinicStore := clinics.NewStore(pool)
	patientStore := patients.NewStore(pool)
	apptStore := appointments.NewStore(pool)
	campaignStore := flashoffers.NewStore(pool)
	auditSink := audit.NewSink(pool, logger)
	om := metrics.NewOfferMetrics(nil)

	detector := gaps.NewDetector(clinicStore, apptStore, cfg.OfferDiscountPct,
		time.Duration(cfg.OfferExpiryHours)*time.Hour, om, logger)

	var client *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client = redis.NewClient(opts)
		defer func() { _ = client.Close() }()
	}
	cooldown := flashoffers.NewCooldown(client, time.Duration(cfg.OfferCooldownHours)*time.Hour)

	var sender notify.Sender = notify.NewLogSender(logger)
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		sender = sg
	}

	dispatcher := flashoffers.NewDispatcher(flashoffers.Config{
		HorizonHours: cfg.OfferHorizonHours,
		LeadsPerGap:  cfg.OfferLeadsPerGap,
	}, detector, clinicStore, patientStore, apptStore, campaignStore, cooldown,
		sender, auditSink, om, logger)

	sweeper := flashoffers.NewSweeper(clinicStore, dispatcher, cfg.SweeperInterval, logger)
	sweeper.Start(ctx)

	logger.Info("sweeper stopped")
}
