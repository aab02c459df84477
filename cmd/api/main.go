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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinvia/revenue-engine/internal/api/router"
	"github.com/clinvia/revenue-engine/internal/appointments"
	"github.com/clinvia/revenue-engine/internal/audit"
	"github.com/clinvia/revenue-engine/internal/clinics"
	appconfig "github.com/clinvia/revenue-engine/internal/config"
	"github.com/clinvia/revenue-engine/internal/events"
	"github.com/clinvia/revenue-engine/internal/flashoffers"
	"github.com/clinvia/revenue-engine/internal/gaps"
	"github.com/clinvia/revenue-engine/internal/http/handlers"
	"github.com/clinvia/revenue-engine/internal/notify"
	"github.com/clinvia/revenue-engine/internal/observability/metrics"
	"github.com/clinvia/revenue-engine/internal/patients"
	"github.com/clinvia/revenue-engine/internal/payments"
	"github.com/clinvia/revenue-engine/internal/tenancy"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting revenue-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"mock_payments", cfg.MockPayments,
	)

	ctx := context.Background()
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

	// Stores
	tenancyStore := tenancy.NewStore(pool)
	clinicStore := clinics.NewStore(pool)
	patientStore := patients.NewStore(pool)
	apptStore := appointments.NewStore(pool)
	campaignStore := flashoffers.NewStore(pool)
	processedStore := events.NewProcessedStore(pool)
	auditSink := audit.NewSink(pool, logger)

	vault, err := tenancy.NewVault(tenancyStore, cfg.JWTSecret, cfg.CredentialKeyHex, logger)
	if err != nil {
		logger.Error("vault initialization failed", "error", err)
		os.Exit(1)
	}

	pm := metrics.NewPaymentMetrics(nil)
	om := metrics.NewOfferMetrics(nil)

	// Payments
	mock := payments.NewMockGateway(cfg.PublicBaseURL, 300*time.Millisecond,
		payments.NewWeightedOutcomes(cfg.MockPaymentSeed), logger)
	selector := payments.NewSelector(payments.SelectorConfig{
		MockMode:         cfg.MockPayments,
		Mock:             mock,
		ReturnBase:       cfg.CheckoutReturn,
		NotifyBase:       cfg.PublicBaseURL + cfg.WebhookBasePath + "/mercadopago",
		WebpayReturnBase: cfg.PublicBaseURL + cfg.WebhookBasePath + "/webpay",
		MercadoPagoAPI:   cfg.MercadoPagoBase,
		WebpayAPI:        cfg.WebpayBase,
		Timeout:          cfg.GatewayTimeout,
	}, vault, logger)

	enforcer := appointments.NewEnforcer(apptStore, auditSink, logger)

	// Flash offer loop (on-demand dispatch; the sweeper binary runs it on a timer)
	detector := gaps.NewDetector(clinicStore, apptStore, cfg.OfferDiscountPct,
		time.Duration(cfg.OfferExpiryHours)*time.Hour, om, logger)
	cooldown := flashoffers.NewCooldown(redisClient(cfg), time.Duration(cfg.OfferCooldownHours)*time.Hour)
	dispatcher := flashoffers.NewDispatcher(flashoffers.Config{
		HorizonHours: cfg.OfferHorizonHours,
		LeadsPerGap:  cfg.OfferLeadsPerGap,
	}, detector, clinicStore, patientStore, apptStore, campaignStore, cooldown,
		offerSender(cfg, logger), auditSink, om, logger)

	r := router.New(&router.Config{
		Logger: logger,
		Vault:  vault,
		CheckoutHandler: payments.NewCheckoutHandler(
			selector, clinicStore, apptStore, patientStore, pm, logger),
		StatusHandler:   handlers.NewStatusHandler(enforcer, logger),
		GapsHandler:     handlers.NewGapsHandler(detector, cfg.OfferHorizonHours, logger),
		DispatchHandler: handlers.NewDispatchHandler(dispatcher, logger),
		MercadoPagoHook: payments.NewMercadoPagoWebhookHandler(
			selector, clinicStore, enforcer, processedStore, pm, logger),
		WebpayReturn: payments.NewWebpayReturnHandler(
			selector, clinicStore, apptStore, enforcer, processedStore, pm,
			cfg.CheckoutReturn+"/success", cfg.CheckoutReturn+"/failure", logger),
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func redisClient(cfg *appconfig.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

func offerSender(cfg *appconfig.Config, logger *logging.Logger) notify.Sender {
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		return sg
	}
	return notify.NewLogSender(logger)
}
