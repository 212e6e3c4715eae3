// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"speech-ai-subscription/internal/config"
	"speech-ai-subscription/internal/domain/ports/adapter"
	notifyAdapters "speech-ai-subscription/internal/infra/adapters/notify"
	payAdapters "speech-ai-subscription/internal/infra/adapters/payment"
	pg "speech-ai-subscription/internal/infra/db/postgres"
	"speech-ai-subscription/internal/infra/logging"
	"speech-ai-subscription/internal/infra/metrics"
	red "speech-ai-subscription/internal/infra/redis"
	"speech-ai-subscription/internal/infra/sched"
	"speech-ai-subscription/internal/infra/web"
	"speech-ai-subscription/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop gateway, relaxed validation)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		log.Fatalf("timezone %q: %v", cfg.Scheduler.Timezone, err)
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	periodCache := red.NewPeriodCache(redisClient, cfg.Redis.TTL, logger)

	// ---- Repositories ----
	periodRepo := pg.NewPeriodRepo(pool)
	txRepo := pg.NewTransactionRepo(pool)
	usageRepo := pg.NewUsageLogRepo(pool)
	planRepo := pg.NewPlanRepo(pool)
	teacherRepo := pg.NewTeacherRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Adapters ----
	notifier := notifyAdapters.NewLogNotifier(logger)
	var gateway adapter.PaymentGateway
	if cfg.Runtime.Dev && cfg.Payment.TapPay.PartnerKey == "" {
		gateway = payAdapters.NewNoopPaymentGateway()
		logger.Warn().Msg("payment gateway: noop (dev)")
	} else {
		gateway, err = payAdapters.NewTapPayGateway(
			cfg.Payment.TapPay.MerchantID,
			cfg.Payment.TapPay.PartnerKey,
			cfg.Payment.TapPay.BaseURL,
			cfg.Payment.TapPay.Timeout,
		)
		if err != nil {
			log.Fatalf("tappay gateway: %v", err)
		}
	}

	// ---- Use cases ----
	quotaUC := usecase.NewQuotaUseCase(periodRepo, usageRepo, txManager, periodCache, logger)
	periodUC := usecase.NewPeriodUseCase(periodRepo, txRepo, txManager, periodCache, notifier, cfg.Trial.QuotaSeconds, logger)
	webhookUC := usecase.NewWebhookUseCase(periodRepo, txRepo, teacherRepo, planRepo, txManager, periodCache, notifier, gateway.Name(), cfg.Quota.DefaultMonthlySeconds, logger)
	renewalUC := usecase.NewRenewalUseCase(periodRepo, txRepo, teacherRepo, planRepo, txManager, gateway, notifier, periodCache, loc, cfg.Scheduler.GraceDays, cfg.Payment.TapPay.Timeout, "TWD", logger)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Web.AdminJWTSecret, 30*time.Minute)
	srv := web.NewServer(quotaUC, periodUC, webhookUC, renewalUC, auth, cfg.Web.CronSecret, cfg.Web.AdminAPIKey, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Background workers ----
	expiryWorker := sched.NewExpiryWorker(cfg.Scheduler.SweepInterval, periodUC, periodRepo, logger)
	go func() { _ = expiryWorker.Run(ctx) }()
	renewalWorker := sched.NewRenewalWorker(cfg.Scheduler.RenewalHour, loc, renewalUC, logger)
	go func() { _ = renewalWorker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
