package main

import (
	"context"
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

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/api/router"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/appointments"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
	appconfig "github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/config"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/events"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/followups"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/gateway"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/http/handlers"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/jobs"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/notify"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/observability/metrics"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/realtime"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/users"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/vouchers"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/wallet"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dental scheduling API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, scan locks degraded", "error", err)
	}

	// Realtime fan-out and the transactional outbox feeding it.
	hub := realtime.NewHub(logger)
	outbox := events.NewOutboxStore(pool)
	emitter := events.NewEmitter(outbox, logger)
	deliverer := events.NewDeliverer(outbox, hub, logger).WithInterval(cfg.OutboxInterval)

	// Repositories and domain services.
	usersRepo := users.NewRepository(pool)
	walletRepo := wallet.NewRepository(pool)
	notifyStore := notify.NewStore(pool)
	notifier := notify.NewService(notifyStore, logger)
	voucherSvc := vouchers.NewService(vouchers.NewRepository(pool), logger)
	billingRepo := billing.NewRepository(pool)
	ledger := billing.NewLedger(pool, walletRepo, emitter, billing.LedgerConfig{
		PlatformFeePercent: cfg.PlatformFeePercent,
		ReservationFee:     cfg.ReservationFee,
		CancellationFee:    cfg.CancellationFee,
	}, logger)

	apptRepo := appointments.NewRepository(pool)
	scheduler := appointments.NewScheduler(apptRepo, ledger, billingRepo, voucherSvc,
		notifier, emitter, cfg.CancellationWindow, logger)

	momoClient := gateway.NewClient(gateway.Config{
		Endpoint:    cfg.MomoEndpoint,
		PartnerCode: cfg.MomoPartnerCode,
		AccessKey:   cfg.MomoAccessKey,
		SecretKey:   cfg.MomoSecretKey,
		ReturnURL:   cfg.MomoReturnURL,
		NotifyURL:   cfg.MomoNotifyURL,
		MaxRetries:  cfg.GatewayMaxRetries,
		BaseDelay:   cfg.GatewayBaseDelay,
	}, logger)
	reconciler := gateway.NewReconciler(momoClient, billingRepo, ledger, scheduler,
		apptRepo, walletRepo, notifier, emitter, logger)

	followUpRepo := followups.NewRepository(pool)
	followUpSvc := followups.NewService(followUpRepo, apptRepo, scheduler,
		voucherSvc, notifier, logger)

	schedulingMetrics := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)

	// Periodic jobs. Redis locks only reduce duplicate work across
	// instances; the persisted markers are what guarantee once-only effects.
	reminderScanner := jobs.NewReminderScanner(apptRepo, usersRepo, notifier,
		jobs.NewScanLock(redisClient, "jobs:reminder", time.Minute),
		cfg.ReminderWindowStart, cfg.ReminderWindowEnd, logger).
		WithInterval(cfg.ReminderInterval).
		WithMetrics(schedulingMetrics)
	autoRejectScanner := jobs.NewAutoRejectScanner(apptRepo, scheduler, voucherSvc,
		jobs.NewScanLock(redisClient, "jobs:autoreject", time.Minute),
		cfg.AutoRejectMargin, cfg.AutoRejectVoucherPercent, logger).
		WithInterval(cfg.AutoRejectInterval).
		WithMetrics(schedulingMetrics)
	timeoutScanner := gateway.NewTimeoutScanner(reconciler, cfg.PaymentTimeout, logger).
		WithInterval(cfg.TimeoutInterval)

	go deliverer.Start(ctx)
	go reminderScanner.Start(ctx)
	go autoRejectScanner.Start(ctx)
	go timeoutScanner.Start(ctx)

	r := router.New(&router.Config{
		Logger:               logger,
		AppointmentsHandler:  handlers.NewAppointmentsHandler(scheduler, apptRepo, schedulingMetrics, logger),
		GatewayHandler:       handlers.NewGatewayHandler(reconciler, schedulingMetrics, logger),
		WalletHandler:        handlers.NewWalletHandler(reconciler, scheduler, usersRepo, walletRepo, logger),
		BillingHandler:       handlers.NewBillingHandler(billingRepo, logger),
		FollowUpsHandler:     handlers.NewFollowUpsHandler(followUpSvc, followUpRepo, logger),
		NotificationsHandler: handlers.NewNotificationsHandler(notifyStore, logger),
		Hub:                  hub,
		MetricsHandler:       promhttp.Handler(),
		StaffAuthSecret:      cfg.StaffJWTSecret,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
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
			stop()
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
