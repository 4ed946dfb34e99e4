package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blink/internal/advance"
	"blink/internal/aggregator"
	"blink/internal/config"
	"blink/internal/db"
	"blink/internal/handlers"
	"blink/internal/jobs"
	"blink/internal/middleware"
	"blink/internal/notify"
	"blink/internal/services"
	"blink/internal/store"
	"blink/internal/websocket"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const notificationExchange = "blink.notifications"

func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	policy, err := advance.NewPolicy(
		cfg.AdvanceAmount,
		cfg.AdvanceInstantFee,
		cfg.AdvanceStandardFee,
		cfg.AdvanceEarlyDiscountPercent,
		cfg.AdvanceEarlyRepaymentDays,
		cfg.AdvanceMaxTermDays,
	)
	if err != nil {
		logger.Error("invalid advance policy", "error", err)
		os.Exit(1)
	}

	database, err := db.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	sessions := store.NewRegistrationStore(database)
	accounts := store.NewBankAccountStore(database)
	transactions := store.NewTransactionStore(database)
	advances := store.NewAdvanceStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()
	notifier := notify.NewNotifier(publisher)

	hub := websocket.NewHub()
	client := aggregator.NewClient(cfg.PlaidBaseURL, cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidWebhookURL, logger)

	registrationSvc := services.NewRegistrationService(txRunner, users, sessions, notifier, cfg.OTPTTL(), logger)
	advanceSvc := services.NewAdvanceService(txRunner, advances, accounts, audit, notifier, policy, logger)
	syncSvc := services.NewSyncService(txRunner, accounts, transactions, client, hub, logger, cfg.SyncConcurrency)
	balanceSvc := services.NewBalanceService(accounts, client, hub, logger, cfg.SyncConcurrency)

	handler := handlers.New(cfg, handlers.Dependencies{
		Users:        users,
		Accounts:     accounts,
		Transactions: transactions,
		Aggregator:   client,
		Registration: registrationSvc,
		Advances:     advanceSvc,
		Sync:         syncSvc,
		Balances:     balanceSvc,
		Hub:          hub,
		Limiter:      newLimiter(cfg, logger),
		Logger:       logger,
	})

	scheduler := jobs.NewScheduler(jobs.NewJobs(registrationSvc, balanceSvc, logger), logger, jobs.Schedules{
		SessionCleanup: cfg.SessionCleanupCron,
		BalanceRefresh: cfg.BalanceRefreshCron,
	})
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("blink API listening", "addr", server.Addr, "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		logger.Warn("scheduled jobs still running at shutdown")
	}
	handler.Wait()
}

// newLimiter prefers Redis so the limit holds across instances; without it
// each process counts on its own.
func newLimiter(cfg config.Config, logger *slog.Logger) middleware.Limiter {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set; using in-memory rate limiter")
		return middleware.NewMemoryFixedWindow(cfg.RateLimitRequests, cfg.RateLimitWindow())
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL; using in-memory rate limiter", "error", err)
		return middleware.NewMemoryFixedWindow(cfg.RateLimitRequests, cfg.RateLimitWindow())
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable; using in-memory rate limiter", "error", err)
		_ = rdb.Close()
		return middleware.NewMemoryFixedWindow(cfg.RateLimitRequests, cfg.RateLimitWindow())
	}
	return middleware.NewRedisFixedWindow(rdb, "blink:rate_limit", cfg.RateLimitRequests, cfg.RateLimitWindow())
}

func newPublisher(cfg config.Config, logger *slog.Logger) notify.Publisher {
	if cfg.RabbitMQURL == "" {
		logger.Warn("RABBITMQ_URL not set; notifications will only be logged")
		return notify.NewLogPublisher(logger, !cfg.IsProduction())
	}
	publisher, err := notify.NewAMQPPublisher(cfg.RabbitMQURL, notificationExchange, logger)
	if err != nil {
		logger.Warn("message broker unavailable; notifications will only be logged", "error", err)
		return notify.NewLogPublisher(logger, !cfg.IsProduction())
	}
	return publisher
}
