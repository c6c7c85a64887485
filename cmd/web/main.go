package main

import (
	"context"
	"log"
	"os"
	"time"

	"log/slog"

	"github.com/go-co-op/gocron/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"velora.app/internal/config"
	apphttp "velora.app/internal/http"
	"velora.app/internal/http/handlers"
	"velora.app/internal/modules/bookings"
	"velora.app/internal/modules/catalog"
	"velora.app/internal/modules/ledger"
	"velora.app/internal/modules/payments"
	"velora.app/internal/modules/providers"
	"velora.app/internal/notifier"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	db, err := gorm.Open(mysql.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := cache.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unavailable, provider cache disabled", "err", err)
			cache = nil
		}
	}

	var notify notifier.Notifier = &notifier.LogNotifier{Log: logger}
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Warn("amqp unavailable, falling back to log notifications", "err", err)
		} else {
			n, err := notifier.NewAMQPNotifier(conn, "velora.events", logger)
			if err != nil {
				logger.Warn("amqp channel setup failed, falling back to log notifications", "err", err)
			} else {
				notify = n
			}
		}
	}

	var gateway payments.Gateway
	if cfg.StripeAPIKey != "" {
		gateway = payments.NewStripeGateway(cfg.StripeAPIKey, cfg.StripeWebhookSecret)
	} else {
		logger.Warn("no gateway credentials, refunds settle through the mock gateway")
		gateway = payments.NewMockGateway()
	}

	ledgerSvc := ledger.NewService(db)
	stats := providers.NewStatsUpdater(db)
	directory := providers.NewDirectory(db, cache)
	resolver := catalog.NewResolver(db)

	refundEngine := payments.NewRefundEngine(db, ledgerSvc, gateway, stats, notify, logger)
	bookingSvc := bookings.NewService(db, directory, resolver, refundEngine, stats, notify, logger)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := bookingSvc.ExpirePending(ctx); err != nil {
				logger.Error("expiry sweep failed", "err", err)
			}
			if _, err := bookingSvc.StartDue(ctx); err != nil {
				logger.Error("start sweep failed", "err", err)
			}
		}),
	)
	if err != nil {
		log.Fatalf("scheduler job: %v", err)
	}
	scheduler.Start()
	defer func() { _ = scheduler.Shutdown() }()

	r := apphttp.NewRouter(apphttp.RouterDeps{
		Log:       logger,
		JWTSecret: []byte(cfg.JWTSecret),
		Bookings:  handlers.NewBookingsHandler(bookingSvc),
		Refunds:   handlers.NewRefundsHandler(refundEngine),
		Ledger:    handlers.NewLedgerHandler(ledgerSvc),
	})

	logger.Info("listening", "addr", cfg.Addr, "env", cfg.Env)
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
