package main

import (
	"context"
	"log"
	"os"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"velora.app/internal/modules/bookings"
	"velora.app/internal/modules/catalog"
	"velora.app/internal/modules/ledger"
	"velora.app/internal/modules/payments"
	"velora.app/internal/modules/providers"
	"velora.app/internal/notifier"
)

// One-shot sweep for cron setups that run outside the web process.
func main() {
	_ = godotenv.Load()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	notify := &notifier.LogNotifier{Log: logger}
	ledgerSvc := ledger.NewService(db)
	stats := providers.NewStatsUpdater(db)

	// Sweeps never settle refunds, so the gateway is never called.
	engine := payments.NewRefundEngine(db, ledgerSvc, payments.NewMockGateway(), stats, notify, logger)
	svc := bookings.NewService(db, providers.NewDirectory(db, nil), catalog.NewResolver(db), engine, stats, notify, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	expired, err := svc.ExpirePending(ctx)
	if err != nil {
		log.Fatalf("expiry sweep: %v", err)
	}
	started, err := svc.StartDue(ctx)
	if err != nil {
		log.Fatalf("start sweep: %v", err)
	}

	logger.Info("sweep finished", "expired", expired, "started", started)
}
