package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN is required")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get DB: %v", err)
	}

	sql := `
	CREATE TABLE IF NOT EXISTS services (
	  id CHAR(36) NOT NULL,
	  name VARCHAR(255) NOT NULL,
	  type_name VARCHAR(32) NOT NULL DEFAULT 'standard',
	  price_cents BIGINT NOT NULL,
	  currency CHAR(3) NOT NULL DEFAULT 'EUR',
	  duration_minutes INT NOT NULL,
	  active TINYINT(1) NOT NULL DEFAULT 1,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS provider_profiles (
	  id CHAR(36) NOT NULL,
	  user_id CHAR(36) NOT NULL,
	  display_name VARCHAR(255) NOT NULL,
	  active TINYINT(1) NOT NULL DEFAULT 1,
	  auto_confirm TINYINT(1) NOT NULL DEFAULT 0,
	  vip TINYINT(1) NOT NULL DEFAULT 0,
	  confirmed_bookings_count INT NOT NULL DEFAULT 0,
	  completed_bookings_count INT NOT NULL DEFAULT 0,
	  cancelled_bookings_count INT NOT NULL DEFAULT 0,
	  total_earned_cents BIGINT NOT NULL DEFAULT 0,
	  refunds_count INT NOT NULL DEFAULT 0,
	  refunds_amount_cents BIGINT NOT NULL DEFAULT 0,
	  last_booking_confirmed_at DATETIME(3) NULL,
	  last_booking_completed_at DATETIME(3) NULL,
	  last_refund_at DATETIME(3) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_provider_profiles_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS bookings (
	  id CHAR(36) NOT NULL,
	  booking_number VARCHAR(32) NOT NULL,
	  provider_id CHAR(36) NOT NULL,
	  client_id CHAR(36) NOT NULL,
	  starts_at DATETIME(3) NOT NULL,
	  ends_at DATETIME(3) NOT NULL,
	  duration_minutes INT NOT NULL,
	  status VARCHAR(32) NOT NULL,
	  total_price_cents BIGINT NOT NULL,
	  paid_cents BIGINT NOT NULL DEFAULT 0,
	  refunded_cents BIGINT NOT NULL DEFAULT 0,
	  deposit_cents BIGINT NOT NULL DEFAULT 0,
	  currency CHAR(3) NOT NULL,
	  reschedule_count INT NOT NULL DEFAULT 0,
	  confirmed_at DATETIME(3) NULL,
	  cancelled_at DATETIME(3) NULL,
	  completed_at DATETIME(3) NULL,
	  cancelled_by VARCHAR(16) NULL,
	  cancellation_reason VARCHAR(500) NULL,
	  metadata JSON NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_bookings_number (booking_number),
	  KEY ix_bookings_provider_window (provider_id, starts_at, ends_at),
	  KEY ix_bookings_client (client_id),
	  KEY ix_bookings_status (status, starts_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS booking_items (
	  id CHAR(36) NOT NULL,
	  booking_id CHAR(36) NOT NULL,
	  service_id CHAR(36) NOT NULL,
	  name VARCHAR(255) NOT NULL,
	  price_cents BIGINT NOT NULL,
	  duration_minutes INT NOT NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_booking_items_booking (booking_id),
	  CONSTRAINT fk_booking_items_booking FOREIGN KEY (booking_id) REFERENCES bookings(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS payments (
	  id CHAR(36) NOT NULL,
	  payment_number VARCHAR(32) NOT NULL,
	  user_id CHAR(36) NOT NULL,
	  booking_id CHAR(36) NULL,
	  category VARCHAR(32) NOT NULL,
	  status VARCHAR(32) NOT NULL,
	  amount_cents BIGINT NOT NULL,
	  refunded_cents BIGINT NOT NULL DEFAULT 0,
	  currency CHAR(3) NOT NULL,
	  gateway VARCHAR(32) NOT NULL,
	  gateway_ref VARCHAR(255) NULL,
	  metadata JSON NULL,
	  processed_at DATETIME(3) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_payments_number (payment_number),
	  KEY ix_payments_user (user_id),
	  KEY ix_payments_booking (booking_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS transactions (
	  id CHAR(36) NOT NULL,
	  transaction_number VARCHAR(32) NOT NULL,
	  user_id CHAR(36) NOT NULL,
	  booking_id CHAR(36) NULL,
	  parent_id CHAR(36) NULL,
	  type VARCHAR(32) NOT NULL,
	  direction VARCHAR(8) NOT NULL,
	  status VARCHAR(32) NOT NULL,
	  amount_cents BIGINT NOT NULL,
	  currency CHAR(3) NOT NULL,
	  balance_before_cents BIGINT NOT NULL,
	  balance_after_cents BIGINT NULL,
	  description VARCHAR(500) NULL,
	  gateway VARCHAR(32) NULL,
	  gateway_transaction_id VARCHAR(255) NULL,
	  metadata JSON NULL,
	  processed_at DATETIME(3) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_transactions_number (transaction_number),
	  KEY ix_transactions_user_currency (user_id, currency, created_at),
	  KEY ix_transactions_booking (booking_id),
	  KEY ix_transactions_gateway_txn (gateway_transaction_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS ledger_balance_anchors (
	  user_id CHAR(36) NOT NULL,
	  currency CHAR(3) NOT NULL,
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (user_id, currency)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := sqlDB.Exec(sql); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	log.Println("Tables created")
}
