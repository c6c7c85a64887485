package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string // dev|prod
	Addr string

	DBDSN string

	RedisAddr string // empty disables the cache
	AMQPURL   string // empty falls back to log-only notifications

	JWTSecret string

	StripeAPIKey        string
	StripeWebhookSecret string
}

// Load reads the environment, with .env as a dev convenience. Prod
// deployments set real environment variables.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:                 getenv("APP_ENV", "dev"),
		Addr:                getenv("HTTP_ADDR", ":8080"),
		DBDSN:               os.Getenv("DB_DSN"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		AMQPURL:             os.Getenv("AMQP_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
	}

	if cfg.DBDSN == "" {
		return Config{}, fmt.Errorf("DB_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
