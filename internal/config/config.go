// Package config loads API settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the API needs at startup.
type Config struct {
	HTTPAddr     string
	DatabasePath string
	LogLevel     slog.Level

	Stripe       StripeConfig
	EarlyAdopter EarlyAdopterConfig
	AI           AIConfig

	RedisURL         string
	AdminEmails      []string
	CustomerCacheTTL time.Duration
}

type StripeConfig struct {
	SecretKey             string
	WebhookSecret         string
	PriceIDPremiumMonthly string
	PriceIDEarlyAdopter   string
	FrontendURL           string
}

type EarlyAdopterConfig struct {
	MaxSlots int
}

type AIConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	RequestsPerHour int
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// Missing .env is fine in containers, where variables come from the runtime.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./mealmuse.db"),
		LogLevel:     parseLevel(os.Getenv("LOG_LEVEL")),
		Stripe: StripeConfig{
			SecretKey:             os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:         os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceIDPremiumMonthly: os.Getenv("STRIPE_PRICE_PREMIUM_MONTHLY"),
			PriceIDEarlyAdopter:   os.Getenv("STRIPE_PRICE_EARLY_ADOPTER"),
			FrontendURL:           strings.TrimRight(os.Getenv("FRONTEND_URL"), "/"),
		},
		EarlyAdopter: EarlyAdopterConfig{
			MaxSlots: getEnvInt("EARLY_ADOPTER_MAX_SLOTS", 50),
		},
		AI: AIConfig{
			APIKey:          os.Getenv("OPENAI_API_KEY"),
			Model:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:         os.Getenv("OPENAI_BASE_URL"),
			RequestsPerHour: getEnvInt("AI_REQUESTS_PER_HOUR", 60),
		},
		RedisURL:         os.Getenv("REDIS_URL"),
		AdminEmails:      splitList(os.Getenv("ADMIN_EMAILS")),
		CustomerCacheTTL: getEnvDuration("CUSTOMER_CACHE_TTL", 10*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if c.EarlyAdopter.MaxSlots < 0 {
		return errors.New("EARLY_ADOPTER_MAX_SLOTS must not be negative")
	}
	if c.AI.RequestsPerHour <= 0 {
		return errors.New("AI_REQUESTS_PER_HOUR must be positive")
	}
	return nil
}

// IsAdmin reports whether the e-mail belongs to a moderator.
func (c *Config) IsAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range c.AdminEmails {
		if a == email {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
