package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Port                   string
	DatabaseURL            string
	RedisURL               string
	MigrationsDir          string
	LogLevel               string
	Credentials            []domain.Credential
	PollInterval           time.Duration
	ErrorWebhookURL        string
	HealthProbeURL         string
	HealthProbeTimeout     time.Duration
	WebhookTimeout         time.Duration
	DeliveryConcurrency    int
	PostsPerFetch          int
	ScrapeRPS              float64
	CredentialHourlyBudget int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	creds, err := ParseCredentials(v.GetString("SCRAPER_CREDENTIALS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                   v.GetString("PORT"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		RedisURL:               v.GetString("REDIS_URL"),
		MigrationsDir:          v.GetString("MIGRATIONS_DIR"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		Credentials:            creds,
		PollInterval:           getDuration(v, "POLL_INTERVAL"),
		ErrorWebhookURL:        v.GetString("ERROR_WEBHOOK_URL"),
		HealthProbeURL:         v.GetString("HEALTH_PROBE_URL"),
		HealthProbeTimeout:     getDuration(v, "HEALTH_PROBE_TIMEOUT"),
		WebhookTimeout:         getDuration(v, "WEBHOOK_TIMEOUT"),
		DeliveryConcurrency:    v.GetInt("DELIVERY_CONCURRENCY"),
		PostsPerFetch:          v.GetInt("POSTS_PER_FETCH"),
		ScrapeRPS:              v.GetFloat64("SCRAPE_RPS"),
		CredentialHourlyBudget: v.GetInt("CREDENTIAL_HOURLY_BUDGET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("POLL_INTERVAL", "900s")
	v.SetDefault("HEALTH_PROBE_URL", "https://www.google.com")
	v.SetDefault("HEALTH_PROBE_TIMEOUT", "5s")
	v.SetDefault("WEBHOOK_TIMEOUT", "10s")
	v.SetDefault("DELIVERY_CONCURRENCY", 8)
	v.SetDefault("POSTS_PER_FETCH", 20)
	v.SetDefault("SCRAPE_RPS", 0.5)
	v.SetDefault("CREDENTIAL_HOURLY_BUDGET", 0)
}

// Validate enforces required values and reasonable limits.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if len(c.Credentials) == 0 {
		return fmt.Errorf("SCRAPER_CREDENTIALS must contain at least one user:secret pair")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.HealthProbeURL == "" {
		return fmt.Errorf("HEALTH_PROBE_URL is required")
	}
	if c.HealthProbeTimeout <= 0 {
		return fmt.Errorf("HEALTH_PROBE_TIMEOUT must be > 0")
	}
	if c.DeliveryConcurrency <= 0 {
		return fmt.Errorf("DELIVERY_CONCURRENCY must be > 0")
	}
	if c.PostsPerFetch <= 0 {
		return fmt.Errorf("POSTS_PER_FETCH must be > 0")
	}
	if c.ScrapeRPS < 0 {
		return fmt.Errorf("SCRAPE_RPS must be >= 0")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getDuration accepts Go duration strings ("15m") or bare integers, read as seconds.
func getDuration(v *viper.Viper, key string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

// ParseCredentials parses an ordered "user:secret,user:secret" list. The secret is
// everything after the first colon, so secrets may contain colons themselves.
func ParseCredentials(raw string) ([]domain.Credential, error) {
	var creds []domain.Credential
	for i, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		user, secret, ok := strings.Cut(pair, ":")
		user = strings.TrimSpace(user)
		if !ok || user == "" || secret == "" {
			return nil, fmt.Errorf("SCRAPER_CREDENTIALS entry %d is not user:secret", i+1)
		}
		creds = append(creds, domain.Credential{Username: user, Secret: secret})
	}
	return creds, nil
}
