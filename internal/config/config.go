package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// Registrar credentials. When both are empty the registrar client runs
	// against the deterministic mock transport.
	RegistrarAPIURL   string `env:"REGISTRAR_API_URL" envDefault:"https://api.registrar.example.net/api.ncc" validate:"required,url"`
	RegistrarUsername string `env:"REGISTRAR_USERNAME"`
	RegistrarAPIKey   string `env:"REGISTRAR_API_KEY"`

	HostingAPIURL   string `env:"HOSTING_API_URL" envDefault:"https://api.hostpanel.example.com/v1" validate:"required,url"`
	HostingAPIToken string `env:"HOSTING_API_TOKEN"`

	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required" validate:"required"`

	EncryptionKey         string `env:"ENCRYPTION_KEY"`
	EncryptionDevFallback bool   `env:"ENCRYPTION_DEV_FALLBACK" envDefault:"false"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"resend" validate:"omitempty,oneof=resend"`
	EmailAPIKey   string `env:"EMAIL_API_KEY"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"omitempty,email"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	DefaultNameservers []string `env:"DEFAULT_NAMESERVERS" envDefault:"ns1.hostweave.net,ns2.hostweave.net" validate:"min=2"`
	PlanCatalogPath    string   `env:"PLAN_CATALOG_PATH" envDefault:"plans.yaml" validate:"required"`

	SentryDSN string `env:"SENTRY_DSN"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasRegistrarUser := strings.TrimSpace(c.RegistrarUsername) != ""
	hasRegistrarKey := strings.TrimSpace(c.RegistrarAPIKey) != ""
	if hasRegistrarUser != hasRegistrarKey {
		return fmt.Errorf("REGISTRAR_USERNAME and REGISTRAR_API_KEY must be set together")
	}

	hasEmailKey := strings.TrimSpace(c.EmailAPIKey) != ""
	hasEmailFrom := strings.TrimSpace(c.EmailFrom) != ""
	if hasEmailKey != hasEmailFrom {
		return fmt.Errorf("EMAIL_API_KEY and EMAIL_FROM must be set together")
	}

	if !c.EncryptionDevFallback && len(c.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes unless ENCRYPTION_DEV_FALLBACK is enabled")
	}

	return nil
}

// RegistrarLive reports whether live registrar credentials are configured.
func (c *Config) RegistrarLive() bool {
	return strings.TrimSpace(c.RegistrarUsername) != "" && strings.TrimSpace(c.RegistrarAPIKey) != ""
}

// HostingLive reports whether a live hosting provider token is configured.
func (c *Config) HostingLive() bool {
	return strings.TrimSpace(c.HostingAPIToken) != ""
}
