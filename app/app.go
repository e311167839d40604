package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/hostweaveapp/hostweave/internal/cache"
	"github.com/hostweaveapp/hostweave/internal/certs"
	"github.com/hostweaveapp/hostweave/internal/config"
	"github.com/hostweaveapp/hostweave/internal/crypto"
	"github.com/hostweaveapp/hostweave/internal/db"
	"github.com/hostweaveapp/hostweave/internal/email"
	"github.com/hostweaveapp/hostweave/internal/fulfillment"
	"github.com/hostweaveapp/hostweave/internal/handlers"
	"github.com/hostweaveapp/hostweave/internal/hosting"
	"github.com/hostweaveapp/hostweave/internal/logging"
	"github.com/hostweaveapp/hostweave/internal/plans"
	"github.com/hostweaveapp/hostweave/internal/registrar"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers

	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled, err := initSentry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	logger := newLogger(cfg, sentryEnabled)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	encryptor, err := newEncryptor(cfg, logger)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	csrGenerator, err := certs.NewGenerator(encryptor)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize csr generator: %w", err)
	}

	planCatalog, err := plans.Load(cfg.PlanCatalogPath)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to load plan catalog: %w", err)
	}

	emailProvider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}
	renderer, err := email.NewRenderer()
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email renderer: %w", err)
	}

	registrarClient := registrar.NewFromConfig(cfg, cacheProvider, logger.With("component", "registrar"))
	provisioner := hosting.NewFromConfig(cfg, logger.With("component", "hosting"))

	fulfillmentService := fulfillment.NewService(
		fulfillment.NewStore(database),
		registrarClient,
		provisioner,
		csrGenerator,
		planCatalog,
		encryptor,
		emailProvider,
		renderer,
		cfg.DefaultNameservers,
		logger.With("component", "fulfillment"),
	)
	stripeRouter := handlers.NewStripeEventRouter(fulfillmentService, logger.With("component", "stripe_router"))

	h, err := handlers.New(handlers.Dependencies{
		Config:        cfg,
		DB:            database,
		CacheProvider: cacheProvider,
		StripeRouter:  stripeRouter,
		Fulfillment:   fulfillmentService,
		Logger:        logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Handlers:      h,

		sentryEnabled: sentryEnabled,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

// newEncryptor prefers a real AES key. The dev fallback only engages when the
// config explicitly allows it and no usable key is present.
func newEncryptor(cfg *config.Config, logger *slog.Logger) (crypto.Encryptor, error) {
	if cfg.EncryptionDevFallback && len(cfg.EncryptionKey) != 32 {
		return crypto.NewDevEncryptor(logger), nil
	}
	return crypto.NewEncryptor(cfg.EncryptionKey)
}

func initSentry(cfg *config.Config) (bool, error) {
	if strings.TrimSpace(cfg.SentryDSN) == "" {
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		EnableLogs:       true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func newLogger(cfg *config.Config, sentryEnabled bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var stdout slog.Handler
	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	default:
		stdout = tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		})
	}

	if !sentryEnabled {
		return slog.New(stdout)
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelInfo},
	}.NewSentryHandler(context.Background())

	return slog.New(logging.MultiHandler(stdout, sentryHandler))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
