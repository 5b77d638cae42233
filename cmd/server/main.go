package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/saasfoundry/billingsync/pkg/billing"
	"github.com/saasfoundry/billingsync/pkg/config"
	"github.com/saasfoundry/billingsync/pkg/entitlement"
	"github.com/saasfoundry/billingsync/pkg/httpserver"
	"github.com/saasfoundry/billingsync/pkg/logger"
	"github.com/saasfoundry/billingsync/pkg/pg"
	"github.com/saasfoundry/billingsync/pkg/ratelimit"
	"github.com/saasfoundry/billingsync/pkg/redis"
)

type appConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`

	Billing billing.Config
	Stripe  billing.StripeConfig
	HTTP    httpserver.Config
	PG      pg.Config
	Redis   redis.Config
}

func main() {
	_ = config.LoadEnv()

	var cfg appConfig
	config.MustLoad(&cfg)

	var log *slog.Logger
	if cfg.Environment == "production" {
		log = logger.New(logger.WithProduction("billingsync"))
	} else {
		log = logger.New(logger.WithDevelopment("billingsync"))
	}
	logger.SetAsDefault(log)

	ctx := context.Background()

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		log.Error("failed to connect to postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	store := entitlement.NewPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Error("failed to ensure entitlement schema", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	// The checkout limiter counts in Redis so every instance shares one
	// fixed window per identity.
	limiter, err := ratelimit.NewFixedWindow(ratelimit.NewRedisStore(redisClient), 5, time.Minute)
	if err != nil {
		log.Error("failed to build rate limiter", slog.Any("error", err))
		os.Exit(1)
	}

	provider, err := billing.NewStripeProvider(cfg.Stripe)
	if err != nil {
		log.Error("failed to configure billing provider", slog.Any("error", err))
		os.Exit(1)
	}

	svc := billing.NewService(cfg.Billing, provider, store,
		billing.WithRateLimiter(limiter),
		billing.WithLogger(log),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/healthz", httpserver.Healthcheck(log))
	r.Get("/readyz", httpserver.Healthcheck(log,
		func(ctx context.Context) error { return pool.Ping(ctx) },
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	))
	r.Mount("/", billing.NewRouter(svc, log))

	srv := httpserver.New(cfg.HTTP, log)
	if err := srv.Run(ctx, r); err != nil {
		log.Error("http server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
