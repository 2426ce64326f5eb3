// Package main is the entry point of the badge API server.
//
// The server exposes the badge engine over HTTP: callers authenticated by a
// bearer token compute and read their badges, administrators maintain the
// achievement catalog. Grants are announced on Redis pub/sub when Redis is
// enabled.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Posologia-Edu/pbl-virtual-sub001/config"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/catalog"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/command"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/query"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/bootstrap"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/auth"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/observability"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/persistence/postgres"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/persistence/redis"
	httpapi "github.com/Posologia-Edu/pbl-virtual-sub001/internal/interface/http"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg, os.Stdout)
	defer log.Sync()

	log.Info("starting badge API server",
		logger.String("version", cfg.App.Version),
		logger.String("store", cfg.Badges.StoreDriver),
	)
	if cfg.Auth.JWTSecret == config.DevJWTSecret {
		log.Warn("JWT_SECRET is unset, using the development secret")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. OBSERVABILITY
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.Observability.ServiceName,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", logger.Err(err))
		}
	}()

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORE
	// ─────────────────────────────────────────────────────────────────────────
	store, err := bootstrap.OpenStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	if store.Conn != nil && cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(store.Conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", logger.Int("applied", len(applied)))
	}

	registry := bootstrap.NewRegistry(cfg.Badges, log)
	warnUncoveredRules(ctx, store, registry, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (rate limiting and pub/sub)
	// ─────────────────────────────────────────────────────────────────────────
	var redisClient *goredis.Client
	if !cfg.Redis.Disabled {
		redisClient, err = redis.NewClient(ctx, bootstrap.RedisConfig(cfg.Redis), log)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
	} else {
		log.Warn("redis disabled: rate limits are per process and events stay local")
	}

	var limiter httpapi.Limiter
	if cfg.RateLimit.Enabled {
		if redisClient != nil {
			limiter = httpapi.NewRedisLimiter(
				redis.NewRateLimiter(redisClient, "compute", cfg.RateLimit.Requests, cfg.RateLimit.Window))
		} else {
			local := httpapi.NewLocalLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
			defer local.Close()
			limiter = local
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENTS
	// ─────────────────────────────────────────────────────────────────────────
	publisher, err := bootstrap.NewPublisher(redisClient, log)
	if err != nil {
		return fmt.Errorf("failed to set up event publisher: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("event bus close failed", logger.Err(err))
		}
	}()

	eventLog := log.With(logger.Component("events"))
	if err := publisher.Bus.Subscribe(shared.EventBadgeAwarded, func(_ context.Context, e shared.Event) error {
		eventLog.Info("badge awarded",
			logger.String("event_id", e.EventID()),
			logger.F("payload", e.Payload()),
		)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to subscribe to badge events: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION HANDLERS AND AUTH
	// ─────────────────────────────────────────────────────────────────────────
	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return fmt.Errorf("failed to set up token verification: %w", err)
	}
	adminKey, err := auth.NewAdminKey(cfg.Auth.AdminKeyHash)
	if err != nil {
		return fmt.Errorf("failed to load admin key: %w", err)
	}
	if !adminKey.Enabled() {
		log.Info("ADMIN_API_KEY_HASH is unset, admin routes are disabled")
	}

	health := httpapi.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("store", httpapi.PingCheck(store))
	if redisClient != nil {
		health.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	deps := httpapi.Dependencies{
		ComputeBadges: command.NewComputeBadgesHandler(
			store,
			badge.NewEvaluator(registry),
			publisher,
			metrics,
			log,
			command.ComputeBadgesConfig{Timeout: cfg.Badges.ComputeTimeout},
		),
		UpsertDefinition: command.NewUpsertDefinitionHandler(store, publisher, log),
		GetUserBadges:    query.NewGetUserBadgesHandler(store),
		ListDefinitions:  query.NewListDefinitionsHandler(store),
		Tokens:           tokens,
		AdminKey:         adminKey,
		ComputeLimiter:   limiter,
		Metrics:          metrics,
		HealthChecker:    health,
		Logger:           log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.ServiceName = cfg.Observability.ServiceName
	httpCfg.Version = cfg.App.Version

	server := httpapi.NewServer(httpCfg, deps)
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return errors.New("http server stopped unexpectedly")
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	log.Info("shutdown completed")
	return nil
}

// warnUncoveredRules logs registered rules that have no definition. They are
// skipped by every computation until an administrator adds one.
func warnUncoveredRules(ctx context.Context, store badge.DefinitionRepository, registry *badge.Registry, log *logger.Logger) {
	defs, err := store.ListDefinitions(ctx)
	if err != nil {
		log.Warn("could not check badge catalog", logger.Err(err))
		return
	}
	if missing := catalog.Coverage(registry, defs); len(missing) > 0 {
		log.Warn("rules without a badge definition", logger.Strings("slugs", missing))
	}
}
