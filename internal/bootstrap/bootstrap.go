// Package bootstrap turns configuration into the long-lived components shared
// by the API server and badgectl: logger, store, rule registry, publisher.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Posologia-Edu/pbl-virtual-sub001/config"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/catalog"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/messaging"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/persistence/memory"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/persistence/postgres"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/persistence/redis"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/logger"
)

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config, out io.Writer) *logger.Logger {
	return logger.New(logger.Options{
		Output:    out,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddCaller: cfg.IsDevelopment(),
	}).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// PostgresConfig maps the database settings onto the connection config.
func PostgresConfig(cfg config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = cfg.URL
	if cfg.MaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pc.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	pc.QueryTimeout = cfg.QueryTimeout
	if cfg.ConnectAttempts > 0 {
		pc.ConnectAttempts = cfg.ConnectAttempts
	}
	return pc
}

// RedisConfig maps the Redis settings onto the client config.
func RedisConfig(cfg config.RedisConfig) redis.Config {
	return redis.Config{
		URL:          cfg.URL,
		Host:         cfg.Host,
		Port:         cfg.Port,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// NewRegistry returns the built-in rules minus the disabled ones.
func NewRegistry(cfg config.BadgesConfig, log *logger.Logger) *badge.Registry {
	reg := badge.DefaultRegistry()
	if len(cfg.DisabledRules) == 0 {
		return reg
	}

	unknown := reg.Disable(cfg.DisabledRules...)
	if len(unknown) > 0 {
		log.Warn("ignoring unknown rules in BADGES_DISABLED_RULES", logger.Strings("slugs", unknown))
	}
	log.Info("badge rules disabled",
		logger.Strings("slugs", cfg.DisabledRules),
		logger.Int("active_rules", reg.Len()),
	)
	return reg
}

// Store is a badge.Store plus the connection it owns.
type Store struct {
	badge.Store

	// Driver is the configured store driver.
	Driver string

	// Conn is set for the postgres driver only.
	Conn *postgres.Connection
}

// Close releases the underlying connection, if any.
func (s *Store) Close() {
	if s.Conn != nil {
		s.Conn.Close()
	}
}

// OpenStore connects the configured store. The memory store is seeded with
// the embedded catalog.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Store, error) {
	switch cfg.Badges.StoreDriver {
	case config.StoreDriverMemory:
		store := memory.NewStore()
		store.SeedDefinitions(catalog.MustDefault()...)
		log.Warn("using in-memory store, data is lost on exit")
		return &Store{Store: store, Driver: config.StoreDriverMemory}, nil

	case config.StoreDriverPostgres:
		conn, err := postgres.NewConnection(ctx, PostgresConfig(cfg.Database), log)
		if err != nil {
			return nil, err
		}
		return &Store{Store: postgres.NewStore(conn), Driver: config.StoreDriverPostgres, Conn: conn}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Badges.StoreDriver)
	}
}

// Publisher is the event pipeline: Redis pub/sub when available, always
// followed by the in-process bus.
type Publisher struct {
	shared.EventPublisher
	Bus *messaging.InMemoryEventBus
}

// Close drains the in-process bus.
func (p *Publisher) Close() error {
	return p.Bus.Close()
}

// NewPublisher wires the event pipeline. client may be nil.
func NewPublisher(client *goredis.Client, log *logger.Logger) (*Publisher, error) {
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)

	if client == nil {
		return &Publisher{EventPublisher: bus, Bus: bus}, nil
	}

	pub, err := messaging.NewRedisPublisher(messaging.RedisPublisherConfig{
		Client:  client,
		Channel: redis.ChannelBadges,
		Local:   bus,
		Logger:  log,
	})
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return &Publisher{EventPublisher: pub, Bus: bus}, nil
}
