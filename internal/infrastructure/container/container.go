package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"fxhub/internal/application/port"
	"fxhub/internal/application/service"
	archivebus "fxhub/internal/infrastructure/bus/archive"
	compositebus "fxhub/internal/infrastructure/bus/composite"
	kafkabus "fxhub/internal/infrastructure/bus/kafka"
	redisbus "fxhub/internal/infrastructure/bus/redis"
	memorycache "fxhub/internal/infrastructure/cache/memory"
	rediscache "fxhub/internal/infrastructure/cache/redis"
	"fxhub/internal/infrastructure/config"
	"fxhub/internal/infrastructure/connector"
	"fxhub/internal/infrastructure/metrics"
	compositerepo "fxhub/internal/infrastructure/storage/composite"
	postgresrepo "fxhub/internal/infrastructure/storage/postgres"
	sqliterepo "fxhub/internal/infrastructure/storage/sqlite"
	"fxhub/internal/interfaces/console"
	"fxhub/internal/interfaces/wsfanout"
)

// Container holds every dependency of the hub process.
type Container struct {
	cfg         *config.Config
	redisClient *redis.Client
	cache       port.RateCache
	repo        port.Repository
	hub         *wsfanout.Hub
	publisher   *compositebus.Publisher
	metrics     *metrics.Metrics
	connectors  []port.Connector
	coordinator *service.Coordinator
	closeOnce   sync.Once
	closerChain []func() error
}

// Option customizes construction; used by tests.
type Option func(*Container)

// WithRedisClient injects an existing client instead of dialing cfg.Redis.
func WithRedisClient(rdb *redis.Client) Option {
	return func(c *Container) { c.redisClient = rdb }
}

// New builds the container. On error every resource acquired so far is released.
func New(cfg *config.Config, opts ...Option) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}
	for _, o := range opts {
		o(c)
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"redis", c.initRedis},
		{"cache", c.initCache},
		{"archive", c.initArchive},
		{"metrics", c.initMetrics},
		{"publishers", c.initPublishers},
		{"coordinator", c.initCoordinator},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("%s init failed: %w", s.name, err)
		}
	}
	return c, nil
}

func (c *Container) initRedis() error {
	if !c.cfg.UsesRedis() || c.redisClient != nil {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.redisClient = rdb
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", c.cfg.Redis.Addr).
		Int("db", c.cfg.Redis.DB).
		Msg("redis initialized")
	return nil
}

func (c *Container) initCache() error {
	ttl := time.Duration(c.cfg.Cache.TTLSeconds) * time.Second
	switch c.cfg.Cache.Backend {
	case config.CacheRedis:
		c.cache = rediscache.New(c.redisClient, c.cfg.Redis.Prefix, ttl)
	default:
		c.cache = memorycache.New(ttl)
	}
	log.Info().Str("backend", c.cfg.Cache.Backend).Dur("ttl", ttl).Msg("rate cache initialized")
	return nil
}

func (c *Container) initArchive() error {
	var repos []port.Repository

	if c.cfg.Archive.SQLite.Enabled {
		repo, err := sqliterepo.New(c.cfg.Archive.SQLite.Path)
		if err != nil {
			return err
		}
		repos = append(repos, repo)
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing sqlite connection")
			return repo.Close()
		})
		log.Info().Str("path", c.cfg.Archive.SQLite.Path).Msg("sqlite initialized")
	}

	if c.cfg.Archive.Postgres.Enabled {
		repo, err := postgresrepo.New(c.cfg.Archive.Postgres.DSN)
		if err != nil {
			return err
		}
		repos = append(repos, repo)
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return repo.Close()
		})
		log.Info().Msg("postgres initialized")
	}

	if len(repos) > 0 {
		c.repo = compositerepo.New(repos...)
	}
	return nil
}

func (c *Container) initMetrics() error {
	c.metrics = metrics.New()
	return nil
}

func (c *Container) initPublishers() error {
	var sinks []port.Publisher

	if c.cfg.Bus.Console {
		sinks = append(sinks, console.NewPublisher(nil))
	}
	if c.cfg.Bus.WebSocket {
		c.hub = wsfanout.NewHub()
		sinks = append(sinks, c.hub)
	}
	if c.cfg.Bus.Redis.Enabled {
		sinks = append(sinks, redisbus.New(c.redisClient, c.cfg.Redis.ChannelRaw, c.cfg.Redis.ChannelDerived, c.cfg.Redis.Stream))
	}
	if c.cfg.Bus.Kafka.Enabled {
		sinks = append(sinks, kafkabus.New(c.cfg.Bus.Kafka.Brokers, c.cfg.Bus.Kafka.TopicRaw, c.cfg.Bus.Kafka.TopicDerived, kafkabus.BreakerSettings{}))
		log.Info().Strs("brokers", c.cfg.Bus.Kafka.Brokers).Msg("kafka publisher initialized")
	}
	if c.repo != nil {
		sinks = append(sinks, archivebus.New(c.repo))
	}

	c.publisher = compositebus.New(sinks...)
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing publishers")
		return c.publisher.Close()
	})
	if c.publisher.Len() == 0 {
		log.Warn().Msg("no publishers enabled, rates will only be cached")
	}
	return nil
}

func (c *Container) initCoordinator() error {
	formulas := Formulas(c.cfg.Derived)
	if err := service.ValidateFormulas(formulas); err != nil {
		return err
	}

	connectors, err := connector.NewRegistry().Build(c.cfg.Platforms)
	if err != nil {
		return err
	}
	c.connectors = connectors

	policy := service.DefaultReconnectPolicy()
	if n := c.cfg.Reconnect.MaxAttempts; n != nil {
		policy.MaxAttempts = *n
	}
	if ms := c.cfg.Reconnect.InitialMs; ms > 0 {
		policy.Initial = time.Duration(ms) * time.Millisecond
	}
	if ms := c.cfg.Reconnect.MaxMs; ms > 0 {
		policy.Max = time.Duration(ms) * time.Millisecond
	}
	platforms := c.cfg.PlatformNames()

	c.coordinator = service.NewCoordinator(service.CoordinatorDeps{
		Connectors:   connectors,
		Cache:        c.cache,
		Publisher:    c.publisher,
		Calculator:   service.NewCalculator(formulas),
		Validator:    service.NewToleranceValidator(platforms, c.cfg.Tolerance.Percent),
		Platforms:    platforms,
		Symbols:      c.cfg.Symbols.List,
		SnapshotMode: service.SnapshotMode(c.cfg.Tolerance.SnapshotMode),
		Reconnect:    policy,
		Metrics:      c.metrics,
	})
	return nil
}

// Formulas converts the [[derived]] config entries.
func Formulas(derived []config.Derived) []service.Formula {
	out := make([]service.Formula, 0, len(derived))
	for _, d := range derived {
		if d.IsCross() {
			out = append(out, service.Cross(d.Symbol, d.Pivot, d.Leg))
			continue
		}
		src := d.Source
		if src == "" {
			src = d.Symbol
		}
		f := service.Direct(src)
		f.Target = d.Symbol
		out = append(out, f)
	}
	return out
}

func (c *Container) Config() *config.Config { return c.cfg }

func (c *Container) RedisClient() *redis.Client { return c.redisClient }

func (c *Container) Cache() port.RateCache { return c.cache }

// Repository is nil when no archive is enabled.
func (c *Container) Repository() port.Repository { return c.repo }

// Hub is nil unless the websocket bus is enabled.
func (c *Container) Hub() *wsfanout.Hub { return c.hub }

func (c *Container) Publisher() port.Publisher { return c.publisher }

func (c *Container) Metrics() *metrics.Metrics { return c.metrics }

func (c *Container) Connectors() []port.Connector { return c.connectors }

func (c *Container) Coordinator() *service.Coordinator { return c.coordinator }

// Close releases every resource in reverse order of acquisition.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
