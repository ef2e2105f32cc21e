package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"fxhub/internal/domain"
)

const (
	PlatformTCP  = "tcp"
	PlatformREST = "rest"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	SnapshotPrior           = "prior"
	SnapshotIncludeIncoming = "include_incoming"
)

type Config struct {
	App struct {
		LogLevel  string `toml:"log_level"`
		AdminAddr string `toml:"admin_addr"`
	} `toml:"app"`

	Symbols struct {
		List []string `toml:"list"`
	} `toml:"symbols"`

	Platforms []Platform `toml:"platforms"`
	Derived   []Derived  `toml:"derived"`

	Tolerance struct {
		Percent      float64 `toml:"percent"`
		SnapshotMode string  `toml:"snapshot_mode"`
	} `toml:"tolerance"`

	Cache struct {
		Backend    string `toml:"backend"`
		TTLSeconds int    `toml:"ttl_seconds"`
	} `toml:"cache"`

	Reconnect struct {
		MaxAttempts *int `toml:"max_attempts"`
		InitialMs   int  `toml:"initial_ms"`
		MaxMs       int  `toml:"max_ms"`
	} `toml:"reconnect"`

	Redis struct {
		Addr           string `toml:"addr"`
		Password       string `toml:"password"`
		DB             int    `toml:"db"`
		Prefix         string `toml:"prefix"`
		ChannelRaw     string `toml:"channel_raw"`
		ChannelDerived string `toml:"channel_derived"`
		Stream         string `toml:"stream"`
	} `toml:"redis"`

	Bus struct {
		Console   bool `toml:"console"`
		WebSocket bool `toml:"websocket"`
		Redis     struct {
			Enabled bool `toml:"enabled"`
		} `toml:"redis"`
		Kafka struct {
			Enabled      bool     `toml:"enabled"`
			Brokers      []string `toml:"brokers"`
			TopicRaw     string   `toml:"topic_raw"`
			TopicDerived string   `toml:"topic_derived"`
		} `toml:"kafka"`
	} `toml:"bus"`

	Archive struct {
		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`
		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"archive"`

	Simulator Simulator `toml:"simulator"`
}

// Platform is one upstream feed.
type Platform struct {
	Name string `toml:"name"`
	Type string `toml:"type"`

	// tcp
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// rest
	BaseURL        string `toml:"base_url"`
	PollIntervalMs int    `toml:"poll_interval_ms"`
	TimeoutMs      int    `toml:"timeout_ms"`
	Concurrency    int    `toml:"concurrency"`
}

func (p Platform) Addr() string { return fmt.Sprintf("%s:%d", p.Host, p.Port) }

// Derived is one formula table row: either Source (direct) or Pivot and Leg (cross).
type Derived struct {
	Symbol string `toml:"symbol"`
	Source string `toml:"source"`
	Pivot  string `toml:"pivot"`
	Leg    string `toml:"leg"`
}

func (d Derived) IsCross() bool { return d.Pivot != "" || d.Leg != "" }

type Simulator struct {
	IntervalMs int `toml:"interval_ms"`
	TCP        struct {
		Enabled  bool   `toml:"enabled"`
		Addr     string `toml:"addr"`
		Platform string `toml:"platform"`
	} `toml:"tcp"`
	REST struct {
		Enabled        bool    `toml:"enabled"`
		Addr           string  `toml:"addr"`
		Platform       string  `toml:"platform"`
		FluctuationPct float64 `toml:"fluctuation_pct"`
	} `toml:"rest"`
	Rates []SimRate `toml:"rates"`
}

type SimRate struct {
	Name       string  `toml:"name"`
	Bid        float64 `toml:"bid"`
	Ask        float64 `toml:"ask"`
	Volatility float64 `toml:"volatility"`
}

// Load decodes path, then applies defaults, .env / FXHUB_* overrides and
// validation.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	// .env is optional
	_ = godotenv.Load()

	applyDefaults(&cfg)
	applyEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.AdminAddr == "" {
		cfg.App.AdminAddr = ":8090"
	}
	if len(cfg.Symbols.List) == 0 {
		cfg.Symbols.List = []string{"USDTRY", "EURUSD", "GBPUSD"}
	}
	if len(cfg.Derived) == 0 {
		cfg.Derived = []Derived{
			{Symbol: "USDTRY", Source: "USDTRY"},
			{Symbol: "EURTRY", Pivot: "USDTRY", Leg: "EURUSD"},
			{Symbol: "GBPTRY", Pivot: "USDTRY", Leg: "GBPUSD"},
		}
	}
	for i := range cfg.Platforms {
		p := &cfg.Platforms[i]
		if p.Type == "" {
			p.Type = PlatformTCP
		}
		if p.PollIntervalMs <= 0 {
			p.PollIntervalMs = 5000
		}
		if p.TimeoutMs <= 0 {
			p.TimeoutMs = 3000
		}
		if p.Concurrency <= 0 {
			p.Concurrency = 8
		}
	}
	if cfg.Tolerance.Percent <= 0 {
		cfg.Tolerance.Percent = 1.0
	}
	if cfg.Tolerance.SnapshotMode == "" {
		cfg.Tolerance.SnapshotMode = SnapshotPrior
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheMemory
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 3600
	}
	if cfg.Reconnect.MaxAttempts == nil {
		n := 5
		cfg.Reconnect.MaxAttempts = &n
	}
	if cfg.Reconnect.InitialMs <= 0 {
		cfg.Reconnect.InitialMs = 500
	}
	if cfg.Reconnect.MaxMs <= 0 {
		cfg.Reconnect.MaxMs = 10000
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "fxhub"
	}
	if cfg.Redis.ChannelRaw == "" {
		cfg.Redis.ChannelRaw = "raw-rates"
	}
	if cfg.Redis.ChannelDerived == "" {
		cfg.Redis.ChannelDerived = "calculated-rates"
	}
	if cfg.Bus.Kafka.TopicRaw == "" {
		cfg.Bus.Kafka.TopicRaw = "raw-rates"
	}
	if cfg.Bus.Kafka.TopicDerived == "" {
		cfg.Bus.Kafka.TopicDerived = "calculated-rates"
	}
	if cfg.Archive.SQLite.Path == "" {
		cfg.Archive.SQLite.Path = "data/fxhub.db"
	}

	sim := &cfg.Simulator
	if sim.IntervalMs <= 0 {
		sim.IntervalMs = 1000
	}
	if sim.TCP.Addr == "" {
		sim.TCP.Addr = ":8081"
	}
	if sim.TCP.Platform == "" {
		sim.TCP.Platform = "PF1"
	}
	if sim.REST.Addr == "" {
		sim.REST.Addr = ":8080"
	}
	if sim.REST.Platform == "" {
		sim.REST.Platform = "PF2"
	}
	if sim.REST.FluctuationPct <= 0 {
		sim.REST.FluctuationPct = 0.1
	}
	if len(sim.Rates) == 0 {
		sim.Rates = []SimRate{
			{Name: "USDTRY", Bid: 34.80, Ask: 35.10, Volatility: 0.001},
			{Name: "EURUSD", Bid: 1.0370, Ask: 1.0400, Volatility: 0.0005},
			{Name: "GBPUSD", Bid: 1.2900, Ask: 1.2930, Volatility: 0.0005},
		}
	}
}

// applyEnv lets FXHUB_* variables override addresses and secrets.
func applyEnv(cfg *Config) {
	if v := os.Getenv("FXHUB_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("FXHUB_ADMIN_ADDR"); v != "" {
		cfg.App.AdminAddr = v
	}
	if v := os.Getenv("FXHUB_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FXHUB_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FXHUB_KAFKA_BROKERS"); v != "" {
		cfg.Bus.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("FXHUB_POSTGRES_DSN"); v != "" {
		cfg.Archive.Postgres.DSN = v
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.List = domain.NormalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		return errors.New("symbols.list is empty")
	}

	if len(cfg.Platforms) == 0 {
		return errors.New("no platforms configured")
	}
	seen := map[string]struct{}{}
	for i := range cfg.Platforms {
		p := &cfg.Platforms[i]
		p.Name = strings.ToUpper(strings.TrimSpace(p.Name))
		if p.Name == "" {
			return fmt.Errorf("platforms[%d].name empty", i)
		}
		if strings.Contains(p.Name, "_") {
			return fmt.Errorf("platform %s: name must not contain '_'", p.Name)
		}
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("platform %s configured twice", p.Name)
		}
		seen[p.Name] = struct{}{}

		switch p.Type {
		case PlatformTCP:
			if strings.TrimSpace(p.Host) == "" || p.Port <= 0 {
				return fmt.Errorf("platform %s: tcp needs host and port", p.Name)
			}
		case PlatformREST:
			if strings.TrimSpace(p.BaseURL) == "" {
				return fmt.Errorf("platform %s: rest needs base_url", p.Name)
			}
		default:
			return fmt.Errorf("platform %s: unknown type %q", p.Name, p.Type)
		}
	}

	for i := range cfg.Derived {
		d := &cfg.Derived[i]
		d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
		d.Source = strings.ToUpper(strings.TrimSpace(d.Source))
		d.Pivot = strings.ToUpper(strings.TrimSpace(d.Pivot))
		d.Leg = strings.ToUpper(strings.TrimSpace(d.Leg))
		if d.Symbol == "" {
			return fmt.Errorf("derived[%d].symbol empty", i)
		}
		if d.IsCross() {
			if d.Pivot == "" || d.Leg == "" {
				return fmt.Errorf("derived %s: cross needs pivot and leg", d.Symbol)
			}
		} else if d.Source == "" {
			d.Source = d.Symbol
		}
	}

	switch cfg.Tolerance.SnapshotMode {
	case SnapshotPrior, SnapshotIncludeIncoming:
	default:
		return fmt.Errorf("tolerance.snapshot_mode %q invalid", cfg.Tolerance.SnapshotMode)
	}
	switch cfg.Cache.Backend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("cache.backend %q invalid", cfg.Cache.Backend)
	}
	if *cfg.Reconnect.MaxAttempts < 0 {
		return errors.New("reconnect.max_attempts negative")
	}
	if cfg.Bus.Kafka.Enabled && len(cfg.Bus.Kafka.Brokers) == 0 {
		return errors.New("bus.kafka.brokers empty but enabled")
	}
	if cfg.Archive.Postgres.Enabled && strings.TrimSpace(cfg.Archive.Postgres.DSN) == "" {
		return errors.New("archive.postgres.dsn empty but enabled")
	}
	return nil
}

// PlatformNames returns the configured platform names in order.
func (c *Config) PlatformNames() []string {
	out := make([]string, 0, len(c.Platforms))
	for _, p := range c.Platforms {
		out = append(out, p.Name)
	}
	return out
}

func (c *Config) UsesRedis() bool {
	return c.Cache.Backend == CacheRedis || c.Bus.Redis.Enabled
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
