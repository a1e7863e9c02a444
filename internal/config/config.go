package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/LJTian/HoopsHub/internal/collector"
)

// ErrHelp is returned by Load when --help was requested and printed.
var ErrHelp = errors.New("help requested")

type Config struct {
	AppPort string `long:"port" env:"APP_PORT" default:"9000" description:"HTTP listen port"`

	PostgresDSN string `long:"postgres-dsn" env:"POSTGRES_DSN" default:"host=localhost user=hoopshub password=hoopshub dbname=hoopshub port=5432 sslmode=disable TimeZone=UTC" description:"Postgres DSN"`
	RedisAddr   string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address, empty disables the cache"`

	CronSpec     string        `long:"cron" env:"CRON_SPEC" default:"@every 3m" description:"Collection schedule"`
	StartupDelay time.Duration `long:"startup-delay" env:"STARTUP_DELAY" default:"15s" description:"Delay before the first scheduled cycle"`

	Budget            time.Duration `long:"budget" env:"COLLECT_BUDGET" default:"45s" description:"Wall-clock budget for one collection cycle"`
	PoliteDelay       time.Duration `long:"polite-delay" env:"POLITE_DELAY" default:"250ms" description:"Pause between sources"`
	MaxItems          int           `long:"max-items" env:"MAX_ITEMS" default:"500" description:"Maximum items kept per cycle"`
	MaxEntriesPerFeed int           `long:"max-entries" env:"MAX_ENTRIES_PER_FEED" default:"100" description:"Entries considered per feed"`

	UserAgent      string        `long:"user-agent" env:"USER_AGENT" description:"User agent for source requests"`
	ConnectTimeout time.Duration `long:"connect-timeout" env:"CONNECT_TIMEOUT" default:"6s" description:"Connect timeout per source"`
	ReadTimeout    time.Duration `long:"read-timeout" env:"READ_TIMEOUT" default:"15s" description:"Read timeout per source"`
	RateLimitPause time.Duration `long:"rate-limit-pause" env:"RATE_LIMIT_PAUSE" default:"1s" description:"Pause after a 429 before moving on"`

	RefreshSecret string `long:"refresh-secret" env:"REFRESH_SECRET" description:"Shared secret for POST /api/v1/refresh, empty disables it"`
	SourcesFile   string `long:"sources" env:"SOURCES_FILE" description:"YAML source catalog, defaults to the built-in one"`

	LogLevel  string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Log format"`
}

// Load reads flags from os.Args with environment fallbacks.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Printf("config loaded: port=%s cron=%q budget=%s sources=%q", cfg.AppPort, cfg.CronSpec, cfg.Budget, cfg.SourcesFile)
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Budget <= 0 {
		return fmt.Errorf("config: budget must be positive, got %s", c.Budget)
	}
	if c.MaxItems <= 0 {
		return fmt.Errorf("config: max-items must be positive, got %d", c.MaxItems)
	}
	if strings.TrimSpace(c.CronSpec) == "" {
		return errors.New("config: empty cron spec")
	}
	return nil
}

// FetcherOptions maps the fetch settings onto the collector.
func (c *Config) FetcherOptions() collector.FetcherOptions {
	return collector.FetcherOptions{
		UserAgent:      c.UserAgent,
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
		RateLimitPause: c.RateLimitPause,
	}
}

// CollectorConfig combines cycle settings with the catalog sources.
func (c *Config) CollectorConfig(sources []collector.Source) collector.Config {
	return collector.Config{
		Sources:           sources,
		Budget:            c.Budget,
		PoliteDelay:       c.PoliteDelay,
		MaxItems:          c.MaxItems,
		MaxEntriesPerFeed: c.MaxEntriesPerFeed,
	}
}

// SetupLogging applies level and format to the standard logrus logger.
func (c *Config) SetupLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("unknown log level %q, using info", c.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
