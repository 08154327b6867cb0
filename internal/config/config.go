// Package config loads the collector configuration from config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile    = "config.yaml"
	DefaultJournalPath   = ".tgcollect/journal.db"
	DefaultMediaDir      = "media"
	DefaultQueueName     = "filter"
	DefaultMaxResults    = 1
	DefaultCommand       = "snscrape"
	DefaultSweepInterval = 600 * time.Second
	DefaultAttempts      = 3
	DefaultRetryDelay    = 2 * time.Second
	DefaultDownloadDelay = 1 * time.Second
	DefaultHTTPTimeout   = 10 * time.Second
)

// Providers a snapshot source can be built from.
const (
	ProviderExec = "exec"
	ProviderRSS  = "rss"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Environment   string         `yaml:"environment"`
	Channels      []string       `yaml:"channels"`
	Snapshot      SnapshotConfig `yaml:"snapshot"`
	Scraper       ScraperConfig  `yaml:"scraper"`
	Queue         QueueConfig    `yaml:"queue"`
	Journal       JournalConfig  `yaml:"journal"`
	Media         MediaConfig    `yaml:"media"`
	Services      ServicesConfig `yaml:"services"`
	Logging       LoggingConfig  `yaml:"logging"`
	SweepInterval Duration       `yaml:"sweep_interval"`
}

type SnapshotConfig struct {
	Provider    string `yaml:"provider"`
	Command     string `yaml:"command"`
	MaxResults  int    `yaml:"max_results"`
	RSSTemplate string `yaml:"rss_template"`
}

type ScraperConfig struct {
	Attempts      int      `yaml:"attempts"`
	RetryDelay    Duration `yaml:"retry_delay"`
	DownloadDelay Duration `yaml:"download_delay"`
	Timeout       Duration `yaml:"timeout"`
}

type QueueConfig struct {
	Name string `yaml:"name"`
	DB   int    `yaml:"db"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

type MediaConfig struct {
	Dir string `yaml:"dir"`
}

// ServicesConfig overrides the environment-derived service endpoints.
type ServicesConfig struct {
	StoreURL  string `yaml:"store_url"`
	RedisAddr string `yaml:"redis_addr"`
	LokiURL   string `yaml:"loki_url"`
}

type LoggingConfig struct {
	Loki bool `yaml:"loki"`
}

// Load reads the config file at path, applies defaults, and validates.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = EnvLocal
	}
	if cfg.Snapshot.Provider == "" {
		cfg.Snapshot.Provider = ProviderExec
	}
	if cfg.Snapshot.Command == "" {
		cfg.Snapshot.Command = DefaultCommand
	}
	if cfg.Snapshot.MaxResults == 0 {
		cfg.Snapshot.MaxResults = DefaultMaxResults
	}
	if cfg.Scraper.Attempts == 0 {
		cfg.Scraper.Attempts = DefaultAttempts
	}
	if cfg.Scraper.RetryDelay.Duration == 0 {
		cfg.Scraper.RetryDelay.Duration = DefaultRetryDelay
	}
	if cfg.Scraper.DownloadDelay.Duration == 0 {
		cfg.Scraper.DownloadDelay.Duration = DefaultDownloadDelay
	}
	if cfg.Scraper.Timeout.Duration == 0 {
		cfg.Scraper.Timeout.Duration = DefaultHTTPTimeout
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = DefaultQueueName
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath
	}
	if cfg.Media.Dir == "" {
		cfg.Media.Dir = DefaultMediaDir
	}
	if cfg.SweepInterval.Duration == 0 {
		cfg.SweepInterval.Duration = DefaultSweepInterval
	}
}

func validate(cfg *Config) error {
	if _, ok := serviceURLs[cfg.Environment]; !ok {
		return fmt.Errorf("environment: unknown environment %q (want %s or %s)", cfg.Environment, EnvLocal, EnvProduction)
	}

	if len(cfg.Channels) == 0 {
		return errors.New("channels: at least one channel must be configured")
	}

	switch cfg.Snapshot.Provider {
	case ProviderExec:
		if strings.TrimSpace(cfg.Snapshot.Command) == "" {
			return errors.New("snapshot.command: required for exec provider")
		}
	case ProviderRSS:
		if !strings.Contains(cfg.Snapshot.RSSTemplate, "%s") {
			return errors.New("snapshot.rss_template: required for rss provider, with a %s placeholder")
		}
	default:
		return fmt.Errorf("snapshot.provider: unknown provider %q (want %s or %s)", cfg.Snapshot.Provider, ProviderExec, ProviderRSS)
	}

	if cfg.Snapshot.MaxResults < 1 {
		return errors.New("snapshot.max_results: must be at least 1")
	}
	if cfg.Scraper.Attempts < 1 {
		return errors.New("scraper.attempts: must be at least 1")
	}
	if cfg.SweepInterval.Duration < time.Second {
		return errors.New("sweep_interval: must be at least 1s")
	}

	return nil
}
