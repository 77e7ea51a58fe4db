package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type FetcherConfig struct {
	ConcurrentWorkers int           `yaml:"workers"`
	OwnerUID          int           `yaml:"uid"`
	ListenAddr        string        `yaml:"listen"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	ReplyTimeout      time.Duration `yaml:"reply_timeout"`
	MaxIdleConns      int           `yaml:"max_idle_conns"`
	LogLevel          string        `yaml:"log_level"`
}

// Default returns the built-in configuration. The owning uid defaults to
// the uid of the running process so that chown is a no-op unless configured.
func Default() FetcherConfig {
	return FetcherConfig{
		ConcurrentWorkers: 16,
		OwnerUID:          os.Getuid(),
		ListenAddr:        ":8080",
		HTTPTimeout:       0,
		ReplyTimeout:      10 * time.Minute,
		MaxIdleConns:      100,
		LogLevel:          "info",
	}
}

var Config FetcherConfig = Default()

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	ConcurrentWorkers *int   `yaml:"workers"`
	OwnerUID          *int   `yaml:"uid"`
	ListenAddr        string `yaml:"listen"`
	HTTPTimeout       string `yaml:"http_timeout"`
	ReplyTimeout      string `yaml:"reply_timeout"`
	MaxIdleConns      *int   `yaml:"max_idle_conns"`
	LogLevel          string `yaml:"log_level"`
}

// LoadFromFile reads a YAML file on top of the defaults.
func LoadFromFile(path string) (FetcherConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FetcherConfig{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of the defaults.
func Parse(data []byte) (FetcherConfig, error) {
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return FetcherConfig{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if yc.ConcurrentWorkers != nil {
		cfg.ConcurrentWorkers = *yc.ConcurrentWorkers
	}
	if yc.OwnerUID != nil {
		cfg.OwnerUID = *yc.OwnerUID
	}
	if yc.ListenAddr != "" {
		cfg.ListenAddr = yc.ListenAddr
	}
	if yc.HTTPTimeout != "" {
		d, err := time.ParseDuration(yc.HTTPTimeout)
		if err != nil {
			return FetcherConfig{}, fmt.Errorf("invalid http_timeout: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	if yc.ReplyTimeout != "" {
		d, err := time.ParseDuration(yc.ReplyTimeout)
		if err != nil {
			return FetcherConfig{}, fmt.Errorf("invalid reply_timeout: %w", err)
		}
		cfg.ReplyTimeout = d
	}
	if yc.MaxIdleConns != nil {
		cfg.MaxIdleConns = *yc.MaxIdleConns
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	return cfg, nil
}

// ApplyEnv overrides fields from FETCHER_* environment variables.
func (c *FetcherConfig) ApplyEnv() error {
	if v := os.Getenv("FETCHER_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FETCHER_WORKERS: %w", err)
		}
		c.ConcurrentWorkers = n
	}
	if v := os.Getenv("FETCHER_UID"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FETCHER_UID: %w", err)
		}
		c.OwnerUID = n
	}
	if v := os.Getenv("FETCHER_LISTEN"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("FETCHER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c FetcherConfig) Validate() error {
	if c.ConcurrentWorkers < 1 {
		return errors.New("workers must be at least 1")
	}
	if c.OwnerUID < 0 {
		return errors.New("uid must not be negative")
	}
	if c.HTTPTimeout < 0 || c.ReplyTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Load builds the process configuration: defaults, then the optional
// YAML file, then the environment.
func Load(path string) (FetcherConfig, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = LoadFromFile(path)
		if err != nil {
			return FetcherConfig{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return FetcherConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return FetcherConfig{}, err
	}
	return cfg, nil
}
