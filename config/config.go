// Package config loads service settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrMissingTopic     = errors.New("ntfy.topic is required")
	ErrInvalidBase      = errors.New("ntfy.base must be an http(s) URL")
	ErrInvalidAttempts  = errors.New("ntfy.attempts must be at least 1")
	ErrInvalidRecords   = errors.New("max_records must be at least 1")
	ErrInvalidTimeout   = errors.New("jokes.timeout_sec must be at least 1")
	ErrInvalidInterval  = errors.New("jokes.autofetch_interval_sec must be non-negative")
	ErrInvalidCacheTTL  = errors.New("cache.ttl_sec must be at least 1")
	ErrInvalidLogLevel  = errors.New("log_level must be one of: debug, info, warn, error")
	ErrConflictingStore = errors.New("archive.bucket and archive.local_path are mutually exclusive")
)

// Config is the complete service configuration.
type Config struct {
	Port       string        `yaml:"port"`
	LogLevel   string        `yaml:"log_level"`
	Instance   string        `yaml:"instance"`
	MaxRecords int           `yaml:"max_records"`
	APIKeys    []string      `yaml:"api_keys"`
	Ntfy       NtfyConfig    `yaml:"ntfy"`
	Jokes      JokesConfig   `yaml:"jokes"`
	Archive    ArchiveConfig `yaml:"archive"`
	Cache      CacheConfig   `yaml:"cache"`
}

// NtfyConfig locates the topic backing the store.
type NtfyConfig struct {
	Base       string `yaml:"base"`
	Topic      string `yaml:"topic"`
	Since      string `yaml:"since"`
	Auth       string `yaml:"auth"`
	Attempts   uint   `yaml:"attempts"`
	Optimistic bool   `yaml:"optimistic"`
}

// JokesConfig selects and tunes the upstream joke providers.
type JokesConfig struct {
	Provider             string `yaml:"provider"`
	UserAgent            string `yaml:"user_agent"`
	TimeoutSec           int    `yaml:"timeout_sec"`
	ScrapeURL            string `yaml:"scrape_url"`
	ScrapeSelector       string `yaml:"scrape_selector"`
	AutofetchIntervalSec int    `yaml:"autofetch_interval_sec"`
}

// ArchiveConfig enables the snapshot mirror. Empty means disabled.
type ArchiveConfig struct {
	Bucket          string `yaml:"bucket"`
	LocalPath       string `yaml:"local_path"`
	CredentialsJSON string `yaml:"credentials_json"`
}

// CacheConfig enables the Redis read-through cache. Empty address means disabled.
type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	TTLSec    int    `yaml:"ttl_sec"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:       "8080",
		LogLevel:   "info",
		MaxRecords: 30,
		Ntfy: NtfyConfig{
			Base:     "https://ntfy.sh",
			Topic:    "dadjokes-api",
			Since:    "72h",
			Attempts: 1,
		},
		Jokes: JokesConfig{
			Provider:       "icanhaz",
			UserAgent:      "dadjokes-app/1.0 (eks)",
			TimeoutSec:     8,
			ScrapeURL:      "https://icanhazdadjoke.com/",
			ScrapeSelector: "p.subtitle",
		},
		Cache: CacheConfig{TTLSec: 5},
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// FromEnv builds the configuration used at startup: defaults, then the
// file named by CONFIG_FILE when set, then environment overrides.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path := getenv("CONFIG_FILE"); path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.Ntfy.Base = strings.TrimRight(cfg.Ntfy.Base, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"PORT":                    &c.Port,
		"LOG_LEVEL":               &c.LogLevel,
		"POD_NAME":                &c.Instance,
		"NTFY_BASE":               &c.Ntfy.Base,
		"NTFY_TOPIC":              &c.Ntfy.Topic,
		"NTFY_SINCE":              &c.Ntfy.Since,
		"NTFY_AUTH":               &c.Ntfy.Auth,
		"JOKES_PROVIDER":          &c.Jokes.Provider,
		"JOKES_UA":                &c.Jokes.UserAgent,
		"JOKES_SCRAPE_URL":        &c.Jokes.ScrapeURL,
		"JOKES_SCRAPE_SELECTOR":   &c.Jokes.ScrapeSelector,
		"STORAGE_BUCKET":          &c.Archive.Bucket,
		"LOCAL_STORAGE":           &c.Archive.LocalPath,
		"GOOGLE_CREDENTIALS_JSON": &c.Archive.CredentialsJSON,
		"REDIS_ADDR":              &c.Cache.RedisAddr,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_RECORDS":              &c.MaxRecords,
		"JOKES_TIMEOUT":            &c.Jokes.TimeoutSec,
		"JOKES_AUTOFETCH_INTERVAL": &c.Jokes.AutofetchIntervalSec,
		"CACHE_TTL":                &c.Cache.TTLSec,
	}
	for key, dst := range ints {
		v := getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v := getenv("NTFY_ATTEMPTS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("NTFY_ATTEMPTS: %w", err)
		}
		c.Ntfy.Attempts = uint(n)
	}
	if v := getenv("NTFY_OPTIMISTIC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("NTFY_OPTIMISTIC: %w", err)
		}
		c.Ntfy.Optimistic = b
	}
	if v := getenv("API_KEYS"); v != "" {
		c.APIKeys = nil
		for k := range strings.SplitSeq(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.APIKeys = append(c.APIKeys, k)
			}
		}
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Ntfy.Topic == "" {
		return ErrMissingTopic
	}
	if !strings.HasPrefix(c.Ntfy.Base, "http://") && !strings.HasPrefix(c.Ntfy.Base, "https://") {
		return ErrInvalidBase
	}
	if c.Ntfy.Attempts < 1 {
		return ErrInvalidAttempts
	}
	if c.MaxRecords < 1 {
		return ErrInvalidRecords
	}
	if c.Jokes.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}
	if c.Jokes.AutofetchIntervalSec < 0 {
		return ErrInvalidInterval
	}
	if c.Cache.RedisAddr != "" && c.Cache.TTLSec < 1 {
		return ErrInvalidCacheTTL
	}
	if c.Archive.Bucket != "" && c.Archive.LocalPath != "" {
		return ErrConflictingStore
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

// JokesTimeout returns the provider request timeout.
func (c *Config) JokesTimeout() time.Duration {
	return time.Duration(c.Jokes.TimeoutSec) * time.Second
}

// AutofetchInterval returns the autofetch period; zero disables it.
func (c *Config) AutofetchInterval() time.Duration {
	return time.Duration(c.Jokes.AutofetchIntervalSec) * time.Second
}

// CacheTTL returns the cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSec) * time.Second
}
