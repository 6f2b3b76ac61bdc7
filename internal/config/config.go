// Package config loads crawl settings from a YAML file, LEADCRAWL_ environment
// variables and built-in defaults, in increasing order of precedence below
// CLI flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dtnitsch/lead-crawler/internal/common"
	"github.com/spf13/viper"
)

const EnvPrefix = "LEADCRAWL"

var DefaultSeeds = []string{
	"https://www.realtor.com/realestateandhomes-search/San-Francisco_CA",
	"https://www.realtor.com/realestateandhomes-search/Los-Angeles_CA",
	"https://www.realtor.com/realestateandhomes-search/New-York_NY",
}

type Config struct {
	Seeds              []string     `mapstructure:"seeds"`
	PerSeedLimit       int          `mapstructure:"per_seed_limit"`
	MaxTotal           int          `mapstructure:"max_total"`
	Concurrency        int          `mapstructure:"concurrency"`
	FetchTimeoutMS     int          `mapstructure:"fetch_timeout_ms"`
	MaxRetries         int          `mapstructure:"max_retries"`
	BackoffBaseSeconds float64      `mapstructure:"backoff_base_seconds"`
	PolitenessMinMS    int          `mapstructure:"politeness_delay_min_ms"`
	PolitenessMaxMS    int          `mapstructure:"politeness_delay_max_ms"`
	RequestsPerSecond  float64      `mapstructure:"requests_per_second"`
	DetailPatterns     []string     `mapstructure:"detail_patterns"`
	Selectors          string       `mapstructure:"selectors"`
	KeepEmptyRecords   bool         `mapstructure:"keep_empty_records"`
	Debug              bool         `mapstructure:"debug"`
	LogLevel           string       `mapstructure:"log_level"`
	LogType            string       `mapstructure:"log_type"`
	LogFile            string       `mapstructure:"log_file"`
	MetricsAddr        string       `mapstructure:"metrics_addr"`
	Cache              *CacheConfig `mapstructure:"cache"`
	Store              *StoreConfig `mapstructure:"store"`
}

type CacheConfig struct {
	Dir     string        `mapstructure:"dir"`
	TTL     time.Duration `mapstructure:"ttl"`
	Servers []string      `mapstructure:"servers"`
}

type StoreConfig struct {
	// Driver is sqlite, postgres or none.
	Driver     string `mapstructure:"driver"`
	DSN        string `mapstructure:"dsn"`
	NaturalKey string `mapstructure:"natural_key"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("seeds", DefaultSeeds)
	v.SetDefault("per_seed_limit", 6)
	v.SetDefault("max_total", 12)
	v.SetDefault("concurrency", 3)
	v.SetDefault("fetch_timeout_ms", 15000)
	v.SetDefault("max_retries", 5)
	v.SetDefault("backoff_base_seconds", 3.0)
	v.SetDefault("politeness_delay_min_ms", 1000)
	v.SetDefault("politeness_delay_max_ms", 3000)
	v.SetDefault("requests_per_second", 0)
	v.SetDefault("detail_patterns", []string{})
	v.SetDefault("selectors", "")
	v.SetDefault("keep_empty_records", true)
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_type", "text")
	v.SetDefault("log_file", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.servers", []string{})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.natural_key", "email")
}

// Load reads path (optional; "" searches ./config.yaml) and overlays the
// environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate sanitizes the seeds and rejects settings a run cannot start with.
func (c *Config) Validate() error {
	seeds, invalid := common.SanitizeAndValidateURLs(c.Seeds)
	if len(invalid) > 0 {
		return fmt.Errorf("invalid seed URLs: %s", strings.Join(invalid, ", "))
	}
	if len(seeds) == 0 {
		return errors.New("at least one seed URL is required")
	}
	c.Seeds = seeds

	switch {
	case c.MaxTotal <= 0:
		return fmt.Errorf("max_total must be positive, got %d", c.MaxTotal)
	case c.Concurrency <= 0:
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	case c.PerSeedLimit <= 0:
		return fmt.Errorf("per_seed_limit must be positive, got %d", c.PerSeedLimit)
	case c.FetchTimeoutMS <= 0:
		return fmt.Errorf("fetch_timeout_ms must be positive, got %d", c.FetchTimeoutMS)
	case c.MaxRetries <= 0:
		return fmt.Errorf("max_retries must be positive, got %d", c.MaxRetries)
	case c.BackoffBaseSeconds < 0:
		return fmt.Errorf("backoff_base_seconds must not be negative, got %g", c.BackoffBaseSeconds)
	case c.PolitenessMinMS < 0 || c.PolitenessMaxMS < c.PolitenessMinMS:
		return fmt.Errorf("politeness delay range [%d, %d]ms is invalid", c.PolitenessMinMS, c.PolitenessMaxMS)
	case c.RequestsPerSecond < 0:
		return fmt.Errorf("requests_per_second must not be negative, got %g", c.RequestsPerSecond)
	}

	switch c.LogType {
	case "text", "json":
	default:
		return fmt.Errorf("log_type must be text or json, got %q", c.LogType)
	}
	if c.Store != nil {
		switch c.Store.Driver {
		case "sqlite", "postgres", "none", "":
		default:
			return fmt.Errorf("unknown store driver: %s", c.Store.Driver)
		}
		if c.Store.Driver == "postgres" && c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	}
	return nil
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds * float64(time.Second))
}

func (c *Config) PolitenessDelay() (time.Duration, time.Duration) {
	return time.Duration(c.PolitenessMinMS) * time.Millisecond, time.Duration(c.PolitenessMaxMS) * time.Millisecond
}
