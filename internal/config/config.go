// Package config loads the checker configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding file values.
const (
	EnvCheckVATEndpoint = "VIES_CHECK_VAT_ENDPOINT"
	EnvStatusEndpoint   = "VIES_STATUS_ENDPOINT"
	EnvRedisURL         = "VIES_REDIS_URL"
	EnvLogLevel         = "VIES_LOG_LEVEL"
	EnvDatabasePath     = "VIES_DATABASE_PATH"
)

// Report formats.
const (
	FormatText = "txt"
	FormatCSV  = "csv"
)

type Config struct {
	VIES struct {
		CheckVATEndpoint string        `yaml:"check_vat_endpoint"`
		StatusEndpoint   string        `yaml:"status_endpoint"`
		UserAgent        string        `yaml:"user_agent"`
		RequestTimeout   time.Duration `yaml:"request_timeout"`
	} `yaml:"vies"`

	Application struct {
		Name          string `yaml:"name"`
		DataSourceDir string `yaml:"data_source_dir"`
		DataDestDir   string `yaml:"data_dest_dir"`
		ReportFormat  string `yaml:"report_format"`
	} `yaml:"application"`

	Throttle struct {
		StandardDelay time.Duration `yaml:"standard_delay"`
		LongDelay     time.Duration `yaml:"long_delay"`
	} `yaml:"throttle"`

	Database struct {
		StoreActive bool   `yaml:"store_active"`
		Path        string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Addr         string        `yaml:"addr"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		CacheEnabled bool          `yaml:"cache_enabled"`
		CacheTTL     time.Duration `yaml:"cache_ttl"`
		QuotaEnabled bool          `yaml:"quota_enabled"`
		QuotaWindow  time.Duration `yaml:"quota_window"`
	} `yaml:"redis"`

	Logging struct {
		Level    string `yaml:"level"`
		File     string `yaml:"file"`
		Truncate bool   `yaml:"truncate"`
		Pretty   bool   `yaml:"pretty"`
	} `yaml:"logging"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads path, applies defaults for unset values and environment
// overrides, then validates the result.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	setString(&c.VIES.CheckVATEndpoint, "https://ec.europa.eu/taxation_customs/vies/rest-api/check-vat-number")
	setString(&c.VIES.StatusEndpoint, "https://ec.europa.eu/taxation_customs/vies/rest-api/check-status")
	setString(&c.VIES.UserAgent, "vies-vat-checker/0.1.0")
	setDuration(&c.VIES.RequestTimeout, 30*time.Second)

	setString(&c.Application.Name, "VIES VAT CONTROLLER")
	setString(&c.Application.DataSourceDir, "data/in")
	setString(&c.Application.DataDestDir, "data/out")
	setString(&c.Application.ReportFormat, FormatText)

	setDuration(&c.Throttle.StandardDelay, 5*time.Second)
	setDuration(&c.Throttle.LongDelay, 10*time.Second)

	setString(&c.Database.Path, "data/vies.db")

	setString(&c.Redis.Addr, "localhost:6379")
	setDuration(&c.Redis.CacheTTL, 24*time.Hour)
	setDuration(&c.Redis.QuotaWindow, 10*time.Minute)

	setString(&c.Logging.Level, "info")
}

func (c *Config) applyEnv() {
	c.VIES.CheckVATEndpoint = getEnv(EnvCheckVATEndpoint, c.VIES.CheckVATEndpoint)
	c.VIES.StatusEndpoint = getEnv(EnvStatusEndpoint, c.VIES.StatusEndpoint)
	c.Redis.Addr = getEnv(EnvRedisURL, c.Redis.Addr)
	c.Logging.Level = getEnv(EnvLogLevel, c.Logging.Level)
	c.Database.Path = getEnv(EnvDatabasePath, c.Database.Path)
}

// RedisEnabled reports whether any Redis backed feature is switched on.
func (c Config) RedisEnabled() bool {
	return c.Redis.CacheEnabled || c.Redis.QuotaEnabled
}

func setString(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
