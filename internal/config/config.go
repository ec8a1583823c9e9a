package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string        `yaml:"port"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	LogLevel       slog.Level    `yaml:"-"`
	LogLevelName   string        `yaml:"log_level"`
	SinkURL        string        `yaml:"sink_url"`
	SinkSecret     string        `yaml:"sink_secret"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	MaxDatasets    int           `yaml:"max_datasets"`
	FetchRetries   int           `yaml:"fetch_retries"`

	// RemoteIngest enables POST /datasets?url=. RemoteHosts, when set, is the
	// only hosts (and their subdomains) it may download from.
	RemoteIngest bool     `yaml:"remote_ingest"`
	RemoteHosts  []string `yaml:"remote_ingest_hosts"`

	// Engine
	Workers           int    `yaml:"engine_workers"`
	GlobalDenominator string `yaml:"global_conversion_denominator"`

	// OffersFile overrides the built-in offer catalogue.
	OffersFile string `yaml:"offers_file"`
}

func Default() Config {
	return Config{
		Port:           "8080",
		HTTPTimeout:    15 * time.Second,
		LogLevel:       slog.LevelInfo,
		LogLevelName:   "info",
		MaxUploadBytes: 32 << 20,
		MaxDatasets:    64,
		FetchRetries:   2,
		Workers:        1,
	}
}

// FromEnv builds the configuration from defaults, the YAML file named by
// CONFIG_FILE when set, then environment variables.
func FromEnv() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// Load reads a YAML file on top of the defaults. Environment is not applied.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.LogLevel = parseLevel(cfg.LogLevelName)
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			c.HTTPTimeout = d
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevelName = v
		c.LogLevel = parseLevel(v)
	}
	c.Port = envOr("PORT", c.Port)
	c.SinkURL = envOr("SINK_URL", c.SinkURL)
	c.SinkSecret = envOr("SINK_SECRET", c.SinkSecret)
	c.OffersFile = envOr("OFFERS_FILE", c.OffersFile)
	c.GlobalDenominator = envOr("GLOBAL_CONVERSION_DENOMINATOR", c.GlobalDenominator)
	if n, err := strconv.ParseInt(os.Getenv("MAX_UPLOAD_BYTES"), 10, 64); err == nil && n > 0 {
		c.MaxUploadBytes = n
	}
	if n, err := strconv.Atoi(os.Getenv("MAX_DATASETS")); err == nil {
		c.MaxDatasets = n
	}
	if n, err := strconv.Atoi(os.Getenv("ENGINE_WORKERS")); err == nil && n > 0 {
		c.Workers = n
	}
	if n, err := strconv.Atoi(os.Getenv("FETCH_RETRIES")); err == nil && n >= 0 {
		c.FetchRetries = n
	}
	if b, err := strconv.ParseBool(os.Getenv("REMOTE_INGEST")); err == nil {
		c.RemoteIngest = b
	}
	if v := os.Getenv("REMOTE_INGEST_HOSTS"); v != "" {
		c.RemoteHosts = strings.Split(v, ",")
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
