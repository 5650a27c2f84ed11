package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	Port string `yaml:"port"`

	// Database
	DBDriver string `yaml:"db_driver"` // "sqlite" | "postgres"
	DBPath   string `yaml:"db_path"`   // SQLite path
	DBUrl    string `yaml:"db_url"`    // Postgres DSN

	// Security
	InternalSecret string `yaml:"internal_secret"` // shared secret for agent server → hub ingestion

	// Turn cache
	RedisURL     string        `yaml:"redis_url"`
	TurnCacheTTL time.Duration `yaml:"turn_cache_ttl"`

	// Archive
	Archive ArchiveConfig `yaml:"archive"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" | "text"
}

type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether an object store endpoint is configured.
func (a ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(a.Endpoint) != ""
}

func defaults() *Config {
	return &Config{
		Port:         "8080",
		DBDriver:     "sqlite",
		DBPath:       "./data/threadhub.db",
		TurnCacheTTL: 10 * time.Minute,
		Archive:      ArchiveConfig{Bucket: "threadhub-archive"},
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// Load builds the configuration. Values come from, in increasing priority:
// built-in defaults, the YAML file named by THREADHUB_CONFIG, and the
// environment (a .env file in the working directory is loaded first and
// never overrides variables that are already set).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("THREADHUB_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Port = firstEnv(cfg.Port, "THREADHUB_PORT", "PORT")
	cfg.DBDriver = firstEnv(cfg.DBDriver, "THREADHUB_DB_DRIVER")
	cfg.DBPath = firstEnv(cfg.DBPath, "THREADHUB_DB_PATH")
	cfg.DBUrl = firstEnv(cfg.DBUrl, "THREADHUB_DATABASE_URL", "DATABASE_URL")
	cfg.InternalSecret = firstEnv(cfg.InternalSecret, "THREADHUB_INTERNAL_SECRET")
	cfg.RedisURL = firstEnv(cfg.RedisURL, "THREADHUB_REDIS_URL", "REDIS_URL")
	cfg.TurnCacheTTL = getEnvDuration("THREADHUB_TURN_CACHE_TTL", cfg.TurnCacheTTL)
	cfg.Archive.Endpoint = firstEnv(cfg.Archive.Endpoint, "THREADHUB_ARCHIVE_ENDPOINT")
	cfg.Archive.AccessKey = firstEnv(cfg.Archive.AccessKey, "THREADHUB_ARCHIVE_ACCESS_KEY")
	cfg.Archive.SecretKey = firstEnv(cfg.Archive.SecretKey, "THREADHUB_ARCHIVE_SECRET_KEY")
	cfg.Archive.Bucket = firstEnv(cfg.Archive.Bucket, "THREADHUB_ARCHIVE_BUCKET")
	cfg.Archive.UseSSL = getEnvBool("THREADHUB_ARCHIVE_USE_SSL", cfg.Archive.UseSSL)
	cfg.LogLevel = firstEnv(cfg.LogLevel, "THREADHUB_LOG_LEVEL", "LOG_LEVEL")
	cfg.LogFormat = firstEnv(cfg.LogFormat, "THREADHUB_LOG_FORMAT")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.DBUrl == "" {
			return fmt.Errorf("config: THREADHUB_DATABASE_URL is required for postgres driver")
		}
	default:
		return fmt.Errorf("config: unsupported db driver: %s", c.DBDriver)
	}
	if c.TurnCacheTTL < 0 {
		return fmt.Errorf("config: turn cache ttl must be >= 0")
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// firstEnv returns the first non-empty variable among keys, else fallback.
func firstEnv(fallback string, keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
