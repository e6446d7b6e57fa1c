package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds environment-based settings
type Config struct {
	Environment    string
	ServerAddress  string
	DatabaseURL    string
	MigrationsPath string
	JWTSecret      string
	Timezone       string

	Redis RedisConfig
	MQTT  MQTTConfig
	Log   LogConfig
	Sync  SyncConfig
	Jobs  JobsConfig
}

type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
}

// Enabled is false when no address is configured; the marker cache is then skipped.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

type MQTTConfig struct {
	BrokerURL string
	ClientID  string
}

func (m MQTTConfig) Enabled() bool {
	return m.BrokerURL != ""
}

type LogConfig struct {
	Level  string
	Format string
}

// SyncConfig tunes the poll path.
type SyncConfig struct {
	GraceWindow     time.Duration
	MarkerCacheTTL  time.Duration
	CatalogCacheTTL time.Duration
	EnrichTimeout   time.Duration
}

// JobsConfig drives the log retention janitor.
type JobsConfig struct {
	LogRetention time.Duration
	Schedule     string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Environment:    v.GetString("APP_ENV"),
		ServerAddress:  v.GetString("SERVER_ADDRESS"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		MigrationsPath: v.GetString("MIGRATIONS_PATH"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		Timezone:       v.GetString("TIMEZONE"),
		Redis: RedisConfig{
			Address:  v.GetString("REDIS_ADDRESS"),
			Username: v.GetString("REDIS_USERNAME"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MQTT: MQTTConfig{
			BrokerURL: v.GetString("MQTT_BROKER_URL"),
			ClientID:  v.GetString("MQTT_CLIENT_ID"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Sync: SyncConfig{
			GraceWindow:     parseDuration(v.GetString("SYNC_GRACE_WINDOW"), 15*time.Minute),
			MarkerCacheTTL:  parseDuration(v.GetString("MARKER_CACHE_TTL"), 30*time.Second),
			CatalogCacheTTL: parseDuration(v.GetString("CATALOG_CACHE_TTL"), 5*time.Minute),
			EnrichTimeout:   parseDuration(v.GetString("ENRICH_TIMEOUT"), 2*time.Second),
		},
		Jobs: JobsConfig{
			LogRetention: parseDuration(v.GetString("LOG_RETENTION"), 30*24*time.Hour),
			Schedule:     v.GetString("LOG_RETENTION_SCHEDULE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" && c.Environment != EnvDevelopment {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the zone schedules are evaluated in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("SERVER_ADDRESS", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATIONS_PATH", "./migrations")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TIMEZONE", "UTC")

	v.SetDefault("REDIS_ADDRESS", "")
	v.SetDefault("REDIS_USERNAME", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("MQTT_BROKER_URL", "")
	v.SetDefault("MQTT_CLIENT_ID", "kiosksync")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SYNC_GRACE_WINDOW", "15m")
	v.SetDefault("MARKER_CACHE_TTL", "30s")
	v.SetDefault("CATALOG_CACHE_TTL", "5m")
	v.SetDefault("ENRICH_TIMEOUT", "2s")

	v.SetDefault("LOG_RETENTION", "720h")
	v.SetDefault("LOG_RETENTION_SCHEDULE", "@daily")
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// viper reports a missing explicit config file as a plain fs error.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
