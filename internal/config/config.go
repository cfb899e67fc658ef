// Package config loads the dashboard configuration from the environment.
// An optional .env file in the working directory is read first; variables
// already set in the process environment win.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Tom-Camp/fe/internal/telemetry"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
	CacheNone   = "none"
)

type Config struct {
	AppEnv      string     `envconfig:"APP_ENV" default:"dev" validate:"oneof=dev prod"`
	LogLevelRaw string     `envconfig:"LOG_LEVEL" default:"info"`
	LogLevel    slog.Level `ignored:"true"`
	HTTPAddr    string     `envconfig:"HTTP_ADDR" default:":8080" validate:"required"`

	GerminatorURL string `envconfig:"GERMINATOR_URL" validate:"required,url"`
	CoopURL       string `envconfig:"COOP_URL" validate:"required,url"`

	DisplayTZ   string                  `envconfig:"DISPLAY_TZ" default:"America/New_York"`
	DisplayZone telemetry.ZoneConverter `ignored:"true"`

	FetchTimeout    time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s" validate:"gt=0"`
	FetchMaxRetries int           `envconfig:"FETCH_MAX_RETRIES" default:"2" validate:"min=0,max=10"`

	CacheBackend       string        `envconfig:"CACHE_BACKEND" default:"memory" validate:"oneof=memory redis sqlite none"`
	GerminatorCacheTTL time.Duration `envconfig:"GERMINATOR_CACHE_TTL" default:"1h" validate:"gt=0"`
	CoopCacheTTL       time.Duration `envconfig:"COOP_CACHE_TTL" default:"15m" validate:"gt=0"`
	CacheSweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"10m" validate:"gt=0"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0" validate:"min=0"`

	SQLitePath      string        `envconfig:"SQLITE_PATH" default:"data/cache.db"`
	DBDSN           string        `envconfig:"DB_DSN"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"1" validate:"min=0"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"1" validate:"min=0"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"0s" validate:"min=0"`
	LogSQL          bool          `envconfig:"DB_LOG_SQL" default:"false"`

	MQTTBroker   string `envconfig:"MQTT_BROKER"`
	MQTTPort     int    `envconfig:"MQTT_PORT" default:"1883" validate:"min=1,max=65535"`
	MQTTClientID string `envconfig:"MQTT_CLIENT_ID" default:"tomcamp-dashboard"`
	MQTTTopic    string `envconfig:"MQTT_TOPIC" default:"tomcamp/devices/refresh"`
}

// MQTTEnabled reports whether a broker is configured.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// CacheTTL returns the freshness window for a device class.
func (c Config) CacheTTL(class telemetry.DeviceClass) time.Duration {
	switch class {
	case telemetry.Coop:
		return c.CoopCacheTTL
	default:
		return c.GerminatorCacheTTL
	}
}

// DeviceURL returns the upstream endpoint of a device class.
func (c Config) DeviceURL(class telemetry.DeviceClass) string {
	switch class {
	case telemetry.Germinator:
		return c.GerminatorURL
	case telemetry.Coop:
		return c.CoopURL
	default:
		return ""
	}
}

func LoadFromEnv() (Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg.AppEnv = strings.TrimSpace(cfg.AppEnv)
	cfg.MQTTBroker = strings.TrimSpace(cfg.MQTTBroker)

	level, err := parseLogLevel(cfg.LogLevelRaw)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	zone, err := telemetry.NewZoneConverter(strings.TrimSpace(cfg.DisplayTZ))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DISPLAY_TZ %q: %w", cfg.DisplayTZ, err)
	}
	cfg.DisplayZone = zone

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
