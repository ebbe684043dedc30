// Package config loads server settings from a YAML file, an optional .env
// file and TASKFORGE_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	EventsBackendLocal = "local"
	EventsBackendRedis = "redis"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Events    EventsConfig    `yaml:"events"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
	Log       LogConfig       `yaml:"log"`
	Jobs      JobsConfig      `yaml:"jobs"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" env:"TASKFORGE_HOST"`
	Port            int           `yaml:"port" env:"TASKFORGE_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig leaves URL empty to run without persistence; every data
// route then answers 503 DB_NOT_CONFIGURED.
type DatabaseConfig struct {
	URL             string        `yaml:"url" env:"TASKFORGE_DATABASE_URL"`
	MaxConns        int32         `yaml:"max_conns" env:"TASKFORGE_DB_MAX_CONNS"`
	MinConns        int32         `yaml:"min_conns" env:"TASKFORGE_DB_MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

type AuthConfig struct {
	AccessSecret  string        `yaml:"access_secret" env:"TASKFORGE_JWT_ACCESS_SECRET"`
	RefreshSecret string        `yaml:"refresh_secret" env:"TASKFORGE_JWT_REFRESH_SECRET"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"TASKFORGE_ACCESS_TTL"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"TASKFORGE_REFRESH_TTL"`
	BcryptCost    int           `yaml:"bcrypt_cost" env:"TASKFORGE_BCRYPT_COST"`
}

type EventsConfig struct {
	Backend  string `yaml:"backend" env:"TASKFORGE_EVENTS_BACKEND"`
	RedisURL string `yaml:"redis_url" env:"TASKFORGE_REDIS_URL"`
	Channel  string `yaml:"channel"`
}

type RealtimeConfig struct {
	SendBuffer     int           `yaml:"send_buffer"`
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	PingPeriod     time.Duration `yaml:"ping_period"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" env:"TASKFORGE_RATE_LIMIT_ENABLED"`
	RequestsPerMinute int  `yaml:"requests_per_minute" env:"TASKFORGE_RATE_LIMIT_RPM"`
	Burst             int  `yaml:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"TASKFORGE_CORS_ORIGINS"` // empty means same-origin only; ["*"] for dev
}

type LogConfig struct {
	Level string `yaml:"level" env:"TASKFORGE_LOG_LEVEL"`
}

type JobsConfig struct {
	SessionPurgeSchedule   string        `yaml:"session_purge_schedule"`
	SessionRetention       time.Duration `yaml:"session_retention"`
	LimiterCleanupSchedule string        `yaml:"limiter_cleanup_schedule"`
	LimiterIdleTimeout     time.Duration `yaml:"limiter_idle_timeout"`
}

// Load builds a Config from defaults, the YAML file at path (if any), a .env
// file in the working directory (if present) and the environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := expandEnvVars(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			AccessSecret:  "dev-access-secret-change-me",
			RefreshSecret: "dev-refresh-secret-change-me",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			BcryptCost:    12,
		},
		Events: EventsConfig{
			Backend: EventsBackendLocal,
			Channel: "taskforge:activity",
		},
		Realtime: RealtimeConfig{
			SendBuffer:     64,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			PingPeriod:     54 * time.Second,
			MaxMessageSize: 64 * 1024,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 300,
		},
		Log: LogConfig{
			Level: "info",
		},
		Jobs: JobsConfig{
			SessionPurgeSchedule:   "@hourly",
			SessionRetention:       24 * time.Hour,
			LimiterCleanupSchedule: "@every 5m",
			LimiterIdleTimeout:     10 * time.Minute,
		},
	}
}

func expandEnvVars(s string) string {
	return os.ExpandEnv(s)
}

// applyEnvOverrides decodes the env-tagged fields. It is not an error for
// none of them to be set.
func applyEnvOverrides(cfg *Config) error {
	err := envdecode.Decode(cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decoding environment: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return errors.New("server read and write timeouts must be positive")
	}
	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return errors.New("auth.access_secret and auth.refresh_secret are required")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("auth.access_secret and auth.refresh_secret must differ")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("auth token TTLs must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}
	switch c.Events.Backend {
	case EventsBackendLocal:
	case EventsBackendRedis:
		if c.Events.RedisURL == "" {
			return errors.New("events.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("events.backend must be %q or %q, got %q", EventsBackendLocal, EventsBackendRedis, c.Events.Backend)
	}
	if c.Realtime.SendBuffer <= 0 {
		return errors.New("realtime.send_buffer must be positive")
	}
	if c.Realtime.PingPeriod <= 0 || c.Realtime.PingPeriod >= c.Realtime.PongWait {
		return errors.New("realtime.ping_period must be positive and shorter than realtime.pong_wait")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return errors.New("rate_limit.requests_per_minute must be positive when enabled")
	}
	if c.RateLimit.Burst < 0 {
		return errors.New("rate_limit.burst must not be negative")
	}
	for name, spec := range map[string]string{
		"jobs.session_purge_schedule":   c.Jobs.SessionPurgeSchedule,
		"jobs.limiter_cleanup_schedule": c.Jobs.LimiterCleanupSchedule,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses log.level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) MigrationsSource() string {
	return "file://migrations"
}

func (c *Config) DatabaseURLForMigrate() string {
	url := c.Database.URL
	if !strings.Contains(url, "sslmode=") {
		if strings.Contains(url, "?") {
			url += "&sslmode=disable"
		} else {
			url += "?sslmode=disable"
		}
	}
	return url
}
