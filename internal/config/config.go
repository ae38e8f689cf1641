// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present.
package config

import (
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	AllowedOrigin   string        `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	Log      Log
	Database Database
	Session  Session
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

type Database struct {
	Driver   string `env:"STORE_DRIVER" envDefault:"memory"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	Name     string `env:"DB_DATABASE" envDefault:"werewolf"`
	Username string `env:"DB_USERNAME" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Schema   string `env:"DB_SCHEMA" envDefault:"public"`

	RedisURL       string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"werewolf:"`
}

// Session holds the timeouts used by the inactivity reaper and the stream
// keep-alive interval.
type Session struct {
	IdleTimeout     time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30s"`
	RecoveryTimeout time.Duration `env:"SESSION_RECOVERY_TIMEOUT" envDefault:"60s"`
	PingInterval    time.Duration `env:"STREAM_PING_INTERVAL" envDefault:"60s"`
}

// PostgresURL builds a pgx connection string from the individual settings.
func (d Database) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.Username, d.Password),
		Host:   d.Host + ":" + d.Port,
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	q.Set("search_path", d.Schema)
	u.RawQuery = q.Encode()
	return u.String()
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	if cfg.Session.IdleTimeout <= 0 || cfg.Session.RecoveryTimeout <= 0 {
		return Config{}, errors.New("session timeouts must be positive")
	}
	return cfg, nil
}
