package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "BOOKING"

// Store drivers accepted by STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures environment driven configuration values for the booking service.
type Config struct {
	HTTPPort          int           `envconfig:"HTTP_PORT" default:"8080"`
	StoreDriver       string        `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLiteDSN         string        `envconfig:"SQLITE_DSN" default:"data/booking.db"`
	PostgresDSN       string        `envconfig:"POSTGRES_DSN"`
	JWTSecret         string        `envconfig:"JWT_SECRET"`
	AMQPURL           string        `envconfig:"AMQP_URL"`
	AMQPExchange      string        `envconfig:"AMQP_EXCHANGE" default:"booking.exchange"`
	RedisAddr         string        `envconfig:"REDIS_ADDR"`
	DirectoryCacheTTL time.Duration `envconfig:"DIRECTORY_CACHE_TTL" default:"5m"`
	DirectorySeedFile string        `envconfig:"DIRECTORY_SEED_FILE"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads an optional .env file from the working directory and then the
// process environment.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. Variables already present in
// the environment win over the file, and a missing file is not an error.
func LoadFile(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	var cfg Config
	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	if err := envconfig.Process(Prefix, &cfg); err != nil {
		var parseErr *envconfig.ParseError
		if !errors.As(err, &parseErr) {
			return Config{}, err
		}
		invalid = append(invalid, parseErr.KeyName)
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		invalid = appendKey(invalid, "HTTP_PORT")
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLiteDSN) == "" {
			missing = appendKey(missing, "SQLITE_DSN")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			missing = appendKey(missing, "POSTGRES_DSN")
		}
	case DriverMemory:
	default:
		invalid = appendKey(invalid, "STORE_DRIVER")
	}

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		missing = appendKey(missing, "JWT_SECRET")
	}
	if cfg.DirectoryCacheTTL < 0 {
		invalid = appendKey(invalid, "DIRECTORY_CACHE_TTL")
	}
	if cfg.ShutdownTimeout <= 0 {
		invalid = appendKey(invalid, "SHUTDOWN_TIMEOUT")
	}
	if cfg.AMQPURL != "" && strings.TrimSpace(cfg.AMQPExchange) == "" {
		missing = appendKey(missing, "AMQP_EXCHANGE")
	}
	if cfg.LogLevel != "" {
		if _, err := ParseLevel(cfg.LogLevel); err != nil {
			invalid = appendKey(invalid, "LOG_LEVEL")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// ParseLevel maps LOG_LEVEL to a slog level. Blank means info.
func ParseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

func appendKey(keys []string, name string) []string {
	full := Prefix + "_" + name
	for _, k := range keys {
		if k == full {
			return keys
		}
	}
	return append(keys, full)
}
