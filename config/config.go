package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the server configuration. Every field can be set from the
// environment; a YAML file named by TASKS_CONFIG is read first when present.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr" env:"HTTP_ADDR" env-default:":3000"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
	AuthRateLimit   int           `yaml:"auth_rate_limit" env:"AUTH_RATE_LIMIT" env-default:"20"`

	DB    DB    `yaml:"db"`
	JWT   JWT   `yaml:"jwt"`
	Cache Cache `yaml:"cache"`
}

// DB selects and configures the record store.
type DB struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	DSN    string `yaml:"dsn" env:"DB_DSN" env-default:"tasks.db"`
	Debug  bool   `yaml:"debug" env:"DB_DEBUG" env-default:"false"`
}

// JWT configures token issuance.
type JWT struct {
	SecretKey string        `yaml:"secret_key" env:"JWT_SECRET_KEY" env-default:"change-me-in-production"`
	Issuer    string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"task-tracker"`
	TTL       time.Duration `yaml:"ttl" env:"JWT_TTL" env-default:"24h"`
}

// Cache configures the redis list cache. An empty address disables it.
type Cache struct {
	RedisAddr string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	Prefix    string        `yaml:"prefix" env:"CACHE_PREFIX" env-default:"tasks:"`
	TTL       time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"5m"`
}

// Load reads configuration from configPath (if non-empty and present) and
// the environment, then validates it.
func Load(configPath string) (Config, error) {
	var cfg Config

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("cannot read env: %w", err)
		}
		return cfg, cfg.Validate()
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return Config{}, fmt.Errorf("cannot read config %q: %w", configPath, err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("cannot read env: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

// MustLoad is Load that exits the process on failure.
func MustLoad(configPath string) Config {
	cfg, err := Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Validate checks values cleanenv cannot express in tags.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DB.Driver)
	}
	switch c.LogLevel {
	case "info", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be info or error, got %q", c.LogLevel)
	}
	if c.JWT.SecretKey == "" {
		return errors.New("JWT_SECRET_KEY must not be empty")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.AuthRateLimit < 0 {
		return errors.New("AUTH_RATE_LIMIT must not be negative")
	}
	return nil
}

// Usage returns the environment variable description generated by cleanenv.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}
