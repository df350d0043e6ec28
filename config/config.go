package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Worker   WorkerConfig
	Log      LogConfig
	Formula  FormulaConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Port string `env:"APP_PORT" envDefault:"8080"`
}

// IsDevelopment reports whether the app runs in development mode
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	Name            string        `env:"DB_NAME" envDefault:"calculator"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	PoolMax         int           `env:"DB_POOL_MAX" envDefault:"20"`
	PoolMinConns    int           `env:"DB_POOL_MIN" envDefault:"2"`
	PoolMaxConnLife time.Duration `env:"DB_POOL_MAX_CONN_LIFE" envDefault:"30m"`
}

// WorkerConfig holds batch worker configuration
type WorkerConfig struct {
	Count     int `env:"WORKER_COUNT" envDefault:"8"`
	BatchSize int `env:"BATCH_SIZE" envDefault:"50"`
	MaxInputs int `env:"BATCH_MAX_INPUTS" envDefault:"10000"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// FormulaConfig holds formula compiler configuration
type FormulaConfig struct {
	CacheSize int `env:"FORMULA_CACHE_SIZE" envDefault:"4096"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}

	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if c.Database.PoolMax <= 0 {
		return fmt.Errorf("DB_POOL_MAX must be positive")
	}

	if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be between 0 and DB_POOL_MAX")
	}

	if c.Worker.Count <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}

	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}

	if c.Worker.MaxInputs <= 0 {
		return fmt.Errorf("BATCH_MAX_INPUTS must be positive")
	}

	if c.Formula.CacheSize <= 0 {
		return fmt.Errorf("FORMULA_CACHE_SIZE must be positive")
	}

	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	return validLevels[level]
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Env=%s, Port=%s, DBHost=%s, DBName=%s, PoolMax=%d, Workers=%d, BatchSize=%d, FormulaCache=%d, LogLevel=%s}",
		c.App.Env,
		c.App.Port,
		c.Database.Host,
		c.Database.Name,
		c.Database.PoolMax,
		c.Worker.Count,
		c.Worker.BatchSize,
		c.Formula.CacheSize,
		c.Log.Level,
	)
}
