package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values resolve in order:
// built-in defaults, then the optional YAML file, then environment
// variables.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig selects the storage backend. Driver "memory" runs fully
// in-process; "postgres" requires a DSN.
type DatabaseConfig struct {
	Driver       string        `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN          string        `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns int           `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnLifetime time.Duration `yaml:"conn_lifetime" env:"DATABASE_CONN_LIFETIME"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Output string `yaml:"output" env:"LOG_OUTPUT"`
}

// SimulationConfig tunes the background simulators.
type SimulationConfig struct {
	MiningProgressInterval time.Duration `yaml:"mining_progress_interval" env:"MINING_PROGRESS_INTERVAL"`
	MiningSweepSchedule    string        `yaml:"mining_sweep_schedule" env:"MINING_SWEEP_SCHEDULE"`
	AddressInterval        time.Duration `yaml:"address_interval" env:"ADDRESS_INTERVAL"`
	TradingInterval        time.Duration `yaml:"trading_interval" env:"TRADING_INTERVAL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "memory",
			MaxOpenConns: 20,
			MaxIdleConns: 5,
			ConnLifetime: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Simulation: SimulationConfig{
			MiningProgressInterval: time.Minute,
			MiningSweepSchedule:    "@hourly",
			AddressInterval:        time.Second,
			TradingInterval:        time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path if
// it exists, and finally the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Optional file; fall through to env.
		default:
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// envdecode errors on missing required vars only; all of ours are
	// optional overrides.
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database driver postgres requires a dsn")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
