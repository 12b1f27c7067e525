package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // Listen address, e.g. ":8080".
}

// DatabaseConfig holds the ledger store connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // PostgreSQL or SQLite DSN.
}

// RedisConfig holds the event bus connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`     // Redis address, empty disables the event bus.
	Password string `yaml:"password"` // Optional password.
	DB       int    `yaml:"db"`       // Logical database index.
}

// AuthConfig holds admin authentication settings.
type AuthConfig struct {
	JWTSecret         string `yaml:"jwt-secret"`         // HS256 signing secret.
	TokenTTLMinutes   int    `yaml:"token-ttl-minutes"`  // Admin token lifetime.
	BootstrapUsername string `yaml:"bootstrap-username"` // Seeded admin username.
	BootstrapPassword string `yaml:"bootstrap-password"` // Seeded admin password.
}

// LogConfig holds logging output settings.
type LogConfig struct {
	Level      string `yaml:"level"`       // logrus level name.
	File       string `yaml:"file"`        // Log file path, empty keeps stdout only.
	MaxSizeMB  int    `yaml:"max-size-mb"` // Rotation threshold.
	MaxBackups int    `yaml:"max-backups"` // Rotated files kept.
	MaxAgeDays int    `yaml:"max-age-days"`
}

// Config is the process configuration loaded from a YAML file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// TokenTTL returns the configured admin token lifetime.
func (c AuthConfig) TokenTTL() time.Duration {
	if c.TokenTTLMinutes <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// Load reads and validates the YAML configuration file.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	var cfg Config
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":8080"
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, fmt.Errorf("config: auth.jwt-secret is required")
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	return &cfg, nil
}
