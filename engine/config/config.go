// Package config loads the service configuration from YAML, falling
// back to defaults when no file is provided.
package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/evaldash/engine/analysis"
	"github.com/evaldash/engine/comparator"
)

// Config is the top-level service configuration.
type Config struct {
	ListenAddr string         `yaml:"listen_addr"`
	LogLevel   string         `yaml:"log_level"`
	Storage    StorageConfig  `yaml:"storage"`
	Analysis   AnalysisConfig `yaml:"analysis"`
}

// StorageConfig selects and configures the history store backend.
type StorageConfig struct {
	// Backend is "postgres" or "memory".
	Backend    string         `yaml:"backend"`
	PostgreSQL PostgresConfig `yaml:"postgresql"`
}

// PostgresConfig contains the PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// ConnectionString builds the lib/pq connection string.
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode)
}

// AnalysisConfig carries the tunable analysis thresholds. All of them
// are product-chosen cut-points, so they are configurable rather than
// hard-coded.
type AnalysisConfig struct {
	Comparator comparator.Thresholds         `yaml:"comparator"`
	Regression analysis.RegressionThresholds `yaml:"regression"`
	Trend      analysis.TrendConfig          `yaml:"trend"`
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: ":8081",
		LogLevel:   "info",
		Storage: StorageConfig{
			Backend: "memory",
			PostgreSQL: PostgresConfig{
				Host:         "localhost",
				Port:         5432,
				Database:     "evaldash",
				User:         "postgres",
				Password:     "",
				SSLMode:      "disable",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
		},
		Analysis: AnalysisConfig{
			Comparator: comparator.DefaultThresholds(),
			Regression: analysis.DefaultRegressionThresholds(),
			Trend:      analysis.DefaultTrendConfig(),
		},
	}
}

// LoadFromFile loads configuration from a YAML file, layered over the
// defaults. An empty path or a missing file yields the defaults.
func LoadFromFile(path string, log logrus.FieldLogger) (*Config, error) {
	log = log.WithField("component", "config")
	cfg := DefaultConfig()

	if path == "" {
		log.Info("No config path provided, using defaults")
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.WithField("path", path).Info("Config file not found, using defaults")
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	log.WithField("path", path).Info("Loaded configuration")
	return cfg, nil
}
