// Package config loads agentrail SDK configuration from YAML with
// environment overrides, and hot-reloads it on file change.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds collector and pipeline settings. Programmatic client
// options take precedence over everything here; environment variables
// take precedence over the file.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	APIKey           string        `yaml:"api_key"`
	Tags             []string      `yaml:"tags"`
	BatchTimeout     time.Duration `yaml:"batch_timeout"`
	MaxBatchSize     int           `yaml:"max_batch_size"`
	MaxQueueSize     int           `yaml:"max_queue_size"`
	DuplicateRetries int           `yaml:"duplicate_retries"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Endpoint:         "http://localhost:8040",
		BatchTimeout:     5 * time.Second,
		MaxBatchSize:     512,
		MaxQueueSize:     2048,
		DuplicateRetries: 3,
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file and still applies the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AGENTRAIL_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("AGENTRAIL_API_KEY"); v != "" {
		c.APIKey = v
	}
}

// Validate checks the settings a session cannot run without.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("collector endpoint is required")
	}
	if c.MaxBatchSize > 0 && c.MaxQueueSize > 0 && c.MaxBatchSize > c.MaxQueueSize {
		return fmt.Errorf("max_batch_size %d exceeds max_queue_size %d", c.MaxBatchSize, c.MaxQueueSize)
	}
	return nil
}
