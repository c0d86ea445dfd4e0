package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the sqltemplate node
type Config struct {
	// Worker configuration
	WorkerID string `env:"WORKER_ID" envDefault:"sqltemplate-1"`

	// Redis configuration
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASS" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Stream configuration
	StreamKey     string        `env:"STREAM_KEY" envDefault:"sqltemplate.work"`
	ConsumerGroup string        `env:"CONSUMER_GROUP" envDefault:"sqltemplate-workers"`
	ResultStream  string        `env:"RESULT_STREAM" envDefault:"sqltemplate.rendered"`
	BlockTime     time.Duration `env:"BLOCK_TIME" envDefault:"1s"`

	// Catalog configuration; an empty path uses the embedded catalog
	CatalogPath    string `env:"CATALOG_PATH" envDefault:""`
	DefaultDataset string `env:"DEFAULT_DATASET" envDefault:""`

	// Render stages
	GuardsEnabled    bool `env:"GUARDS_ENABLED" envDefault:"true"`
	CaptionsEnabled  bool `env:"CAPTIONS_ENABLED" envDefault:"true"`
	InjectionAudit   bool `env:"INJECTION_AUDIT" envDefault:"true"`
	MaxDateRangeDays int  `env:"MAX_DATE_RANGE_DAYS" envDefault:"365"`

	// Health check configuration
	HealthPort int `env:"HEALTH_PORT" envDefault:"8082"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
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
	if c.WorkerID == "" {
		return fmt.Errorf("WORKER_ID is required")
	}

	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	if c.StreamKey == "" {
		return fmt.Errorf("STREAM_KEY is required")
	}

	if c.ConsumerGroup == "" {
		return fmt.Errorf("CONSUMER_GROUP is required")
	}

	if c.ResultStream == "" {
		return fmt.Errorf("RESULT_STREAM is required")
	}

	if c.ResultStream == c.StreamKey {
		return fmt.Errorf("RESULT_STREAM must differ from STREAM_KEY")
	}

	if c.BlockTime <= 0 {
		return fmt.Errorf("BLOCK_TIME must be positive")
	}

	if c.MaxDateRangeDays <= 0 {
		return fmt.Errorf("MAX_DATE_RANGE_DAYS must be positive")
	}

	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("HEALTH_PORT must be between 1 and 65535")
	}

	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	return validLevels[level]
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	catalogPath := c.CatalogPath
	if catalogPath == "" {
		catalogPath = "<embedded>"
	}
	return fmt.Sprintf(
		"Config{WorkerID=%s, RedisAddr=%s, RedisDB=%d, StreamKey=%s, ConsumerGroup=%s, ResultStream=%s, "+
			"Catalog=%s, DefaultDataset=%s, Guards=%v, Captions=%v, InjectionAudit=%v, MaxDateRangeDays=%d, "+
			"HealthPort=%d, LogLevel=%s}",
		c.WorkerID,
		c.RedisAddr,
		c.RedisDB,
		c.StreamKey,
		c.ConsumerGroup,
		c.ResultStream,
		catalogPath,
		c.DefaultDataset,
		c.GuardsEnabled,
		c.CaptionsEnabled,
		c.InjectionAudit,
		c.MaxDateRangeDays,
		c.HealthPort,
		c.LogLevel,
	)
}
