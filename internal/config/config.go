package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"SB_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"SB_DB_MAX_CONNS" default:"8"`

	// EnrichURL points at the embedding/entity-extraction backend.
	EnrichURL      string        `envconfig:"ENRICH_URL" default:"http://127.0.0.1:5000"`
	EnrichTimeout  time.Duration `envconfig:"ENRICH_TIMEOUT" default:"60s"`
	EmbeddingModel string        `envconfig:"EMBEDDING_MODEL" default:"all-MiniLM-L6-v2"`

	// BskyAPIBase is the public AT-proto read API used for quote/repost and
	// profile resolution.
	BskyAPIBase    string        `envconfig:"BSKY_API_BASE" default:"https://public.api.bsky.app"`
	BskyAPITimeout time.Duration `envconfig:"BSKY_API_TIMEOUT" default:"10s"`

	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`

	WorkerCount   int `envconfig:"SB_WORKER_COUNT" default:"8"`
	RetryAttempts int `envconfig:"SB_RETRY_ATTEMPTS" default:"4"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("SB_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("SB_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("SB_DB_MIN_CONNS (%d) cannot exceed SB_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.EnrichURL) == "" {
		return fmt.Errorf("ENRICH_URL is required")
	}
	if strings.TrimSpace(c.BskyAPIBase) == "" {
		return fmt.Errorf("BSKY_API_BASE is required")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("SB_WORKER_COUNT must be >= 1")
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		return fmt.Errorf("SB_RETRY_ATTEMPTS must be between 1 and 10")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	return nil
}
