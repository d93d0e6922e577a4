// Package config holds process configuration resolved from the environment,
// the way the teacher's internal/config package resolves MEMORY_BACKEND_*
// variables via envconfig.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents a deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds all bounds and knobs enumerated in spec §6. These are bounds,
// not fixed constants — the ingester, worker, and controller move within
// them at runtime.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// ingest (§6: ingest)
	IngestMinRows      int     `envconfig:"INGEST_MIN_ROWS" default:"50"`
	IngestMaxRows      int     `envconfig:"INGEST_MAX_ROWS" default:"2000"`
	IngestMaxBatchByte int     `envconfig:"INGEST_MAX_BATCH_BYTES" default:"1048576"`
	IngestDBP50Ms      int     `envconfig:"INGEST_DB_P50_MS" default:"50"`
	IngestDBP95Ms      int     `envconfig:"INGEST_DB_P95_MS" default:"250"`
	IngestEWMAAlpha    float64 `envconfig:"INGEST_EWMA_ALPHA" default:"0.3"`

	// worker (§6: worker)
	WorkerTargetSliceMs       int     `envconfig:"WORKER_TARGET_SLICE_MS" default:"5000"`
	WorkerClaimMin            int     `envconfig:"WORKER_CLAIM_MIN" default:"1"`
	WorkerClaimMax            int     `envconfig:"WORKER_CLAIM_MAX" default:"500"`
	WorkerSafetyFactor        float64 `envconfig:"WORKER_SAFETY_FACTOR" default:"0.7"`
	WorkerLockFloorMs         int     `envconfig:"WORKER_LOCK_FLOOR_MS" default:"2000"`
	WorkerLockCapMs           int     `envconfig:"WORKER_LOCK_CAP_MS" default:"60000"`
	WorkerMaxAttemptsError    int     `envconfig:"WORKER_MAX_ATTEMPTS_ERROR" default:"5"`
	WorkerMaxAttemptsNotFound int     `envconfig:"WORKER_MAX_ATTEMPTS_NOT_FOUND" default:"2"`
	WorkerHeartbeatIntervalMs int     `envconfig:"WORKER_HEARTBEAT_INTERVAL_MS" default:"3000"`
	WorkerConcurrency         int     `envconfig:"WORKER_CONCURRENCY" default:"8"`

	// provider (§6: provider), single default tier set shared by every
	// provider; there are no per-provider overrides.
	ProviderTimeoutFastMs   int `envconfig:"PROVIDER_TIMEOUT_FAST_MS" default:"800"`
	ProviderTimeoutMediumMs int `envconfig:"PROVIDER_TIMEOUT_MEDIUM_MS" default:"2000"`
	ProviderTimeoutSlowMs   int `envconfig:"PROVIDER_TIMEOUT_SLOW_MS" default:"5000"`
	ProviderMaxConcurrency  int `envconfig:"PROVIDER_MAX_CONCURRENCY" default:"10"`
	ProviderMinDelayMs      int `envconfig:"PROVIDER_MIN_DELAY_MS" default:"0"`
	ProviderBaseURL         string `envconfig:"PROVIDER_BASE_URL" default:""`
}

// New parses environment variables prefixed PRICER_ into a Config.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("PRICER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("http_port", cfg.HTTPPort).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Int("ingest_min_rows", cfg.IngestMinRows).
		Int("ingest_max_rows", cfg.IngestMaxRows).
		Int("worker_claim_min", cfg.WorkerClaimMin).
		Int("worker_claim_max", cfg.WorkerClaimMax).
		Msg("configuration loaded")

	return &cfg, nil
}

// NewForTesting returns a Config with sane static defaults, mirroring the
// teacher's NewForTesting helper.
func NewForTesting() *Config {
	return &Config{
		Environment:               EnvTesting,
		HTTPPort:                  8080,
		IngestMinRows:             10,
		IngestMaxRows:             200,
		IngestMaxBatchByte:        65536,
		IngestDBP50Ms:             50,
		IngestDBP95Ms:             250,
		IngestEWMAAlpha:           0.3,
		WorkerTargetSliceMs:       1000,
		WorkerClaimMin:            1,
		WorkerClaimMax:            50,
		WorkerSafetyFactor:        0.7,
		WorkerLockFloorMs:         500,
		WorkerLockCapMs:           10000,
		WorkerMaxAttemptsError:    5,
		WorkerMaxAttemptsNotFound: 2,
		WorkerHeartbeatIntervalMs: 1000,
		WorkerConcurrency:         4,
		ProviderTimeoutFastMs:     200,
		ProviderTimeoutMediumMs:   500,
		ProviderTimeoutSlowMs:     1500,
		ProviderMaxConcurrency:    4,
		ProviderMinDelayMs:        0,
	}
}

// IsTesting reports whether the environment is set to testing.
func (c *Config) IsTesting() bool { return c.Environment == EnvTesting }

// GetHTTPAddr returns the HTTP listen address.
func (c *Config) GetHTTPAddr() string { return fmt.Sprintf(":%d", c.HTTPPort) }
