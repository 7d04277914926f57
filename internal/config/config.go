// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package config loads and validates application configuration using Koanf v2
// with layered sources: struct defaults, an optional YAML file, and
// environment variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment modes. Production tightens security checks: an unconfigured
// webhook secret rejects all deliveries instead of passing them through.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	GitHub   GitHubConfig   `koanf:"github"`
	Queue    QueueConfig    `koanf:"queue"`
	Database DatabaseConfig `koanf:"database"`
	State    StateConfig    `koanf:"state"`
	Cache    CacheConfig    `koanf:"cache"`
	Board    BoardConfig    `koanf:"board"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment" validate:"oneof=development production"`

	// Ingress rate limiting (requests per window per IP).
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// IsProduction reports whether the server runs in production mode.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GitHubConfig holds outbound GitHub API settings.
type GitHubConfig struct {
	// Token authenticates outbound API calls. When empty the client is
	// constructed in an explicit unconfigured state and every call fails
	// with ErrNotConfigured.
	Token string `koanf:"token"`

	// WebhookSecret verifies inbound delivery signatures.
	WebhookSecret string `koanf:"webhook_secret"`

	APIURL       string        `koanf:"api_url" validate:"omitempty,url"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	MaxAttempts  int           `koanf:"max_attempts" validate:"gte=1,lte=10"`
	PageSize     int           `koanf:"page_size" validate:"gte=1,lte=100"`

	// Rate limiter pacing knobs.
	BackoffBase time.Duration `koanf:"backoff_base"`
	BackoffCap  time.Duration `koanf:"backoff_cap"`
}

// QueueConfig holds job queue settings. The channel driver runs the queue
// in-process; the nats driver uses JetStream (optionally embedded).
type QueueConfig struct {
	Driver string `koanf:"driver" validate:"oneof=channel nats"`

	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	StreamName     string `koanf:"stream_name"`
	DurableName    string `koanf:"durable_name"`
	QueueGroup     string `koanf:"queue_group"`

	Topic       string `koanf:"topic"`
	PoisonTopic string `koanf:"poison_topic"`

	// Router retry policy (job-level retries on handler failure).
	RetryMaxRetries      int           `koanf:"retry_max_retries"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`
	RetryMultiplier      float64       `koanf:"retry_multiplier"`

	SubscribersCount int           `koanf:"subscribers_count"`
	AckWait          time.Duration `koanf:"ack_wait"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`
}

// DatabaseConfig holds the durable store settings. Mode "single" writes to
// one DuckDB file; mode "mirror" additionally best-effort-writes to a second
// file during a migration window.
type DatabaseConfig struct {
	Path       string `koanf:"path" validate:"required"`
	Mode       string `koanf:"mode" validate:"oneof=single mirror"`
	MirrorPath string `koanf:"mirror_path" validate:"required_if=Mode mirror"`
	MaxMemory  string `koanf:"max_memory"`
}

// StateConfig holds the event-state/lock store settings.
type StateConfig struct {
	Path      string        `koanf:"path"`
	InMemory  bool          `koanf:"in_memory"`
	LockLease time.Duration `koanf:"lock_lease"`
}

// CacheConfig holds the cache store settings.
type CacheConfig struct {
	Path     string        `koanf:"path"`
	InMemory bool          `koanf:"in_memory"`
	TTL      time.Duration `koanf:"ttl"`
}

// BoardConfig holds board query surface settings.
type BoardConfig struct {
	// FilePath is the repository file parsed into a board.
	FilePath string        `koanf:"file_path"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.State.LockLease < time.Minute {
		return fmt.Errorf("state.lock_lease must be at least 1m, got %s", c.State.LockLease)
	}
	// A hung outbound call must never outlive the processing lock.
	if c.GitHub.FetchTimeout >= c.State.LockLease {
		return fmt.Errorf("github.fetch_timeout (%s) must be shorter than state.lock_lease (%s)",
			c.GitHub.FetchTimeout, c.State.LockLease)
	}
	if c.Server.IsProduction() && c.GitHub.WebhookSecret == "" {
		// Verified again at request time; surfacing it at startup gives a
		// clearer deployment error.
		return fmt.Errorf("github.webhook_secret is required in production")
	}
	return nil
}
