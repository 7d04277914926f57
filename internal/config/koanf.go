// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/boardstream/config.yaml",
	"/etc/boardstream/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              3000,
			Timeout:           30 * time.Second,
			Environment:       EnvDevelopment,
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		GitHub: GitHubConfig{
			Token:         "",
			WebhookSecret: "",
			APIURL:        "https://api.github.com",
			FetchTimeout:  10 * time.Second,
			MaxAttempts:   5,
			PageSize:      100,
			BackoffBase:   time.Second,
			BackoffCap:    time.Minute,
		},
		Queue: QueueConfig{
			Driver:               "channel",
			URL:                  "nats://127.0.0.1:4222",
			EmbeddedServer:       true,
			StoreDir:             "/data/nats/jetstream",
			StreamName:           "events",
			DurableName:          "event-worker",
			QueueGroup:           "workers",
			Topic:                "events.github",
			PoisonTopic:          "events.poison",
			RetryMaxRetries:      5,
			RetryInitialInterval: time.Second,
			RetryMaxInterval:     time.Minute,
			RetryMultiplier:      2.0,
			SubscribersCount:     4,
			AckWait:              90 * time.Second,
			CloseTimeout:         30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:       "/data/boardstream.duckdb",
			Mode:       "single",
			MirrorPath: "",
			MaxMemory:  "1GB",
		},
		State: StateConfig{
			Path:      "/data/state",
			InMemory:  false,
			LockLease: 2 * time.Minute,
		},
		Cache: CacheConfig{
			Path:     "/data/cache",
			InMemory: false,
			TTL:      5 * time.Minute,
		},
		Board: BoardConfig{
			FilePath: "Bitacora.md",
			CacheTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources:
//  1. Defaults: built-in values
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment noise never pollutes
// the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":          "server.host",
		"http_port":          "server.port",
		"http_timeout":       "server.timeout",
		"environment":        "server.environment",
		"rate_limit_reqs":    "server.rate_limit_reqs",
		"rate_limit_window":  "server.rate_limit_window",
		"disable_rate_limit": "server.rate_limit_disabled",

		// GitHub mappings
		"github_token":          "github.token",
		"github_webhook_secret": "github.webhook_secret",
		"github_api_url":        "github.api_url",
		"github_fetch_timeout":  "github.fetch_timeout",
		"github_max_attempts":   "github.max_attempts",
		"github_page_size":      "github.page_size",
		"github_backoff_base":   "github.backoff_base",
		"github_backoff_cap":    "github.backoff_cap",

		// Queue mappings
		"queue_driver":         "queue.driver",
		"nats_url":             "queue.url",
		"nats_embedded":        "queue.embedded_server",
		"nats_store_dir":       "queue.store_dir",
		"nats_stream_name":     "queue.stream_name",
		"nats_durable_name":    "queue.durable_name",
		"nats_queue_group":     "queue.queue_group",
		"queue_topic":          "queue.topic",
		"queue_poison_topic":   "queue.poison_topic",
		"queue_retry_count":    "queue.retry_max_retries",
		"queue_retry_interval": "queue.retry_initial_interval",
		"queue_subscribers":    "queue.subscribers_count",
		"queue_close_timeout":  "queue.close_timeout",

		// Database mappings
		"duckdb_path":        "database.path",
		"db_mode":            "database.mode",
		"duckdb_mirror_path": "database.mirror_path",
		"duckdb_max_memory":  "database.max_memory",

		// State store mappings
		"state_path":      "state.path",
		"state_in_memory": "state.in_memory",
		"lock_lease":      "state.lock_lease",

		// Cache mappings
		"cache_path":      "cache.path",
		"cache_in_memory": "cache.in_memory",
		"cache_ttl":       "cache.ttl",

		// Board mappings
		"board_file_path": "board.file_path",
		"board_cache_ttl": "board.cache_ttl",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
