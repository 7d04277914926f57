// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package config

import (
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.IsProduction() {
		t.Error("default environment is production")
	}
	if cfg.Queue.Driver != "channel" {
		t.Errorf("queue driver = %q", cfg.Queue.Driver)
	}
	if cfg.Queue.Topic != "events.github" || cfg.Queue.PoisonTopic != "events.poison" {
		t.Errorf("topics = %q / %q", cfg.Queue.Topic, cfg.Queue.PoisonTopic)
	}
	if cfg.State.LockLease != 2*time.Minute {
		t.Errorf("lock lease = %s", cfg.State.LockLease)
	}
	if cfg.Board.FilePath != "Bitacora.md" {
		t.Errorf("board file = %q", cfg.Board.FilePath)
	}
	if cfg.GitHub.APIURL != "https://api.github.com" {
		t.Errorf("api url = %q", cfg.GitHub.APIURL)
	}
}

func TestValidateLockLeaseTooShort(t *testing.T) {
	cfg := defaultConfig()
	cfg.State.LockLease = 10 * time.Second
	cfg.GitHub.FetchTimeout = time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("sub-minute lock lease accepted")
	}
}

func TestValidateFetchTimeoutMustFitInLease(t *testing.T) {
	cfg := defaultConfig()
	cfg.GitHub.FetchTimeout = cfg.State.LockLease
	if err := cfg.Validate(); err == nil {
		t.Error("fetch timeout equal to lock lease accepted")
	}
}

func TestValidateProductionRequiresWebhookSecret(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Environment = EnvProduction
	cfg.GitHub.WebhookSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Error("production without webhook secret accepted")
	}

	cfg.GitHub.WebhookSecret = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("production with secret rejected: %v", err)
	}
}

func TestValidateQueueDriver(t *testing.T) {
	cfg := defaultConfig()
	cfg.Queue.Driver = "rabbit"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown queue driver accepted")
	}
}

func TestValidateMirrorModeNeedsPath(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Mode = "mirror"
	cfg.Database.MirrorPath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("mirror mode without mirror path accepted")
	}

	cfg.Database.MirrorPath = "/data/mirror.duckdb"
	if err := cfg.Validate(); err != nil {
		t.Errorf("mirror mode with path rejected: %v", err)
	}
}

func TestEnvTransform(t *testing.T) {
	cases := map[string]string{
		"GITHUB_TOKEN":    "github.token",
		"HTTP_PORT":       "server.port",
		"QUEUE_DRIVER":    "queue.driver",
		"DUCKDB_PATH":     "database.path",
		"LOCK_LEASE":      "state.lock_lease",
		"RANDOM_NOISE":    "",
		"PATH":            "",
		"BOARD_FILE_PATH": "board.file_path",
	}
	for in, want := range cases {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}
