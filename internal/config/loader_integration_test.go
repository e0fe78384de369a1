package config

import (
	"os"
	"path/filepath"
	"testing"
)

// These tests run the whole merge pipeline against real files and process
// environment: defaults < YAML < env.

// writeConfig places body in a fresh temp file and returns its path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "curatd.yaml")
	rewriteConfig(t, path, body)
	return path
}

// rewriteConfig overwrites a config file in place, as an operator editing
// it between reloads would.
func rewriteConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadHierarchyEnvBeatsYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
logging:
  level: "debug"
`)
	t.Setenv("CURATD_PORT", "7070")
	t.Setenv("CURATD_LOG_LEVEL", "warn")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q, want env value 7070", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q, want env value warn", cfg.Logging.Level)
	}
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "error"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Logging.Level != "error" {
		t.Errorf("level = %q, want error", cfg.Logging.Level)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want default 8080", cfg.Server.Port)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("max_conns = %d, want default 15", cfg.Postgres.MaxConns)
	}
	// NATS_URL is read unprefixed and devcontainers usually export it, so
	// only non-emptiness is checked here.
	if cfg.NATS.URL == "" {
		t.Error("NATS URL empty")
	}
}

func TestLoadIgnoresMalformedEnvValues(t *testing.T) {
	path := writeConfig(t, "")

	t.Setenv("CURATD_PG_MAX_CONNS", "notanumber")
	t.Setenv("CURATD_BREAKER_TIMEOUT", "invalid-duration")
	t.Setenv("CURATD_REVIEW_APPROVE_AT_OR_ABOVE", "abc")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("max_conns = %d, want default 15", cfg.Postgres.MaxConns)
	}
	if cfg.Breaker.Timeout.String() != "30s" {
		t.Errorf("breaker timeout = %v, want default 30s", cfg.Breaker.Timeout)
	}
	if cfg.Review.ApproveAtOrAbove != 7.0 {
		t.Errorf("approve_at_or_above = %v, want default 7.0", cfg.Review.ApproveAtOrAbove)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/path/to/config.yaml")
	if err != nil {
		t.Fatalf("missing file must not error, got %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want default 8080", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("level = %q, want default info", cfg.Logging.Level)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, `{{{invalid yaml`)

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadValidatesMergedResult(t *testing.T) {
	// reject_below above the default review_below inverts the threshold
	// order; the merged config must not load.
	path := writeConfig(t, `
review:
  reject_below: 9.0
`)

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected validation error for inverted thresholds")
	}
}

func TestLoadReviewPolicyFromYAML(t *testing.T) {
	path := writeConfig(t, `
review:
  timeout_policy: "reassign"
  max_assign_rounds: 5
  controller_id: "controller-ai"
  empty_pool_fallback: "controller"
workers:
  ai_bound: 2
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Review.TimeoutPolicy != "reassign" {
		t.Errorf("timeout_policy = %q, want reassign", cfg.Review.TimeoutPolicy)
	}
	if cfg.Review.MaxAssignRounds != 5 {
		t.Errorf("max_assign_rounds = %d, want 5", cfg.Review.MaxAssignRounds)
	}
	if cfg.Review.EmptyPoolFallback != "controller" {
		t.Errorf("empty_pool_fallback = %q, want controller", cfg.Review.EmptyPoolFallback)
	}
	if cfg.Workers.AIBound != 2 {
		t.Errorf("ai_bound = %d, want 2", cfg.Workers.AIBound)
	}
	if cfg.Review.MaxActiveAssignments != 5 {
		t.Errorf("max_active_assignments = %d, want untouched default 5", cfg.Review.MaxActiveAssignments)
	}
}

func TestReloadPicksUpFileChanges(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "info"
repair:
  max_attempts: 2
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	rewriteConfig(t, path, `
logging:
  level: "debug"
repair:
  max_attempts: 6
`)
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	got := holder.Get()
	if got.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", got.Logging.Level)
	}
	if got.Repair.MaxAttempts != 6 {
		t.Errorf("max_attempts = %d, want 6", got.Repair.MaxAttempts)
	}
}

func TestReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
logging:
  level: "info"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	rewriteConfig(t, path, `
server:
  port: ""
`)
	if err := holder.Reload(); err == nil {
		t.Fatal("expected reload to reject the invalid file")
	}

	got := holder.Get()
	if got.Server.Port != "9090" {
		t.Errorf("port = %q, want preserved 9090", got.Server.Port)
	}
	if got.Logging.Level != "info" {
		t.Errorf("level = %q, want preserved info", got.Logging.Level)
	}
}

func TestReloadAppliesEnvironment(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "info"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	t.Setenv("CURATD_LOG_LEVEL", "error")
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := holder.Get(); got.Logging.Level != "error" {
		t.Errorf("level = %q, want env value error", got.Logging.Level)
	}
}
