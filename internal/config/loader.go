package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "curatd.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	return loadMerged(yamlPath, CLIFlags{})
}

// loadMerged resolves the full hierarchy: defaults < YAML < ENV < CLI.
// Unset flags leave the lower layers untouched.
func loadMerged(yamlPath string, flags CLIFlags) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CURATD_PORT")
	setString(&cfg.Server.CORSOrigin, "CURATD_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CURATD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CURATD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CURATD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CURATD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CURATD_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Scorer.URL, "CURATD_SCORER_URL")
	setString(&cfg.Scorer.APIKey, "CURATD_SCORER_API_KEY")
	setString(&cfg.Search.URL, "CURATD_SEARCH_URL")
	setString(&cfg.Search.APIKey, "CURATD_SEARCH_API_KEY")
	setString(&cfg.Graph.URL, "CURATD_GRAPH_URL")
	setString(&cfg.Graph.APIKey, "CURATD_GRAPH_API_KEY")
	setString(&cfg.Logging.Level, "CURATD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CURATD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CURATD_LOG_ASYNC")
	setInt(&cfg.Logging.AsyncBuffer, "CURATD_LOG_ASYNC_BUFFER")
	setInt(&cfg.Logging.AsyncWorkers, "CURATD_LOG_ASYNC_WORKERS")
	setInt(&cfg.Breaker.MaxFailures, "CURATD_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CURATD_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "CURATD_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.PoolTTL, "CURATD_CACHE_POOL_TTL")

	// Review policy
	setFloat64(&cfg.Review.RejectBelow, "CURATD_REVIEW_REJECT_BELOW")
	setFloat64(&cfg.Review.ReviewBelow, "CURATD_REVIEW_REVIEW_BELOW")
	setFloat64(&cfg.Review.ApproveAtOrAbove, "CURATD_REVIEW_APPROVE_AT_OR_ABOVE")
	setDuration(&cfg.Review.SLA, "CURATD_REVIEW_SLA")
	setString(&cfg.Review.TimeoutPolicy, "CURATD_REVIEW_TIMEOUT_POLICY")
	setInt(&cfg.Review.MaxAssignRounds, "CURATD_REVIEW_MAX_ASSIGN_ROUNDS")
	setString(&cfg.Review.EmptyPoolFallback, "CURATD_REVIEW_EMPTY_POOL_FALLBACK")
	setString(&cfg.Review.ControllerID, "CURATD_REVIEW_CONTROLLER_ID")
	setInt(&cfg.Review.MaxActiveAssignments, "CURATD_REVIEW_MAX_ACTIVE_ASSIGNMENTS")

	// Worker pools
	setInt(&cfg.Workers.AIBound, "CURATD_WORKERS_AI_BOUND")
	setInt(&cfg.Workers.IOBound, "CURATD_WORKERS_IO_BOUND")
	setInt(&cfg.Workers.Lightweight, "CURATD_WORKERS_LIGHTWEIGHT")

	// Repair and janitor
	setInt(&cfg.Repair.MaxAttempts, "CURATD_REPAIR_MAX_ATTEMPTS")
	setDuration(&cfg.Janitor.ArchiveAfter, "CURATD_JANITOR_ARCHIVE_AFTER")
	setString(&cfg.Janitor.ArchiveCron, "CURATD_JANITOR_ARCHIVE_CRON")
	setDuration(&cfg.Janitor.RepairStaleAfter, "CURATD_JANITOR_REPAIR_STALE_AFTER")
	setString(&cfg.Janitor.RepairCron, "CURATD_JANITOR_REPAIR_CRON")

	// Alerting
	setString(&cfg.Alert.WebhookURL, "CURATD_ALERT_WEBHOOK_URL")

	// MCP
	setBool(&cfg.MCP.Enabled, "CURATD_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "CURATD_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "CURATD_MCP_API_KEY")

	// OTel
	setBool(&cfg.OTel.Enabled, "CURATD_OTEL_ENABLED")
	setString(&cfg.OTel.Endpoint, "CURATD_OTEL_ENDPOINT")
	setBool(&cfg.OTel.Insecure, "CURATD_OTEL_INSECURE")
	setFloat64(&cfg.OTel.SampleRatio, "CURATD_OTEL_SAMPLE_RATIO")
	setDuration(&cfg.OTel.Interval, "CURATD_OTEL_INTERVAL")
}

// validate checks that required fields are set and the review policy is
// internally consistent. A config that fails here must never start a
// workflow instance.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Review.RejectBelow > cfg.Review.ReviewBelow || cfg.Review.ReviewBelow > cfg.Review.ApproveAtOrAbove {
		return errors.New("review thresholds must satisfy reject_below <= review_below <= approve_at_or_above")
	}
	if cfg.Review.SLA <= 0 {
		return errors.New("review.sla must be > 0")
	}
	switch cfg.Review.TimeoutPolicy {
	case "reject", "reassign":
	default:
		return fmt.Errorf("review.timeout_policy must be \"reject\" or \"reassign\", got %q", cfg.Review.TimeoutPolicy)
	}
	switch cfg.Review.EmptyPoolFallback {
	case "reject", "approve", "controller":
	default:
		return fmt.Errorf("review.empty_pool_fallback must be \"reject\", \"approve\" or \"controller\", got %q", cfg.Review.EmptyPoolFallback)
	}
	if cfg.Review.EmptyPoolFallback == "controller" && cfg.Review.ControllerID == "" {
		return errors.New("review.controller_id is required when empty_pool_fallback is \"controller\"")
	}
	if cfg.Review.MaxAssignRounds < 1 {
		return errors.New("review.max_assign_rounds must be >= 1")
	}
	if cfg.Review.MaxActiveAssignments < 1 {
		return errors.New("review.max_active_assignments must be >= 1")
	}
	if cfg.Workers.AIBound < 1 || cfg.Workers.IOBound < 1 || cfg.Workers.Lightweight < 1 {
		return errors.New("worker pool sizes must be >= 1")
	}
	if cfg.Repair.MaxAttempts < 1 {
		return errors.New("repair.max_attempts must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
