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
const DefaultConfigFile = "concierge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

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
	setString(&cfg.Server.Port, "CONCIERGE_PORT")
	setString(&cfg.Bus.Kind, "CONCIERGE_BUS_KIND")
	setInt(&cfg.Bus.Buffer, "CONCIERGE_BUS_BUFFER")
	setDuration(&cfg.Bus.RetryFirst, "CONCIERGE_BUS_RETRY_FIRST")
	setInt(&cfg.Bus.RetryTries, "CONCIERGE_BUS_RETRY_TRIES")
	setString(&cfg.NATS.URL, "NATS_URL")
	setInt(&cfg.Pool.Min, "CONCIERGE_POOL_MIN")
	setInt(&cfg.Pool.Max, "CONCIERGE_POOL_MAX")
	setDuration(&cfg.Pool.AcquireTimeout, "CONCIERGE_POOL_ACQUIRE_TIMEOUT")
	setDuration(&cfg.Turn.Deadline, "CONCIERGE_TURN_DEADLINE")
	setInt(&cfg.Turn.RetryBudget, "CONCIERGE_TURN_RETRY_BUDGET")
	setInt(&cfg.Turn.Workers, "CONCIERGE_TURN_WORKERS")
	setFloat64(&cfg.Thresholds.AutoApproveRefund, "CONCIERGE_REFUND_THRESHOLD")
	setFloat64(&cfg.Thresholds.ConfidenceFloor, "CONCIERGE_CONFIDENCE_FLOOR")
	setString(&cfg.Collaborators.CommerceURL, "CONCIERGE_COMMERCE_URL")
	setString(&cfg.Collaborators.KnowledgeURL, "CONCIERGE_KNOWLEDGE_URL")
	setString(&cfg.Collaborators.TicketURL, "CONCIERGE_TICKET_URL")
	setString(&cfg.Collaborators.LLMURL, "CONCIERGE_LLM_URL")
	setDuration(&cfg.Collaborators.CallTimeout, "CONCIERGE_COLLAB_TIMEOUT")
	setDuration(&cfg.Store.IdleTTL, "CONCIERGE_STORE_IDLE_TTL")
	setDuration(&cfg.Store.SweepInterval, "CONCIERGE_STORE_SWEEP_INTERVAL")
	setInt64(&cfg.Cache.MaxSizeMB, "CONCIERGE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.FragmentTTL, "CONCIERGE_CACHE_FRAGMENT_TTL")
	setInt(&cfg.Breaker.MaxFailures, "CONCIERGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CONCIERGE_BREAKER_TIMEOUT")
	setString(&cfg.Logging.Level, "CONCIERGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CONCIERGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CONCIERGE_LOG_ASYNC")
	setInt(&cfg.Logging.AsyncBuffer, "CONCIERGE_LOG_ASYNC_BUFFER")
	setBool(&cfg.Telemetry.Enabled, "CONCIERGE_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "CONCIERGE_OTEL_ENDPOINT")
	setString(&cfg.Token.Key, "CONCIERGE_TOKEN_KEY")
}

// validate checks cross-field invariants after all sources are applied.
func validate(cfg *Config) error {
	if cfg.Bus.Kind != "memory" && cfg.Bus.Kind != "nats" {
		return fmt.Errorf("bus.kind must be memory or nats, got %q", cfg.Bus.Kind)
	}
	if cfg.Pool.Min < 0 || cfg.Pool.Max < 1 {
		return fmt.Errorf("pool sizes invalid: min=%d max=%d", cfg.Pool.Min, cfg.Pool.Max)
	}
	if cfg.Pool.Min > cfg.Pool.Max {
		return fmt.Errorf("pool.min %d exceeds pool.max %d", cfg.Pool.Min, cfg.Pool.Max)
	}
	if cfg.Turn.RetryBudget < 0 {
		return fmt.Errorf("turn.retry_budget must be >= 0, got %d", cfg.Turn.RetryBudget)
	}
	if cfg.Turn.Deadline <= 0 {
		return errors.New("turn.deadline must be positive")
	}
	if cfg.Thresholds.AutoApproveRefund <= 0 {
		return fmt.Errorf("thresholds.auto_approve_refund must be positive, got %v", cfg.Thresholds.AutoApproveRefund)
	}
	if cfg.Thresholds.ConfidenceFloor < 0 || cfg.Thresholds.ConfidenceFloor >= 1 {
		return fmt.Errorf("thresholds.confidence_floor must be in [0,1), got %v", cfg.Thresholds.ConfidenceFloor)
	}
	if cfg.Collaborators.CallTimeout <= 0 {
		return errors.New("collaborators.call_timeout must be positive")
	}
	if cfg.Token.Key == "" {
		return errors.New("token.key is required")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
