// Package config provides hierarchical configuration loading for the
// orchestration core. Precedence: defaults < YAML file < environment
// variables.
package config

import "time"

// Config holds all runtime configuration for the concierge core service.
type Config struct {
	Server        Server        `yaml:"server"`
	Bus           Bus           `yaml:"bus"`
	NATS          NATS          `yaml:"nats"`
	Pool          Pool          `yaml:"pool"`
	Turn          Turn          `yaml:"turn"`
	Thresholds    Thresholds    `yaml:"thresholds"`
	Collaborators Collaborators `yaml:"collaborators"`
	Store         Store         `yaml:"store"`
	Cache         Cache         `yaml:"cache"`
	Breaker       Breaker       `yaml:"breaker"`
	Logging       Logging       `yaml:"logging"`
	Telemetry     Telemetry     `yaml:"telemetry"`
	Token         Token         `yaml:"token"`
}

// Server holds HTTP ingress configuration.
type Server struct {
	Port string `yaml:"port"`
}

// Bus selects and tunes the message bus implementation.
type Bus struct {
	Kind       string        `yaml:"kind"`        // "memory" or "nats"
	Buffer     int           `yaml:"buffer"`      // per-subscriber queue depth (memory bus)
	RetryFirst time.Duration `yaml:"retry_first"` // first redelivery backoff
	RetryTries int           `yaml:"retry_tries"` // delivery attempts before DLQ
}

// NATS holds NATS JetStream configuration.
type NATS struct {
	URL string `yaml:"url"`
}

// Pool holds completion connection pool configuration.
type Pool struct {
	Min            int           `yaml:"min"`
	Max            int           `yaml:"max"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// Turn bounds a single customer turn through the pipeline.
type Turn struct {
	Deadline    time.Duration `yaml:"deadline"`     // whole-turn budget, dispatch through escalate
	RetryBudget int           `yaml:"retry_budget"` // validator rejections before forced escalation
	Workers     int           `yaml:"workers"`      // concurrent turns processed per instance
}

// Thresholds holds the deterministic business rule constants.
type Thresholds struct {
	AutoApproveRefund float64 `yaml:"auto_approve_refund"` // order totals at or under this auto-approve
	ConfidenceFloor   float64 `yaml:"confidence_floor"`    // dispatch confidence under this is rejected
}

// Collaborators holds external collaborator endpoints and the shared per-call
// deadline the augmenter enforces on each of them.
type Collaborators struct {
	CommerceURL  string        `yaml:"commerce_url"`
	KnowledgeURL string        `yaml:"knowledge_url"`
	TicketURL    string        `yaml:"ticket_url"`
	LLMURL       string        `yaml:"llm_url"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
}

// Store holds conversation context store configuration.
type Store struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`       // evict conversations idle longer than this
	SweepInterval time.Duration `yaml:"sweep_interval"` // eviction scan cadence
}

// Cache holds fragment/idempotency cache configuration.
type Cache struct {
	MaxSizeMB   int64         `yaml:"max_size_mb"`
	FragmentTTL time.Duration `yaml:"fragment_ttl"`
}

// Breaker holds circuit breaker configuration for collaborator HTTP calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level       string `yaml:"level"`
	Service     string `yaml:"service"`
	Async       bool   `yaml:"async"`
	AsyncBuffer int    `yaml:"async_buffer"`
}

// Telemetry holds OpenTelemetry export configuration.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Token holds PII tokenization configuration.
type Token struct {
	Key string `yaml:"key"` // keyed-hash secret; required outside dev
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port: "8080",
		},
		Bus: Bus{
			Kind:       "memory",
			Buffer:     256,
			RetryFirst: time.Second,
			RetryTries: 5,
		},
		NATS: NATS{
			URL: "nats://localhost:4222",
		},
		Pool: Pool{
			Min:            1,
			Max:            4,
			AcquireTimeout: 2 * time.Second,
		},
		Turn: Turn{
			Deadline:    10 * time.Second,
			RetryBudget: 3,
			Workers:     8,
		},
		Thresholds: Thresholds{
			AutoApproveRefund: 50.00,
			ConfidenceFloor:   0.3,
		},
		Collaborators: Collaborators{
			CommerceURL:  "http://localhost:9101",
			KnowledgeURL: "http://localhost:9102",
			TicketURL:    "http://localhost:9103",
			LLMURL:       "http://localhost:4000",
			CallTimeout:  500 * time.Millisecond,
		},
		Store: Store{
			IdleTTL:       30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Cache: Cache{
			MaxSizeMB:   64,
			FragmentTTL: 5 * time.Minute,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Logging: Logging{
			Level:       "info",
			Service:     "concierge-core",
			Async:       false,
			AsyncBuffer: 4096,
		},
		Telemetry: Telemetry{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
		Token: Token{
			Key: "dev-only-token-key",
		},
	}
}
