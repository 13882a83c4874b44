package domain

import (
	"time"
)

// Config holds the complete Padi configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"eventBus"`

	// Diagnosis
	Engine    EngineConfig    `json:"engine" mapstructure:"engine"`
	Limits    LimitsConfig    `json:"limits" mapstructure:"limits"`
	Treatment TreatmentConfig `json:"treatment" mapstructure:"treatment"`
	Admin     AdminConfig     `json:"admin" mapstructure:"admin"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"writeTimeout"` // seconds
}

// EngineConfig tunes the certainty factor engine and the verdict gate.
// Zero values fall back to the engine defaults.
type EngineConfig struct {
	// KnowledgeBase is an optional YAML file seeded on first start.
	KnowledgeBase string `json:"knowledgeBase" mapstructure:"knowledgeBase"`

	MinCF            float64 `json:"minCF" mapstructure:"minCF"`
	MaxResults       int     `json:"maxResults" mapstructure:"maxResults"`
	MaxSuggestions   int     `json:"maxSuggestions" mapstructure:"maxSuggestions"`
	MultiInfectionCF float64 `json:"multiInfectionCF" mapstructure:"multiInfectionCF"`

	// Gate is a CEL expression evaluated against the primary result.
	Gate string `json:"gate" mapstructure:"gate"`
}

// LimitsConfig holds per-user and per-client limits.
type LimitsConfig struct {
	MaxDiagnosesPerDay   int     `json:"maxDiagnosesPerDay" mapstructure:"maxDiagnosesPerDay"`
	DuplicateWindow      int     `json:"duplicateWindow" mapstructure:"duplicateWindow"` // seconds
	BurstPerMinute       int     `json:"burstPerMinute" mapstructure:"burstPerMinute"`
	RequestsPerSecond    float64 `json:"requestsPerSecond" mapstructure:"requestsPerSecond"`
	RequestBurst         int     `json:"requestBurst" mapstructure:"requestBurst"`
	HistoryRetentionDays int     `json:"historyRetentionDays" mapstructure:"historyRetentionDays"`
	HistoryVisibleDays   int     `json:"historyVisibleDays" mapstructure:"historyVisibleDays"`
}

// TreatmentConfig selects and tunes the treatment advisor.
type TreatmentConfig struct {
	// Advisor is "fallback" or "http"
	Advisor string `json:"advisor" mapstructure:"advisor"`
	// Async publishes treatment requests to the bus instead of waiting.
	Async    bool   `json:"async" mapstructure:"async"`
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	APIKey   string `json:"apiKey" mapstructure:"apiKey"`
	Model    string `json:"model" mapstructure:"model"`
	Timeout  int    `json:"timeout" mapstructure:"timeout"` // seconds

	RatePerMinute       int `json:"ratePerMinute" mapstructure:"ratePerMinute"`
	BreakerMaxFailures  int `json:"breakerMaxFailures" mapstructure:"breakerMaxFailures"`
	BreakerOpenDuration int `json:"breakerOpenDuration" mapstructure:"breakerOpenDuration"` // seconds
}

// AdminConfig protects the knowledge-base management routes.
type AdminConfig struct {
	Token string `json:"token" mapstructure:"token"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	// Propagate honors incoming W3C traceparent headers.
	Propagate bool `json:"propagate" mapstructure:"propagate"`
}

// DefaultConfig returns a single-node configuration: SQLite, in-memory cache, channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./padi.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Engine: EngineConfig{
			MinCF:            0.2,
			MaxResults:       3,
			MaxSuggestions:   4,
			MultiInfectionCF: 0.8,
			Gate:             "result.symptoms_matched >= result.min_symptom_match",
		},
		Limits: LimitsConfig{
			MaxDiagnosesPerDay:   20,
			DuplicateWindow:      10,
			BurstPerMinute:       30,
			RequestsPerSecond:    20,
			RequestBurst:         40,
			HistoryRetentionDays: 30,
			HistoryVisibleDays:   30,
		},
		Treatment: TreatmentConfig{
			Advisor:             "fallback",
			Timeout:             30,
			RatePerMinute:       30,
			BreakerMaxFailures:  3,
			BreakerOpenDuration: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ScaledConfig returns a multi-node configuration: PostgreSQL, Redis, NATS.
func ScaledConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "padi",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Treatment.Async = true
	cfg.Tracing.Propagate = true
	return cfg
}
