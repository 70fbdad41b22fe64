// Package config provides unified configuration for the askgs service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (ASKGS_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// The result is read-only after startup.
package config

import (
	"slices"
	"time"

	"github.com/knikam3027/jnj/pkg/provider"
	"github.com/knikam3027/jnj/pkg/rewriter"
)

// Config holds all configuration for the askgs service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Guardrail     GuardrailConfig     `yaml:"guardrail"`
	Rewriter      RewriterConfig      `yaml:"rewriter"`
	AnswerEngine  AnswerEngineConfig  `yaml:"answer_engine"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	History       HistoryConfig       `yaml:"history"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8506
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 180s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`   // default: 1 MiB
	MaxInputLength  int           `yaml:"max_input_length"` // characters, default: 10000

	// MirrorStatusCode sends the envelope statusCode as the HTTP status.
	MirrorStatusCode bool `yaml:"mirror_status_code"`

	AllowOrigin string `yaml:"allow_origin"` // default: "*"
}

// GatewayConfig selects and tunes the language model backend.
type GatewayConfig struct {
	Provider   string               `yaml:"provider"` // "openai" or "azure", default: "openai"
	BaseURL    string               `yaml:"base_url"` // openai-compatible server
	APIKey     string               `yaml:"api_key"`
	APIKeyFile string               `yaml:"api_key_file"`
	Model      string               `yaml:"model"`
	Timeout    time.Duration        `yaml:"timeout"` // per attempt, default: 30s
	Retry      provider.RetryPolicy `yaml:"retry"`
	Sampling   provider.Sampling    `yaml:"sampling"`
	Azure      AzureConfig          `yaml:"azure"`
}

// AzureConfig holds Azure OpenAI deployment settings.
type AzureConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// GuardrailConfig holds safety gate settings.
type GuardrailConfig struct {
	Model        string   `yaml:"model"` // default: gateway.model
	BlockedTerms []string `yaml:"blocked_terms"`
	PromptFile   string   `yaml:"prompt_file"` // replaces the built-in policy prompt
}

// RewriterConfig holds query rewriter settings.
type RewriterConfig struct {
	Model              string   `yaml:"model"`         // default: gateway.model
	HistoryTurns       int      `yaml:"history_turns"` // default: 3
	Acronyms           []string `yaml:"acronyms"` // replaces the built-in list
	AcronymMaxDistance int      `yaml:"acronym_max_distance"` // default: 1
	KeepWords          []string `yaml:"keep_words"`
	LowInfoTokens      []string `yaml:"low_info_tokens"`
}

// AnswerEngineConfig selects the answer engine backend.
type AnswerEngineConfig struct {
	Type     string            `yaml:"type"` // "http" or "mcp", default: "http"
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`   // default: 60s
	MaxSteps int               `yaml:"max_steps"` // default: 25
	MCP      MCPConfig         `yaml:"mcp"`
}

// MCPConfig holds settings used when answer_engine.type is "mcp".
type MCPConfig struct {
	Transport string        `yaml:"transport"` // "streamable-http" or "sse"
	Tool      string        `yaml:"tool"`      // default: "answer"
	Auth      MCPAuthConfig `yaml:"auth"`
}

// MCPAuthConfig holds OAuth client credentials for the MCP server.
type MCPAuthConfig struct {
	Type             string   `yaml:"type"` // "" or "oauth_client_credentials"
	TokenURL         string   `yaml:"token_url"`
	ClientID         string   `yaml:"client_id"`
	ClientIDFile     string   `yaml:"client_id_file"`
	ClientSecret     string   `yaml:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file"`
	Scopes           []string `yaml:"scopes"`
}

// ClassifierConfig holds response classifier settings.
type ClassifierConfig struct {
	// PhraseTable is a YAML phrase table. Empty uses the built-in table.
	PhraseTable string `yaml:"phrase_table"`
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	MaxTurns      int           `yaml:"max_turns"`      // default: 8
	MaxSessions   int           `yaml:"max_sessions"`   // memory store only, default: 10000
	IdleTTL       time.Duration `yaml:"idle_ttl"`       // memory store only, default: 1h
	SweepInterval time.Duration `yaml:"sweep_interval"` // default: 5m
}

// StorageConfig selects the session store.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory", "postgres" or "libsql", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
	LibSQL   LibSQLConfig   `yaml:"libsql"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// LibSQLConfig holds embedded libSQL settings.
type LibSQLConfig struct {
	Path string `yaml:"path"` // default: "data/askgs.db"
}

// AuthConfig holds caller authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"` // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"`
	Subject     string `yaml:"subject" json:"subject"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds HMAC JWT settings.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
	UserClaim  string `yaml:"user_claim"`
	TierClaim  string `yaml:"tier_claim"`
}

// RateLimitConfig holds per-subject limits. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int                  `yaml:"requests_per_minute"`
	Tiers             map[string]TierLimit `yaml:"tiers"`
}

// TierLimit is the limit of one service tier.
type TierLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// LoggingConfig holds log settings. ASKGS_LOG_LEVEL, ASKGS_LOG_FORMAT and
// ASKGS_DEBUG take precedence.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "INFO"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8506,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    180 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			MaxInputLength:  10000,
			AllowOrigin:     "*",
		},
		Gateway: GatewayConfig{
			Provider: "openai",
			Timeout:  30 * time.Second,
			Retry:    provider.DefaultRetryPolicy(),
			Sampling: provider.DefaultSampling(),
		},
		Rewriter: RewriterConfig{
			HistoryTurns:       3,
			Acronyms:           slices.Clone(rewriter.DefaultAcronyms),
			AcronymMaxDistance: 1,
			KeepWords:          slices.Clone(rewriter.DefaultKeepWords),
			LowInfoTokens:      slices.Clone(rewriter.DefaultLowInfoTokens),
		},
		AnswerEngine: AnswerEngineConfig{
			Type:     "http",
			Timeout:  60 * time.Second,
			MaxSteps: 25,
		},
		History: HistoryConfig{
			MaxTurns:      8,
			MaxSessions:   10000,
			IdleTTL:       time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns:       25,
				MigrateOnStart: true,
			},
			LibSQL: LibSQLConfig{Path: "data/askgs.db"},
		},
		Auth: AuthConfig{Type: "none"},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
		Logging: LoggingConfig{Level: "INFO", Format: "text"},
	}
}

// GuardrailModel returns the model used by the safety gate.
func (c *Config) GuardrailModel() string {
	if c.Guardrail.Model != "" {
		return c.Guardrail.Model
	}
	return c.Gateway.Model
}

// RewriterModel returns the model used by the query rewriter.
func (c *Config) RewriterModel() string {
	if c.Rewriter.Model != "" {
		return c.Rewriter.Model
	}
	return c.Gateway.Model
}
