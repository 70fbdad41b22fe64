package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Every problem is reported, each with its field path.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 {
		add("server.port must be > 0, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes must be > 0, got %d", c.Server.MaxBodyBytes)
	}

	switch c.Gateway.Provider {
	case "openai":
		if c.Gateway.BaseURL == "" {
			add("gateway.base_url is required when gateway.provider is \"openai\"")
		}
	case "azure":
		if c.Gateway.Azure.Endpoint == "" {
			add("gateway.azure.endpoint is required when gateway.provider is \"azure\"")
		}
		if c.Gateway.Azure.Deployment == "" && c.Gateway.Model == "" {
			add("gateway.azure.deployment or gateway.model is required when gateway.provider is \"azure\"")
		}
	default:
		add("gateway.provider must be \"openai\" or \"azure\", got %q", c.Gateway.Provider)
	}
	if c.Gateway.Timeout <= 0 {
		add("gateway.timeout must be > 0, got %s", c.Gateway.Timeout)
	}
	if c.Gateway.Retry.MaxAttempts < 1 {
		add("gateway.retry.max_attempts must be >= 1, got %d", c.Gateway.Retry.MaxAttempts)
	}

	if c.Rewriter.HistoryTurns <= 0 {
		add("rewriter.history_turns must be > 0, got %d", c.Rewriter.HistoryTurns)
	}
	if c.Rewriter.AcronymMaxDistance < 0 {
		add("rewriter.acronym_max_distance must be >= 0, got %d", c.Rewriter.AcronymMaxDistance)
	}

	switch c.AnswerEngine.Type {
	case "http", "mcp":
	default:
		add("answer_engine.type must be \"http\" or \"mcp\", got %q", c.AnswerEngine.Type)
	}
	if c.AnswerEngine.URL == "" {
		add("answer_engine.url is required")
	}
	if c.AnswerEngine.Timeout <= 0 {
		add("answer_engine.timeout must be > 0, got %s", c.AnswerEngine.Timeout)
	}
	if c.AnswerEngine.MaxSteps <= 0 {
		add("answer_engine.max_steps must be > 0, got %d", c.AnswerEngine.MaxSteps)
	}
	switch c.AnswerEngine.MCP.Transport {
	case "", "sse", "streamable-http":
	default:
		add("answer_engine.mcp.transport must be \"sse\" or \"streamable-http\", got %q", c.AnswerEngine.MCP.Transport)
	}
	if a := c.AnswerEngine.MCP.Auth; a.Type == "oauth_client_credentials" {
		if a.TokenURL == "" || a.ClientID == "" || a.ClientSecret == "" {
			add("answer_engine.mcp.auth requires token_url, client_id and client_secret")
		}
	} else if a.Type != "" {
		add("answer_engine.mcp.auth.type must be \"oauth_client_credentials\", got %q", a.Type)
	}

	if c.History.MaxTurns <= 0 {
		add("history.max_turns must be > 0, got %d", c.History.MaxTurns)
	}
	if c.History.MaxSessions < 0 {
		add("history.max_sessions must be >= 0, got %d", c.History.MaxSessions)
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			add("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\"")
		}
	case "libsql":
		if c.Storage.LibSQL.Path == "" {
			add("storage.libsql.path is required when storage.type is \"libsql\"")
		}
	default:
		add("storage.type must be \"memory\", \"postgres\" or \"libsql\", got %q", c.Storage.Type)
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			add("auth.api_keys must not be empty when auth.type is \"apikey\"")
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" || k.Subject == "" {
				add("auth.api_keys[%d] requires key and subject", i)
			}
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" {
			add("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\"")
		}
	default:
		add("auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", c.Auth.Type)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		add("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return errors.Join(errs...)
}
