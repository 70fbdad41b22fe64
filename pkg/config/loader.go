package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "ASKGS_CONFIG"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, ASKGS_CONFIG env, ./config.yaml, /etc/askgs/config.yaml)
//  3. ASKGS_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile returns the first config file found, or "".
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv(EnvConfig); envPath != "" {
		return envPath
	}

	for _, path := range []string{"config.yaml", "/etc/askgs/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile parses path over cfg. Absent fields keep their defaults.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps ASKGS_* variables onto cfg. Malformed numeric,
// boolean and JSON values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"ASKGS_GATEWAY_PROVIDER":    &cfg.Gateway.Provider,
		"ASKGS_GATEWAY_URL":         &cfg.Gateway.BaseURL,
		"ASKGS_GATEWAY_API_KEY":     &cfg.Gateway.APIKey,
		"ASKGS_MODEL":               &cfg.Gateway.Model,
		"ASKGS_AZURE_ENDPOINT":      &cfg.Gateway.Azure.Endpoint,
		"ASKGS_AZURE_DEPLOYMENT":    &cfg.Gateway.Azure.Deployment,
		"ASKGS_AZURE_API_VERSION":   &cfg.Gateway.Azure.APIVersion,
		"ASKGS_ANSWER_ENGINE_TYPE":  &cfg.AnswerEngine.Type,
		"ASKGS_ANSWER_ENGINE_URL":   &cfg.AnswerEngine.URL,
		"ASKGS_PHRASE_TABLE":        &cfg.Classifier.PhraseTable,
		"ASKGS_STORAGE":             &cfg.Storage.Type,
		"ASKGS_POSTGRES_DSN":        &cfg.Storage.Postgres.DSN,
		"ASKGS_LIBSQL_PATH":         &cfg.Storage.LibSQL.Path,
		"ASKGS_AUTH_TYPE":           &cfg.Auth.Type,
		"ASKGS_JWT_SECRET":          &cfg.Auth.JWT.Secret,
		"ASKGS_ALLOW_ORIGIN":        &cfg.Server.AllowOrigin,
		"ASKGS_GUARDRAIL_MODEL":     &cfg.Guardrail.Model,
		"ASKGS_REWRITER_MODEL":      &cfg.Rewriter.Model,
		"ASKGS_MCP_TRANSPORT":       &cfg.AnswerEngine.MCP.Transport,
		"ASKGS_MCP_TOOL":            &cfg.AnswerEngine.MCP.Tool,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"ASKGS_PORT":                    &cfg.Server.Port,
		"ASKGS_MAX_TURNS":               &cfg.History.MaxTurns,
		"ASKGS_MAX_SESSIONS":            &cfg.History.MaxSessions,
		"ASKGS_ANSWER_ENGINE_MAX_STEPS": &cfg.AnswerEngine.MaxSteps,
		"ASKGS_GATEWAY_MAX_ATTEMPTS":    &cfg.Gateway.Retry.MaxAttempts,
	}
	var errs []string
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				continue
			}
			*dst = n
		}
	}

	if v := os.Getenv("ASKGS_MIRROR_STATUS_CODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ASKGS_MIRROR_STATUS_CODE: %v", err))
		} else {
			cfg.Server.MirrorStatusCode = b
		}
	}

	// ASKGS_API_KEYS: JSON array of API key entries.
	if v := os.Getenv("ASKGS_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			errs = append(errs, fmt.Sprintf("ASKGS_API_KEYS: %v", err))
		} else if len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	// ASKGS_ANSWER_ENGINE_HEADERS: JSON object of extra request headers.
	if v := os.Getenv("ASKGS_ANSWER_ENGINE_HEADERS"); v != "" {
		var headers map[string]string
		if err := json.Unmarshal([]byte(v), &headers); err != nil {
			errs = append(errs, fmt.Sprintf("ASKGS_ANSWER_ENGINE_HEADERS: %v", err))
		} else {
			cfg.AnswerEngine.Headers = headers
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// resolveFileReferences fills each secret from its _file companion when
// the secret itself is empty.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name string
		file string
		dst  *string
	}{
		{"gateway.api_key_file", cfg.Gateway.APIKeyFile, &cfg.Gateway.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
		{"answer_engine.mcp.auth.client_id_file", cfg.AnswerEngine.MCP.Auth.ClientIDFile, &cfg.AnswerEngine.MCP.Auth.ClientID},
		{"answer_engine.mcp.auth.client_secret_file", cfg.AnswerEngine.MCP.Auth.ClientSecretFile, &cfg.AnswerEngine.MCP.Auth.ClientSecret},
	}
	for i := range cfg.Auth.APIKeys {
		refs = append(refs, struct {
			name string
			file string
			dst  *string
		}{fmt.Sprintf("auth.api_keys[%d].key_file", i), cfg.Auth.APIKeys[i].KeyFile, &cfg.Auth.APIKeys[i].Key})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.dst != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.dst = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding
// whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
