package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Server
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	APIPrefix   string `json:"api_prefix"`
	LogLevel    string `json:"log_level"`

	// Auth
	APIKeyHeader       string   `json:"api_key_header"`
	APIKeys            []string `json:"api_keys"`
	EnableAuth         bool     `json:"enable_auth"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute"`

	// Storage (application metadata: prompts, connections, generations)
	DatabaseURL string `json:"database_url"`

	// Query execution limits
	UpperLimitQueryReturnRows int `json:"upper_limit_query_return_rows"`
	QueryTimeoutMs            int `json:"query_timeout_ms"`

	// Reasoning trace
	ObservationMaxLength int `json:"observation_max_length"`

	// AI / LLM
	AnthropicAPIKey    string `json:"anthropic_api_key"`
	AnthropicBaseURL   string `json:"anthropic_base_url"` // override for custom proxy
	Model              string `json:"model"`
	AgentMaxIterations int    `json:"agent_max_iterations"`
	AgentMaxTokens     int    `json:"agent_max_tokens"`
	AgentTimeout       int    `json:"agent_timeout"`

	EnableAuditLogging bool `json:"enable_audit_logging"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:                      DefaultHost,
		Port:                      DefaultPort,
		Environment:               DefaultEnvironment,
		APIPrefix:                 DefaultAPIPrefix,
		LogLevel:                  DefaultLogLevel,
		APIKeyHeader:              DefaultAPIKeyHeader,
		EnableAuth:                false,
		RateLimitPerMinute:        DefaultRateLimitPerMinute,
		UpperLimitQueryReturnRows: DefaultUpperLimitQueryReturnRows,
		QueryTimeoutMs:            DefaultQueryTimeoutMs,
		ObservationMaxLength:      DefaultObservationMaxLength,
		AgentMaxIterations:        DefaultAgentMaxIterations,
		AgentMaxTokens:            DefaultAgentMaxTokens,
		AgentTimeout:              DefaultAgentTimeout,
		EnableAuditLogging:        true,
	}

	// Load from JSON config file if specified
	if path := getEnv("SQLFORGE_CONFIG", ""); path != "" {
		if err := loadJSON(path, cfg); err != nil {
			return nil, err
		}
	}

	// Environment overrides
	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadJSON(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := getEnv("SQLFORGE_HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("SQLFORGE_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("SQLFORGE_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("SQLFORGE_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("SQLFORGE_API_KEYS", ""); v != "" {
		cfg.APIKeys = strings.Split(v, ",")
		cfg.EnableAuth = true
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitPerMinute = n
		}
	}
	if v := getEnv("DATABASE_URL", ""); v != "" {
		cfg.DatabaseURL = v
	}
	if v := getEnv("UPPER_LIMIT_QUERY_RETURN_ROWS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.UpperLimitQueryReturnRows = n
		}
	}
	if v := getEnv("OBSERVATION_MAX_LENGTH", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ObservationMaxLength = n
		}
	}
	if v := getEnv("QUERY_TIMEOUT_MS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueryTimeoutMs = n
		}
	}
	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("SQLFORGE_MODEL", ""); v != "" {
		cfg.Model = v
	}
	if v := getEnv("AGENT_MAX_ITERATIONS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AgentMaxIterations = n
		}
	}
	if v := getEnv("AGENT_TIMEOUT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AgentTimeout = n
		}
	}
	if v := getEnv("ENABLE_AUDIT_LOGGING", ""); v != "" {
		cfg.EnableAuditLogging = v == "true" || v == "1"
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
