// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"github.com/quarrydata/quarry/pkg/config"
	"github.com/quarrydata/quarry/pkg/embedding"
	"github.com/quarrydata/quarry/pkg/fabric"
	"github.com/quarrydata/quarry/pkg/knowledge"
	"github.com/quarrydata/quarry/pkg/llm/factory"
)

const (
	// ServiceName for keyring storage
	ServiceName = "quarry"
	// DefaultConfigFileName is the name of the config file
	DefaultConfigFileName = "quarry"
)

// Config holds all configuration for quarry.
// Priority: CLI flags > env vars > config file > defaults
type Config struct {
	// DataDir is computed from QUARRY_DATA_DIR or ~/.quarry and is not read
	// from the config file.
	DataDir string `mapstructure:"-"`

	LLM               LLMConfig                   `mapstructure:"llm"`
	Agent             AgentConfig                 `mapstructure:"agent"`
	SQL               SQLConfig                   `mapstructure:"sql"`
	Connections       map[string]ConnectionConfig `mapstructure:"connections"`
	DefaultConnection string                      `mapstructure:"default_connection"`
	Learning          LearningConfig              `mapstructure:"learning"`
	Search            SearchConfig                `mapstructure:"search"`
	Knowledge         KnowledgeConfig             `mapstructure:"knowledge"`
	Catalog           CatalogConfig               `mapstructure:"catalog"`
	Context           ContextConfig               `mapstructure:"context"`
	Server            ServerConfig                `mapstructure:"server"`
	Logging           LoggingConfig               `mapstructure:"logging"`
	Tools             ToolsConfig                 `mapstructure:"tools"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider       string   `mapstructure:"provider"`
	Model          string   `mapstructure:"model"`
	APIKey         string   `mapstructure:"api_key"` // From CLI/env/keyring only
	BaseURL        string   `mapstructure:"base_url"`
	MaxTokens      int      `mapstructure:"max_tokens"`
	Temperature    *float64 `mapstructure:"temperature"`
	ThinkingBudget int      `mapstructure:"thinking_budget"`
	ContextWindow  int      `mapstructure:"context_window"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`

	// Bedrock
	Region          string `mapstructure:"region"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`     // From CLI/env/keyring only
	SecretAccessKey string `mapstructure:"secret_access_key"` // From CLI/env/keyring only
	SessionToken    string `mapstructure:"session_token"`     // From CLI/env/keyring only
}

// AgentConfig tunes the question loop.
type AgentConfig struct {
	MaxIterations   int         `mapstructure:"max_iterations"`
	MaxOutputTokens int         `mapstructure:"max_output_tokens"`
	HistoryLength   int         `mapstructure:"history_length"`
	ToolParallelism int         `mapstructure:"tool_parallelism"`
	MinimalContext  bool        `mapstructure:"minimal_context"`
	SystemPrompt    string      `mapstructure:"system_prompt"`
	Retry           RetryConfig `mapstructure:"retry"`
}

// RetryConfig configures LLM call retries.
type RetryConfig struct {
	MaxAttempts    int `mapstructure:"max_attempts"`
	InitialDelayMs int `mapstructure:"initial_delay_ms"`
	MaxDelayMs     int `mapstructure:"max_delay_ms"`
}

// SQLConfig configures query safety and limits.
type SQLConfig struct {
	AllowedStatements []string `mapstructure:"allowed_statements"`
	ForbiddenKeywords []string `mapstructure:"forbidden_keywords"`
	MaxRows           int      `mapstructure:"max_rows"`
	SampleRows        int      `mapstructure:"sample_rows"`
}

// ConnectionConfig is one database the agent may query.
type ConnectionConfig struct {
	Driver        string              `mapstructure:"driver"`
	DSN           string              `mapstructure:"dsn"`
	Label         string              `mapstructure:"label"`
	Description   string              `mapstructure:"description"`
	AllowedTables []string            `mapstructure:"allowed_tables"`
	DeniedTables  []string            `mapstructure:"denied_tables"`
	HiddenColumns map[string][]string `mapstructure:"hidden_columns"`
	MaxOpenConns  int                 `mapstructure:"max_open_conns"`
}

// LearningConfig configures the learning machine and its maintenance.
type LearningConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	AutoSaveErrors      bool   `mapstructure:"auto_save_errors"`
	RetentionDays       int    `mapstructure:"retention_days"`
	MaintenanceSchedule string `mapstructure:"maintenance_schedule"`
}

// SearchConfig selects the knowledge search driver.
type SearchConfig struct {
	Driver string       `mapstructure:"driver"`
	Limit  int          `mapstructure:"limit"`
	Vector VectorConfig `mapstructure:"vector"`
}

// VectorConfig configures the embedding engine of the vector driver.
type VectorConfig struct {
	Provider      string  `mapstructure:"provider"`
	Endpoint      string  `mapstructure:"endpoint"`
	Model         string  `mapstructure:"model"`
	APIKey        string  `mapstructure:"api_key"` // From CLI/env/keyring only
	MinSimilarity float64 `mapstructure:"min_similarity"`
	Backfill      bool    `mapstructure:"backfill"`
}

// KnowledgeConfig locates the knowledge database.
type KnowledgeConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	EncryptionKey string `mapstructure:"encryption_key"` // From CLI/env/keyring only
}

// CatalogConfig locates the semantic layer documents.
type CatalogConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// ContextConfig tunes the system prompt context.
type ContextConfig struct {
	MaxTokens         int  `mapstructure:"max_tokens"`
	PatternsLimit     int  `mapstructure:"patterns_limit"`
	LearningsLimit    int  `mapstructure:"learnings_limit"`
	DisableLiveSchema bool `mapstructure:"disable_live_schema"`
}

// ServerConfig configures quarry serve.
type ServerConfig struct {
	Host                  string     `mapstructure:"host"`
	Port                  int        `mapstructure:"port"`
	RequestTimeoutSeconds int        `mapstructure:"request_timeout_seconds"`
	CheckProvider         bool       `mapstructure:"check_provider"`
	CORS                  CORSConfig `mapstructure:"cors"`
}

// CORSConfig configures browser access to the HTTP API.
type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxAge         int      `mapstructure:"max_age"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ToolsConfig enables optional tools.
type ToolsConfig struct {
	Plugins []string `mapstructure:"plugins"`
}

// LoadConfig loads configuration from file, environment, and defaults.
// Priority order:
// 1. CLI flags (bound with viper.BindPFlag)
// 2. Environment variables (QUARRY_LLM_PROVIDER, ...)
// 3. Config file
// 4. Defaults (lowest priority)
func LoadConfig(cfgFile string) (*Config, error) {
	return loadConfig(viper.GetViper(), cfgFile)
}

func loadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("QUARRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only sees keys viper already knows; these have no default.
	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(config.GetDataDir()) // respects QUARRY_DATA_DIR
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/quarry/")
		v.SetConfigName(DefaultConfigFileName) // quarry.yaml
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.DataDir = config.GetDataDir()
	if strings.EqualFold(cfg.Knowledge.Driver, "sqlite") {
		switch {
		case cfg.Knowledge.DSN == "":
			cfg.Knowledge.DSN = config.DefaultKnowledgeDSN()
		case !strings.HasPrefix(cfg.Knowledge.DSN, ":memory:") && !strings.HasPrefix(cfg.Knowledge.DSN, "file:"):
			cfg.Knowledge.DSN = config.ExpandPath(cfg.Knowledge.DSN)
		}
	}
	if cfg.Catalog.Dir != "" {
		cfg.Catalog.Dir = config.ExpandPath(cfg.Catalog.Dir)
	}
	if env := factory.APIKeyEnv(cfg.LLM.Provider); cfg.LLM.APIKey == "" && env != "" {
		cfg.LLM.APIKey = os.Getenv(env)
	}

	// Non-fatal: the keyring may be unavailable (headless Linux, containers).
	loadSecretsFromKeyring(&cfg)

	return &cfg, nil
}

var envOnlyKeys = []string{
	"default_connection",
	"llm.model",
	"llm.api_key",
	"llm.base_url",
	"llm.profile",
	"llm.access_key_id",
	"llm.secret_access_key",
	"llm.session_token",
	"search.vector.endpoint",
	"search.vector.api_key",
	"knowledge.dsn",
	"knowledge.encryption_key",
	"logging.file",
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", factory.ProviderAnthropic)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.region", "us-east-1")

	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.history_length", 10)
	v.SetDefault("agent.tool_parallelism", 4)
	v.SetDefault("agent.retry.max_attempts", 3)
	v.SetDefault("agent.retry.initial_delay_ms", 1000)
	v.SetDefault("agent.retry.max_delay_ms", 30000)

	v.SetDefault("sql.allowed_statements", []string{"SELECT", "WITH"})
	v.SetDefault("sql.max_rows", 1000)
	v.SetDefault("sql.sample_rows", 3)

	v.SetDefault("learning.enabled", true)
	v.SetDefault("learning.auto_save_errors", true)
	v.SetDefault("learning.retention_days", 0)
	v.SetDefault("learning.maintenance_schedule", "@daily")

	v.SetDefault("search.driver", knowledge.DriverKeyword)
	v.SetDefault("search.limit", 5)
	v.SetDefault("search.vector.provider", "ollama")
	v.SetDefault("search.vector.model", "nomic-embed-text")
	v.SetDefault("search.vector.min_similarity", 0.3)

	v.SetDefault("knowledge.driver", "sqlite")

	v.SetDefault("catalog.dir", config.GetSubDir("catalog"))
	v.SetDefault("catalog.watch", true)

	v.SetDefault("context.max_tokens", 8000)
	v.SetDefault("context.patterns_limit", 3)
	v.SetDefault("context.learnings_limit", 5)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("server.check_provider", true)
	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.cors.max_age", 86400)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks the configuration. Every problem is reported.
func (c *Config) Validate() error {
	var errs []error

	provider := factory.Normalize(c.LLM.Provider)
	if !contains(factory.Providers(), provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported (use %s)",
			c.LLM.Provider, strings.Join(factory.Providers(), ", ")))
	}
	switch provider {
	case factory.ProviderAnthropic, factory.ProviderOpenAI:
		if c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s API key is required (set --api-key, QUARRY_LLM_API_KEY, or save it with 'quarry config set-key %s')",
				c.LLM.Provider, keyLLMAPIKey))
		}
	case factory.ProviderBedrock:
		if c.LLM.Region == "" {
			errs = append(errs, errors.New("llm.region is required for bedrock"))
		}
	}

	if c.Agent.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be >= 1, got %d", c.Agent.MaxIterations))
	}
	if c.Agent.HistoryLength < 0 {
		errs = append(errs, fmt.Errorf("agent.history_length must be >= 0, got %d", c.Agent.HistoryLength))
	}
	if c.SQL.MaxRows < 1 {
		errs = append(errs, fmt.Errorf("sql.max_rows must be >= 1, got %d", c.SQL.MaxRows))
	}

	if len(c.Connections) == 0 {
		errs = append(errs, errors.New("at least one entry under connections is required"))
	}
	for _, name := range c.ConnectionNames() {
		conn := c.Connections[name]
		if _, err := fabric.DriverName(conn.Driver); err != nil {
			errs = append(errs, fmt.Errorf("connections.%s: %w", name, err))
		}
		if conn.DSN == "" {
			errs = append(errs, fmt.Errorf("connections.%s.dsn is required", name))
		}
	}
	if c.DefaultConnection != "" {
		if _, ok := c.Connections[c.DefaultConnection]; !ok {
			errs = append(errs, fmt.Errorf("default_connection %q is not configured", c.DefaultConnection))
		}
	}

	if c.Learning.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("learning.retention_days must be >= 0, got %d", c.Learning.RetentionDays))
	}

	switch strings.ToLower(c.Search.Driver) {
	case "", knowledge.DriverKeyword, knowledge.DriverFulltext:
	case knowledge.DriverVector:
		if c.Search.Vector.Model == "" {
			errs = append(errs, errors.New("search.vector.model is required for the vector driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("search.driver %q is not supported (use keyword, fulltext or vector)", c.Search.Driver))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port))
	}

	return errors.Join(errs...)
}

// ConnectionNames returns the configured connection names, sorted.
func (c *Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EmbeddingConfig converts the vector settings.
func (c *Config) EmbeddingConfig() embedding.Config {
	return embedding.Config{
		Provider: c.Search.Vector.Provider,
		Endpoint: c.Search.Vector.Endpoint,
		Model:    c.Search.Vector.Model,
		APIKey:   c.Search.Vector.APIKey,
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Keyring keys.
const (
	keyLLMAPIKey          = "llm_api_key"
	keyAWSAccessKeyID     = "aws_access_key_id"
	keyAWSSecretAccessKey = "aws_secret_access_key"
	keyEmbeddingAPIKey    = "embedding_api_key"
	keyKnowledgeKey       = "knowledge_encryption_key"
)

// SecretMapping maps a keyring key to a config field.
type SecretMapping struct {
	KeyringKey  string
	Description string
	IsSet       func(*Config) bool
	Setter      func(*Config, string)
}

// GetSecretMappings returns every secret that can come from the keyring.
func GetSecretMappings() []SecretMapping {
	return []SecretMapping{
		{
			KeyringKey:  keyLLMAPIKey,
			Description: "API key of the configured LLM provider",
			IsSet:       func(c *Config) bool { return c.LLM.APIKey != "" },
			Setter:      func(c *Config, v string) { c.LLM.APIKey = v },
		},
		{
			KeyringKey:  keyAWSAccessKeyID,
			Description: "AWS access key ID for Bedrock",
			IsSet:       func(c *Config) bool { return c.LLM.AccessKeyID != "" },
			Setter:      func(c *Config, v string) { c.LLM.AccessKeyID = v },
		},
		{
			KeyringKey:  keyAWSSecretAccessKey,
			Description: "AWS secret access key for Bedrock",
			IsSet:       func(c *Config) bool { return c.LLM.SecretAccessKey != "" },
			Setter:      func(c *Config, v string) { c.LLM.SecretAccessKey = v },
		},
		{
			KeyringKey:  keyEmbeddingAPIKey,
			Description: "API key of the embedding provider",
			IsSet:       func(c *Config) bool { return c.Search.Vector.APIKey != "" },
			Setter:      func(c *Config, v string) { c.Search.Vector.APIKey = v },
		},
		{
			KeyringKey:  keyKnowledgeKey,
			Description: "SQLCipher key of the knowledge database",
			IsSet:       func(c *Config) bool { return c.Knowledge.EncryptionKey != "" },
			Setter:      func(c *Config, v string) { c.Knowledge.EncryptionKey = v },
		},
	}
}

// keyringGet is replaced in tests.
var keyringGet = keyring.Get

func loadSecretsFromKeyring(cfg *Config) {
	for _, mapping := range GetSecretMappings() {
		if mapping.IsSet(cfg) {
			continue
		}
		if value, err := keyringGet(ServiceName, mapping.KeyringKey); err == nil && value != "" {
			mapping.Setter(cfg, value)
		}
	}
}

// SaveSecretToKeyring saves a secret to the system keyring.
func SaveSecretToKeyring(key, value string) error {
	return keyring.Set(ServiceName, key, value)
}

// DeleteSecretFromKeyring removes a secret from the system keyring.
func DeleteSecretFromKeyring(key string) error {
	return keyring.Delete(ServiceName, key)
}

// isSecretKey reports whether key is a known keyring key.
func isSecretKey(key string) bool {
	for _, m := range GetSecretMappings() {
		if m.KeyringKey == key {
			return true
		}
	}
	return false
}
