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
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
llm:
  provider: openai
  api_key: sk-test
  model: gpt-4.1-mini
agent:
  max_iterations: 6
connections:
  shop:
    driver: sqlite
    dsn: ":memory:"
    denied_tables: [secrets]
    hidden_columns:
      users: [password_hash]
  analytics:
    driver: postgres
    dsn: postgres://localhost/analytics
default_connection: shop
tools:
  plugins: [current_time]
`

func noKeyring(t *testing.T) {
	t.Helper()
	orig := keyringGet
	keyringGet = func(service, user string) (string, error) { return "", errors.New("no keyring") }
	t.Cleanup(func() { keyringGet = orig })
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quarry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	noKeyring(t)
	t.Setenv("QUARRY_DATA_DIR", t.TempDir())

	cfg, err := loadConfig(viper.New(), writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 6, cfg.Agent.MaxIterations)
	assert.Equal(t, 10, cfg.Agent.HistoryLength)
	assert.Equal(t, 1000, cfg.SQL.MaxRows)
	assert.Equal(t, []string{"SELECT", "WITH"}, cfg.SQL.AllowedStatements)
	assert.Equal(t, "keyword", cfg.Search.Driver)
	assert.Equal(t, "@daily", cfg.Learning.MaintenanceSchedule)
	assert.Equal(t, []string{"analytics", "shop"}, cfg.ConnectionNames())
	assert.Equal(t, []string{"password_hash"}, cfg.Connections["shop"].HiddenColumns["users"])
	assert.Equal(t, []string{"current_time"}, cfg.Tools.Plugins)
	assert.Equal(t, filepath.Join(os.Getenv("QUARRY_DATA_DIR"), "knowledge.db"), cfg.Knowledge.DSN)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	noKeyring(t)
	t.Setenv("QUARRY_AGENT_MAX_ITERATIONS", "3")
	t.Setenv("QUARRY_LLM_MODEL", "gpt-4.1")
	t.Setenv("QUARRY_SERVER_PORT", "9090")

	cfg, err := loadConfig(viper.New(), writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Agent.MaxIterations)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadConfig_ProviderKeyFromEnvironment(t *testing.T) {
	noKeyring(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")

	cfg, err := loadConfig(viper.New(), writeConfig(t, `
llm:
  provider: anthropic
connections:
  main: {driver: sqlite, dsn: ":memory:"}
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-env", cfg.LLM.APIKey)
}

func TestLoadConfig_SecretsFromKeyring(t *testing.T) {
	orig := keyringGet
	keyringGet = func(service, user string) (string, error) {
		assert.Equal(t, ServiceName, service)
		switch user {
		case keyLLMAPIKey:
			return "from-keyring", nil
		case keyEmbeddingAPIKey:
			return "embed-key", nil
		}
		return "", errors.New("not found")
	}
	t.Cleanup(func() { keyringGet = orig })

	cfg, err := loadConfig(viper.New(), writeConfig(t, `
llm:
  provider: openai
connections:
  main: {driver: sqlite, dsn: ":memory:"}
`))
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", cfg.LLM.APIKey)
	assert.Equal(t, "embed-key", cfg.Search.Vector.APIKey)

	// Values already set are never replaced.
	cfg, err = loadConfig(viper.New(), writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoadConfig_BrokenFile(t *testing.T) {
	noKeyring(t)
	_, err := loadConfig(viper.New(), writeConfig(t, "llm: [unclosed"))
	assert.Error(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	noKeyring(t)
	cfg, err := loadConfig(viper.New(), writeConfig(t, `
llm:
  provider: watson
agent:
  max_iterations: 0
connections:
  a: {driver: oracle, dsn: ""}
default_connection: b
learning:
  retention_days: -1
search:
  driver: magic
server:
  port: 70000
`))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`llm.provider "watson"`,
		"agent.max_iterations",
		"connections.a",
		"connections.a.dsn is required",
		`default_connection "b"`,
		"learning.retention_days",
		`search.driver "magic"`,
		"invalid server.port",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_RequiresAPIKeyAndConnections(t *testing.T) {
	cfg := &Config{
		LLM:    LLMConfig{Provider: "anthropic"},
		Agent:  AgentConfig{MaxIterations: 1},
		SQL:    SQLConfig{MaxRows: 1},
		Server: ServerConfig{Port: 8080},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
	assert.Contains(t, err.Error(), "at least one entry under connections")

	cfg.LLM = LLMConfig{Provider: "ollama"}
	cfg.Connections = map[string]ConnectionConfig{"main": {Driver: "sqlite", DSN: ":memory:"}}
	assert.NoError(t, cfg.Validate())

	cfg.LLM = LLMConfig{Provider: "vllm", BaseURL: "http://localhost:8000/v1"}
	assert.NoError(t, cfg.Validate())
}

func TestConnectionPolicies(t *testing.T) {
	noKeyring(t)
	cfg, err := loadConfig(viper.New(), writeConfig(t, testConfig))
	require.NoError(t, err)

	policies := connectionPolicies(cfg)
	require.Len(t, policies, 2)
	assert.Equal(t, "analytics", policies[0].Name)
	assert.Equal(t, "shop", policies[1].Name)
	assert.Equal(t, []string{"secrets"}, policies[1].DeniedTables)
}

func TestMaskSecrets(t *testing.T) {
	masked := maskSecrets(map[string]interface{}{
		"llm": map[string]interface{}{"provider": "openai", "api_key": "sk-live"},
		"connections": map[string]interface{}{
			"shop": map[string]interface{}{"driver": "postgres", "dsn": "postgres://u:pw@h/db"},
		},
		"knowledge": map[string]interface{}{"encryption_key": ""},
	})

	llm := masked["llm"].(map[string]interface{})
	assert.Equal(t, "openai", llm["provider"])
	assert.Equal(t, "********", llm["api_key"])
	shop := masked["connections"].(map[string]interface{})["shop"].(map[string]interface{})
	assert.Equal(t, "********", shop["dsn"])
	assert.Equal(t, "", masked["knowledge"].(map[string]interface{})["encryption_key"])
}

func TestIsSecretKey(t *testing.T) {
	assert.True(t, isSecretKey(keyLLMAPIKey))
	assert.True(t, isSecretKey(keyKnowledgeKey))
	assert.False(t, isSecretKey("llm.provider"))
}
