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

// Package factory creates an LLM provider from configuration.
package factory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/quarrydata/quarry/pkg/llm/anthropic"
	"github.com/quarrydata/quarry/pkg/llm/ollama"
	"github.com/quarrydata/quarry/pkg/llm/openai"
	"github.com/quarrydata/quarry/pkg/types"
)

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Config selects and configures a provider. Zero values fall back to the
// provider's defaults.
type Config struct {
	Provider string
	Model    string
	APIKey   string

	// BaseURL points openai at a compatible server, anthropic at a proxy
	// and ollama at its host.
	BaseURL string

	MaxTokens      int
	Temperature    *float64
	ThinkingBudget int
	ContextWindow  int
	Timeout        time.Duration

	// Bedrock settings, used when Provider is "bedrock".
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// apiKeyEnv names the variable read when Config.APIKey is empty.
var apiKeyEnv = map[string]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
}

// Providers returns the supported provider names, sorted.
func Providers() []string {
	names := []string{ProviderAnthropic, ProviderBedrock, ProviderOpenAI, ProviderOllama}
	sort.Strings(names)
	return names
}

// APIKeyEnv returns the environment variable holding the provider's API
// key, or "" when the provider needs none.
func APIKeyEnv(provider string) string {
	return apiKeyEnv[Normalize(provider)]
}

// New creates the configured provider.
func New(ctx context.Context, cfg Config) (types.LLMProvider, error) {
	provider := Normalize(cfg.Provider)
	if cfg.APIKey == "" {
		if env := apiKeyEnv[provider]; env != "" {
			cfg.APIKey = os.Getenv(env)
		}
	}

	switch provider {
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic requires an API key (set llm.api_key or %s)", apiKeyEnv[provider])
		}
		return newAnthropic(ctx, anthropic.Config{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			BaseURL:        cfg.BaseURL,
			MaxTokens:      cfg.MaxTokens,
			Temperature:    cfg.Temperature,
			ThinkingBudget: cfg.ThinkingBudget,
			Timeout:        cfg.Timeout,
		})

	case ProviderBedrock:
		return newAnthropic(ctx, anthropic.Config{
			Model:          cfg.Model,
			MaxTokens:      cfg.MaxTokens,
			Temperature:    cfg.Temperature,
			ThinkingBudget: cfg.ThinkingBudget,
			Timeout:        cfg.Timeout,
			Bedrock: &anthropic.BedrockConfig{
				Region:          cfg.Region,
				Profile:         cfg.Profile,
				AccessKeyID:     cfg.AccessKeyID,
				SecretAccessKey: cfg.SecretAccessKey,
				SessionToken:    cfg.SessionToken,
			},
		})

	case ProviderOpenAI:
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai requires an API key (set llm.api_key or %s)", apiKeyEnv[provider])
		}
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}), nil

	case ProviderOllama:
		return ollama.NewClient(ollama.Config{
			Endpoint:      cfg.BaseURL,
			Model:         cfg.Model,
			MaxTokens:     cfg.MaxTokens,
			Temperature:   cfg.Temperature,
			ContextWindow: cfg.ContextWindow,
			Timeout:       cfg.Timeout,
		}), nil

	case "":
		return nil, fmt.Errorf("no LLM provider configured (available: %s)", strings.Join(Providers(), ", "))
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (available: %s)", cfg.Provider, strings.Join(Providers(), ", "))
	}
}

func newAnthropic(ctx context.Context, cfg anthropic.Config) (types.LLMProvider, error) {
	client, err := anthropic.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Normalize lowercases provider and resolves aliases such as claude and
// vllm to the provider implementing them.
func Normalize(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	switch p {
	case "claude":
		return ProviderAnthropic
	case "openai-compatible", "vllm", "lmstudio":
		return ProviderOpenAI
	}
	return p
}
