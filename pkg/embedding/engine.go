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

// Package embedding turns text into vectors for semantic knowledge search.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates the embedding of one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for several texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size, or 0 when unknown until first use.
	Dimensions() int

	// Name returns "<provider>:<model>".
	Name() string
}

// Config selects and configures an engine.
type Config struct {
	// Provider is "ollama", "openai" or "genai".
	Provider string

	// Endpoint is the server base URL (ollama, openai-compatible).
	Endpoint string

	Model  string
	APIKey string

	// TaskType is passed to genai (e.g. RETRIEVAL_QUERY).
	TaskType string

	Timeout time.Duration
}

// NewEngine creates the configured engine.
func NewEngine(ctx context.Context, cfg Config) (Engine, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		return NewOllamaEngine(cfg.Endpoint, cfg.Model, cfg.Timeout), nil
	case "openai":
		return NewOpenAIEngine(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "genai", "gemini":
		return NewGenAIEngine(ctx, cfg.APIKey, cfg.Model, cfg.TaskType)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use ollama, openai or genai)", cfg.Provider)
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Zero vectors have similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}
