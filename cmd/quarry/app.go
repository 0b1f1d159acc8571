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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/agent"
	"github.com/quarrydata/quarry/pkg/catalog"
	"github.com/quarrydata/quarry/pkg/contextbuilder"
	"github.com/quarrydata/quarry/pkg/embedding"
	"github.com/quarrydata/quarry/pkg/fabric"
	"github.com/quarrydata/quarry/pkg/guardrails"
	"github.com/quarrydata/quarry/pkg/knowledge"
	"github.com/quarrydata/quarry/pkg/learning"
	"github.com/quarrydata/quarry/pkg/llm/factory"
	"github.com/quarrydata/quarry/pkg/observability"
	"github.com/quarrydata/quarry/pkg/shuttle"
	"github.com/quarrydata/quarry/pkg/shuttle/builtin"
)

// App is the wired set of components behind ask and serve.
type App struct {
	Config      *Config
	Tracer      observability.Tracer
	Connections *fabric.Connections
	Access      *guardrails.AccessControl
	Store       *knowledge.Store
	Searcher    knowledge.Searcher
	Catalog     *catalog.Library
	Learner     *learning.Machine
	Agent       *agent.Agent

	closers []func() error
}

// newApp opens every configured connection and the knowledge store, loads
// the catalog and builds the agent.
func newApp(ctx context.Context, cfg *Config) (app *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	app = &App{Config: cfg, Tracer: observability.NewZapTracer(nil)}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.Access = guardrails.NewAccessControl(connectionPolicies(cfg)...)
	if app.Connections, err = openConnections(ctx, cfg, app.Tracer); err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.Connections.Close)

	if app.Store, err = openKnowledge(ctx, cfg, app.Tracer); err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.Store.Close)

	if app.Searcher, err = newSearcher(ctx, cfg, app.Store); err != nil {
		return nil, err
	}

	app.Catalog = catalog.NewLibrary(cfg.Catalog.Dir)
	if err := app.Catalog.Load(); err != nil {
		return nil, fmt.Errorf("failed to load catalog from %s: %w", cfg.Catalog.Dir, err)
	}

	app.Learner = learning.NewMachine(app.Store, learning.Config{
		Enabled:        cfg.Learning.Enabled,
		AutoSaveErrors: cfg.Learning.AutoSaveErrors,
	}, app.Tracer)

	provider, err := factory.New(ctx, llmConfig(cfg))
	if err != nil {
		return nil, err
	}

	deps := builtin.Deps{
		Connections: app.Connections,
		Validator: guardrails.NewValidator(guardrails.Config{
			AllowedStatements: cfg.SQL.AllowedStatements,
			ForbiddenKeywords: cfg.SQL.ForbiddenKeywords,
		}, app.Access),
		Access:   app.Access,
		Store:    app.Store,
		Searcher: app.Searcher,
		Learner:  app.Learner,
		Settings: builtin.Settings{
			MaxRows:           cfg.SQL.MaxRows,
			LearningEnabled:   cfg.Learning.Enabled,
			SampleRows:        cfg.SQL.SampleRows,
			DefaultConnection: app.Connections.Default(),
			SearchLimit:       cfg.Search.Limit,
		},
	}

	plugins, err := shuttle.LoadPlugins(cfg.Tools.Plugins, builtin.KnownPlugins(deps))
	if err != nil {
		return nil, fmt.Errorf("invalid tools.plugins:\n%w", err)
	}

	builder := contextbuilder.New(app.Catalog, app.Access, app.Searcher, app.Connections, contextbuilder.Options{
		PatternsLimit:     cfg.Context.PatternsLimit,
		LearningsLimit:    cfg.Context.LearningsLimit,
		MaxTokens:         cfg.Context.MaxTokens,
		DisableLiveSchema: cfg.Context.DisableLiveSchema,
	}).WithTracer(app.Tracer)

	app.Agent = agent.New(provider, deps,
		agent.WithContextBuilder(builder),
		agent.WithMinimalContext(cfg.Agent.MinimalContext),
		agent.WithSystemPrompt(cfg.Agent.SystemPrompt),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithMaxOutputTokens(cfg.Agent.MaxOutputTokens),
		agent.WithHistoryLength(cfg.Agent.HistoryLength),
		agent.WithToolParallelism(cfg.Agent.ToolParallelism),
		agent.WithRetry(agent.RetryConfig{
			Attempts:     uint(max(cfg.Agent.Retry.MaxAttempts, 1)),
			InitialDelay: time.Duration(cfg.Agent.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Agent.Retry.MaxDelayMs) * time.Millisecond,
		}),
		agent.WithPlugins(plugins),
		agent.WithTracer(app.Tracer),
	)

	zap.L().Info("quarry ready",
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()),
		zap.Strings("connections", app.Connections.Names()),
		zap.String("search", app.Searcher.Name()),
		zap.Int("catalog_tables", len(app.Catalog.Tables(""))),
		zap.Int("plugins", plugins.Len()),
	)
	return app, nil
}

// WatchCatalog reloads the catalog when its files change, until ctx ends.
func (a *App) WatchCatalog(ctx context.Context) error {
	if !a.Config.Catalog.Watch {
		return nil
	}
	w, err := a.Catalog.Watch(ctx, catalog.WatchOptions{
		OnReload: func(err error) {
			if err != nil {
				zap.L().Warn("catalog reload failed, keeping previous version", zap.Error(err))
				return
			}
			zap.L().Info("catalog reloaded", zap.Int("tables", len(a.Catalog.Tables(""))))
		},
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, w.Stop)
	return nil
}

// Close releases everything newApp opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func connectionPolicies(cfg *Config) []guardrails.ConnectionPolicy {
	policies := make([]guardrails.ConnectionPolicy, 0, len(cfg.Connections))
	for _, name := range cfg.ConnectionNames() {
		conn := cfg.Connections[name]
		policies = append(policies, guardrails.ConnectionPolicy{
			Name:          name,
			Label:         conn.Label,
			Description:   conn.Description,
			AllowedTables: conn.AllowedTables,
			DeniedTables:  conn.DeniedTables,
			HiddenColumns: conn.HiddenColumns,
		})
	}
	return policies
}

func openConnections(ctx context.Context, cfg *Config, tracer observability.Tracer) (*fabric.Connections, error) {
	conns := fabric.NewConnections()
	for _, name := range cfg.ConnectionNames() {
		cc := cfg.Connections[name]
		backend, err := fabric.OpenSQL(ctx, fabric.SQLConfig{
			Driver:       cc.Driver,
			DSN:          cc.DSN,
			MaxOpenConns: cc.MaxOpenConns,
		})
		if err != nil {
			_ = conns.Close()
			return nil, fmt.Errorf("connection %s: %w", name, err)
		}
		conns.Add(&fabric.Connection{
			Name:        name,
			Label:       cc.Label,
			Description: cc.Description,
			Backend:     fabric.NewInstrumentedBackend(backend, tracer),
		})
	}
	if cfg.DefaultConnection != "" {
		if err := conns.SetDefault(cfg.DefaultConnection); err != nil {
			_ = conns.Close()
			return nil, err
		}
	}
	return conns, nil
}

func openKnowledge(ctx context.Context, cfg *Config, tracer observability.Tracer) (*knowledge.Store, error) {
	if strings.EqualFold(cfg.Knowledge.Driver, "sqlite") && filepath.IsAbs(cfg.Knowledge.DSN) {
		if err := os.MkdirAll(filepath.Dir(cfg.Knowledge.DSN), 0750); err != nil {
			return nil, fmt.Errorf("knowledge store: %w", err)
		}
	}
	store, err := knowledge.Open(ctx, knowledge.Config{
		Driver:        cfg.Knowledge.Driver,
		DSN:           cfg.Knowledge.DSN,
		EncryptionKey: cfg.Knowledge.EncryptionKey,
	}, tracer)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: %w", err)
	}
	return store, nil
}

func newSearcher(ctx context.Context, cfg *Config, store *knowledge.Store) (knowledge.Searcher, error) {
	var opts knowledge.SearcherOptions
	if strings.EqualFold(cfg.Search.Driver, knowledge.DriverVector) {
		engine, err := embedding.NewEngine(ctx, cfg.EmbeddingConfig())
		if err != nil {
			return nil, err
		}
		opts.Engine = engine
		opts.MinSimilarity = cfg.Search.Vector.MinSimilarity
	}

	searcher, err := knowledge.NewSearcher(cfg.Search.Driver, store, opts)
	if err != nil {
		return nil, err
	}

	if vs, ok := searcher.(*knowledge.VectorSearcher); ok && cfg.Search.Vector.Backfill {
		n, err := vs.Backfill(ctx)
		if err != nil {
			zap.L().Warn("embedding backfill failed", zap.Int("embedded", n), zap.Error(err))
		} else if n > 0 {
			zap.L().Info("embedding backfill finished", zap.Int("embedded", n))
		}
	}
	return searcher, nil
}

func llmConfig(cfg *Config) factory.Config {
	return factory.Config{
		Provider:        cfg.LLM.Provider,
		Model:           cfg.LLM.Model,
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		MaxTokens:       cfg.LLM.MaxTokens,
		Temperature:     cfg.LLM.Temperature,
		ThinkingBudget:  cfg.LLM.ThinkingBudget,
		ContextWindow:   cfg.LLM.ContextWindow,
		Timeout:         time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Region:          cfg.LLM.Region,
		Profile:         cfg.LLM.Profile,
		AccessKeyID:     cfg.LLM.AccessKeyID,
		SecretAccessKey: cfg.LLM.SecretAccessKey,
		SessionToken:    cfg.LLM.SessionToken,
	}
}
