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
package builtin

import (
	"context"
	"time"

	"github.com/MakeNowJust/heredoc"

	"github.com/quarrydata/quarry/pkg/fabric"
	"github.com/quarrydata/quarry/pkg/shuttle"
)

// Optional tools enabled by name through tools.plugins.
const (
	PluginCurrentTime     = "current_time"
	PluginListConnections = "list_connections"
)

// KnownPlugins returns the factories of the optional tools. Factories are
// called per question.
func KnownPlugins(deps Deps) map[string]shuttle.PluginFactory {
	return map[string]shuttle.PluginFactory{
		PluginCurrentTime: func() shuttle.Tool {
			return &CurrentTimeTool{now: time.Now}
		},
		PluginListConnections: func() shuttle.Tool {
			return &ListConnectionsTool{connections: deps.Connections}
		},
	}
}

// CurrentTimeTool tells the model today's date, so relative periods such as
// "last week" resolve to literal dates in SQL.
type CurrentTimeTool struct {
	now func() time.Time
}

func (t *CurrentTimeTool) Name() string { return PluginCurrentTime }

func (t *CurrentTimeTool) Description() string {
	return heredoc.Doc(`
		Return the current date and time. Call it before writing SQL for
		relative periods like "yesterday" or "last month".
	`)
}

func (t *CurrentTimeTool) InputSchema() *shuttle.JSONSchema {
	return shuttle.NewObjectSchema(
		"Parameters for the current time",
		map[string]*shuttle.JSONSchema{
			"timezone": shuttle.NewStringSchema("IANA time zone, e.g. Europe/Berlin (default UTC)"),
		},
		nil,
	)
}

func (t *CurrentTimeTool) Execute(ctx context.Context, params map[string]interface{}) (*shuttle.Result, error) {
	loc := time.UTC
	if name := stringParam(params, "timezone"); name != "" {
		l, err := time.LoadLocation(name)
		if err != nil {
			return shuttle.Failuref(CodeInvalidParams, "unknown timezone %q", name), nil
		}
		loc = l
	}
	now := t.now().In(loc)
	return shuttle.Success(map[string]interface{}{
		"now":      now.Format(time.RFC3339),
		"date":     now.Format(time.DateOnly),
		"weekday":  now.Weekday().String(),
		"timezone": loc.String(),
	}), nil
}

// ListConnectionsTool lists the databases the agent can query.
type ListConnectionsTool struct {
	connections *fabric.Connections
}

func (t *ListConnectionsTool) Name() string { return PluginListConnections }

func (t *ListConnectionsTool) Description() string {
	return "List the configured database connections with their descriptions. Pass a name as the connection argument of the other tools."
}

func (t *ListConnectionsTool) InputSchema() *shuttle.JSONSchema {
	return shuttle.NewObjectSchema("No parameters", map[string]*shuttle.JSONSchema{}, nil)
}

func (t *ListConnectionsTool) Execute(ctx context.Context, params map[string]interface{}) (*shuttle.Result, error) {
	if t.connections == nil {
		return shuttle.Failure(CodeUnknownConnection, "no database connection configured"), nil
	}
	names := t.connections.Names()
	list := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		conn, err := t.connections.Get(name)
		if err != nil {
			continue
		}
		entry := map[string]interface{}{"name": conn.Name}
		if conn.Label != "" {
			entry["label"] = conn.Label
		}
		if conn.Description != "" {
			entry["description"] = conn.Description
		}
		if conn.Backend != nil {
			entry["dialect"] = conn.Backend.Name()
		}
		list = append(list, entry)
	}
	return shuttle.Success(map[string]interface{}{
		"connections": list,
		"default":     t.connections.Default(),
	}), nil
}
