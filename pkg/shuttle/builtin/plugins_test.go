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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/shuttle"
)

func TestKnownPlugins_PassToolChecks(t *testing.T) {
	f := newFixture(t, Settings{})
	known := KnownPlugins(f.deps)

	plugins, err := shuttle.LoadPlugins([]string{PluginCurrentTime, PluginListConnections}, known)
	require.NoError(t, err)
	assert.Equal(t, 2, plugins.Len())

	ts := NewToolset(f.deps, "q")
	require.NoError(t, plugins.RegisterInto(ts.Registry))
	assert.True(t, ts.Registry.IsRegistered(PluginCurrentTime))
	assert.True(t, ts.Registry.IsRegistered(PluginListConnections))
}

func TestCurrentTimeTool(t *testing.T) {
	fixed := time.Date(2026, 10, 19, 22, 30, 0, 0, time.UTC)
	tool := &CurrentTimeTool{now: func() time.Time { return fixed }}
	exec := shuttle.NewExecutor(shuttle.NewRegistry())

	result := exec.ExecuteWithTool(context.Background(), tool, nil)
	require.True(t, result.Success)
	data := result.Data.(map[string]interface{})
	assert.Equal(t, "2026-10-19", data["date"])
	assert.Equal(t, "Monday", data["weekday"])
	assert.Equal(t, "UTC", data["timezone"])

	result = exec.ExecuteWithTool(context.Background(), tool, map[string]interface{}{"timezone": "Asia/Tokyo"})
	require.True(t, result.Success)
	assert.Equal(t, "2026-10-20", result.Data.(map[string]interface{})["date"])

	result = exec.ExecuteWithTool(context.Background(), tool, map[string]interface{}{"timezone": "Mars/Olympus"})
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage(), "unknown timezone")
}

func TestListConnectionsTool(t *testing.T) {
	f := newFixture(t, Settings{})
	tool := KnownPlugins(f.deps)[PluginListConnections]()

	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	data := result.Data.(map[string]interface{})
	assert.Equal(t, "main", data["default"])
	conns := data["connections"].([]map[string]interface{})
	require.Len(t, conns, 1)
	assert.Equal(t, "main", conns[0]["name"])
	assert.Equal(t, "sqlite", conns[0]["dialect"])

	empty := &ListConnectionsTool{}
	result, err = empty.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
}
