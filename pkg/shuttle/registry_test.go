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
package shuttle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterOverwrites(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&MockTool{MockName: "a", MockDescription: "first"})
	reg.Register(&MockTool{MockName: "a", MockDescription: "second"})

	assert.Equal(t, 1, reg.Count())
	tool, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", tool.Description())
}

func TestRegistry_RegisterStrict(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterStrict(&MockTool{MockName: "a"}))

	err := reg.RegisterStrict(&MockTool{MockName: "a"})
	require.ErrorIs(t, err, ErrToolExists)
	assert.Contains(t, err.Error(), "a")
}

func TestRegistry_ListIsSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"run_sql", "introspect_schema", "search_knowledge"} {
		reg.Register(&MockTool{MockName: name})
	}

	assert.Equal(t, []string{"introspect_schema", "run_sql", "search_knowledge"}, reg.List())
	tools := reg.ListTools()
	require.Len(t, tools, 3)
	assert.Equal(t, "introspect_schema", tools[0].Name())

	reg.Unregister("run_sql")
	assert.False(t, reg.IsRegistered("run_sql"))
	assert.Equal(t, 2, reg.Count())
}
