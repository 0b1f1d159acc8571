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
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PluginFactory builds a tool instance. Factories are called once per
// request so stateful plugins never share state across requests.
type PluginFactory func() Tool

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Plugins is the set of extra tools resolved from configuration.
type Plugins struct {
	factories map[string]PluginFactory
}

// LoadPlugins resolves each configured name against the known factories and
// checks the resulting tool against the capabilities every tool must have.
// All problems are reported together so startup fails once with the full list.
func LoadPlugins(names []string, known map[string]PluginFactory) (*Plugins, error) {
	p := &Plugins{factories: make(map[string]PluginFactory, len(names))}
	var errs []error

	for _, name := range names {
		factory, ok := known[name]
		if !ok {
			errs = append(errs, fmt.Errorf("plugin %q: no such tool (known: %s)", name, knownNames(known)))
			continue
		}
		if err := CheckTool(factory()); err != nil {
			errs = append(errs, fmt.Errorf("plugin %q: %w", name, err))
			continue
		}
		if _, dup := p.factories[name]; dup {
			errs = append(errs, fmt.Errorf("plugin %q: listed twice", name))
			continue
		}
		p.factories[name] = factory
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return p, nil
}

// CheckTool verifies that tool is usable by the loop.
func CheckTool(tool Tool) error {
	if tool == nil {
		return errors.New("factory returned nil tool")
	}
	if !toolNamePattern.MatchString(tool.Name()) {
		return fmt.Errorf("tool name %q is not snake_case", tool.Name())
	}
	if strings.TrimSpace(tool.Description()) == "" {
		return fmt.Errorf("tool %s has no description", tool.Name())
	}
	schema := tool.InputSchema()
	if schema == nil || schema.Type != "object" {
		return fmt.Errorf("tool %s must declare an object input schema", tool.Name())
	}
	for _, req := range schema.Required {
		if _, ok := schema.Properties[req]; !ok {
			return fmt.Errorf("tool %s requires undeclared property %q", tool.Name(), req)
		}
	}
	return nil
}

// RegisterInto adds a fresh instance of every plugin to registry. Plugins may
// not shadow tools already registered.
func (p *Plugins) RegisterInto(registry *Registry) error {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.factories))
	for name := range p.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := registry.RegisterStrict(p.factories[name]()); err != nil {
			return fmt.Errorf("plugin %q: %w", name, err)
		}
	}
	return nil
}

// Len returns the number of loaded plugins.
func (p *Plugins) Len() int {
	if p == nil {
		return 0
	}
	return len(p.factories)
}

func knownNames(known map[string]PluginFactory) string {
	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
