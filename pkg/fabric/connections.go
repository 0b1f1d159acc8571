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
package fabric

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Connection is one named logical database the agent may query.
type Connection struct {
	Name        string
	Label       string
	Description string
	Backend     ExecutionBackend
}

// Connections holds the configured connections and the default one. It is
// built at startup and read-only afterwards except for Add.
type Connections struct {
	mu          sync.RWMutex
	byName      map[string]*Connection
	defaultName string
}

// NewConnections creates a registry. The first connection becomes the
// default unless SetDefault is called.
func NewConnections(conns ...*Connection) *Connections {
	c := &Connections{byName: make(map[string]*Connection)}
	for _, conn := range conns {
		c.Add(conn)
	}
	return c
}

// Add registers conn, replacing any connection with the same name.
func (c *Connections) Add(conn *Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName[conn.Name] = conn
	if c.defaultName == "" {
		c.defaultName = conn.Name
	}
}

// SetDefault selects the connection used when callers pass no name.
func (c *Connections) SetDefault(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byName[name]; !ok {
		return fmt.Errorf("unknown connection: %s", name)
	}
	c.defaultName = name
	return nil
}

// Default returns the default connection name.
func (c *Connections) Default() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultName
}

// Get resolves name, or the default connection when name is empty.
func (c *Connections) Get(name string) (*Connection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name == "" {
		name = c.defaultName
	}
	if name == "" {
		return nil, fmt.Errorf("no database connection configured")
	}
	conn, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown connection: %s (available: %s)", name, strings.Join(c.namesLocked(), ", "))
	}
	return conn, nil
}

// Names returns connection names, sorted.
func (c *Connections) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.namesLocked()
}

func (c *Connections) namesLocked() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every backend.
func (c *Connections) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for name, conn := range c.byName {
		if conn.Backend == nil {
			continue
		}
		if err := conn.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
