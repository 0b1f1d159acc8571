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
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Library serves table docs and business rules. It is safe for concurrent
// use; Load swaps the whole snapshot at once.
type Library struct {
	dir string

	mu     sync.RWMutex
	tables []*TableDoc
	rules  []BusinessRule
}

// NewLibrary creates a library over dir. Call Load to read it.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// NewStaticLibrary creates a library from in-memory documents.
func NewStaticLibrary(tables []*TableDoc, rules []BusinessRule) *Library {
	return &Library{tables: tables, rules: rules}
}

// Dir returns the catalog directory, empty for static libraries.
func (lib *Library) Dir() string {
	return lib.dir
}

// Load reads tables/*.yaml and rules/*.yaml. Missing subdirectories are
// fine. On any invalid file the previous snapshot is kept and the error
// names every failing file.
func (lib *Library) Load() error {
	if lib.dir == "" {
		return nil
	}

	var (
		tables []*TableDoc
		rules  []BusinessRule
		errs   []error
	)

	tableFiles, err := yamlFiles(filepath.Join(lib.dir, "tables"))
	if err != nil {
		return err
	}
	for _, path := range tableFiles {
		var doc TableDoc
		if err := decodeFile(path, &doc); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := doc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		tables = append(tables, &doc)
	}

	ruleFiles, err := yamlFiles(filepath.Join(lib.dir, "rules"))
	if err != nil {
		return err
	}
	for _, path := range ruleFiles {
		var doc rulesFile
		if err := decodeFile(path, &doc); err != nil {
			errs = append(errs, err)
			continue
		}
		for i := range doc.Rules {
			if err := doc.Rules[i].Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			rules = append(rules, doc.Rules[i])
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}

	sort.SliceStable(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	lib.mu.Lock()
	lib.tables = tables
	lib.rules = rules
	lib.mu.Unlock()

	zap.L().Debug("catalog loaded",
		zap.String("dir", lib.dir),
		zap.Int("tables", len(tables)),
		zap.Int("rules", len(rules)))
	return nil
}

// Tables returns docs that apply to connection: those naming it and those
// naming no connection. An empty connection returns every doc.
func (lib *Library) Tables(connection string) []*TableDoc {
	lib.mu.RLock()
	defer lib.mu.RUnlock()

	out := make([]*TableDoc, 0, len(lib.tables))
	for _, t := range lib.tables {
		if connection == "" || t.Connection == "" || strings.EqualFold(t.Connection, connection) {
			out = append(out, t)
		}
	}
	return out
}

// Table returns the doc for name (case-insensitive) on connection.
func (lib *Library) Table(name, connection string) (*TableDoc, bool) {
	for _, t := range lib.Tables(connection) {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}

// Rules returns every business rule.
func (lib *Library) Rules() []BusinessRule {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	return append([]BusinessRule(nil), lib.rules...)
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isCatalogFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// isCatalogFile accepts YAML files and skips editor temporaries.
func isCatalogFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.Contains(base, "~") || strings.Contains(base, ".tmp") {
		return false
	}
	return strings.HasSuffix(base, ".yaml") || strings.HasSuffix(base, ".yml")
}

func decodeFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
