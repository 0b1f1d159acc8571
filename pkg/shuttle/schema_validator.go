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
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// NormalizeSchema ensures a JSON Schema is acceptable to strict providers.
//
// Common issues fixed:
// - Object types with nil properties -> empty map {}
// - Missing type fields -> inferred from structure
// - Nested objects with nil properties -> recursively normalized
func NormalizeSchema(schema *JSONSchema) *JSONSchema {
	if schema == nil {
		return nil
	}

	if schema.Type == "" {
		switch {
		case schema.Properties != nil:
			schema.Type = "object"
		case schema.Items != nil:
			schema.Type = "array"
		case len(schema.Enum) > 0:
			schema.Type = "string"
		}
	}

	if schema.Type == "object" {
		if schema.Properties == nil {
			schema.Properties = make(map[string]*JSONSchema)
		}
		for key, prop := range schema.Properties {
			schema.Properties[key] = NormalizeSchema(prop)
		}
	}

	if schema.Type == "array" && schema.Items != nil {
		schema.Items = NormalizeSchema(schema.Items)
	}

	return schema
}

// structuralSchema returns a copy of schema keeping only type and required
// constraints. Enum, length and range checks stay with the tool so it can
// answer with its own wording (or, for lenient parameters, fall back).
//
// Models often quote numbers and booleans or send a list as one
// comma-separated string, and tools coerce those, so a property declared
// integer, number, boolean or array also accepts a string.
func structuralSchema(schema *JSONSchema) map[string]interface{} {
	return structural(schema, false)
}

func structural(schema *JSONSchema, property bool) map[string]interface{} {
	if schema == nil {
		return nil
	}
	out := map[string]interface{}{}
	switch {
	case schema.Type == "":
	case property && coercibleFromString(schema.Type):
		out["type"] = []interface{}{schema.Type, "string"}
	default:
		out["type"] = schema.Type
	}
	if len(schema.Properties) > 0 {
		props := make(map[string]interface{}, len(schema.Properties))
		for name, prop := range schema.Properties {
			props[name] = structural(prop, true)
		}
		out["properties"] = props
	}
	if len(schema.Required) > 0 {
		required := make([]interface{}, len(schema.Required))
		for i, r := range schema.Required {
			required[i] = r
		}
		out["required"] = required
	}
	if schema.Items != nil {
		out["items"] = structural(schema.Items, false)
	}
	return out
}

func coercibleFromString(typ string) bool {
	switch typ {
	case "integer", "number", "boolean", "array":
		return true
	}
	return false
}

// ValidateArguments checks params against the tool's schema types and
// required properties.
func ValidateArguments(schema *JSONSchema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(structuralSchema(schema)),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
}
