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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Tool defines a named, schema-typed capability the LLM can invoke.
// Tools "shuttle" data between the model and the database.
type Tool interface {
	// Name returns the tool's unique snake_case identifier
	Name() string

	// Description returns prose shown to the LLM
	Description() string

	// InputSchema returns the JSON Schema for tool parameters
	InputSchema() *JSONSchema

	// Execute runs the tool with given parameters
	Execute(ctx context.Context, params map[string]interface{}) (*Result, error)
}

// Result represents the outcome of tool execution.
type Result struct {
	// Success indicates if the tool executed successfully
	Success bool

	// Data contains the result payload (format varies by tool)
	Data interface{}

	// Error contains error information if execution failed
	Error *Error

	// Metadata contains tool-specific metadata
	Metadata map[string]interface{}

	// ExecutionTimeMs is set by the executor
	ExecutionTimeMs int64
}

// Error represents a tool execution error with structured information.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Details provides additional error context
	Details map[string]interface{}

	// Suggestion provides a hint for fixing the error
	Suggestion string
}

// Success builds a successful result carrying data.
func Success(data interface{}) *Result {
	return &Result{Success: true, Data: data}
}

// Failure builds a failed result.
func Failure(code, message string) *Result {
	return &Result{
		Success: false,
		Error:   &Error{Code: code, Message: message},
	}
}

// Failuref builds a failed result with a formatted message.
func Failuref(code, format string, args ...interface{}) *Result {
	return Failure(code, fmt.Sprintf(format, args...))
}

// ErrorMessage returns the failure message, or "" for successful results.
func (r *Result) ErrorMessage() string {
	if r == nil || r.Success || r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// Content renders the result as the content of a tool-role message: compact
// JSON of Data on success, "Error: <message>" on failure.
func (r *Result) Content() string {
	if r == nil {
		return "null"
	}
	if !r.Success {
		msg := "unknown error"
		if r.Error != nil && r.Error.Message != "" {
			msg = r.Error.Message
		}
		return "Error: " + msg
	}
	encoded, err := EncodeCompact(r.Data)
	if err != nil {
		return "Error: failed to encode tool result: " + err.Error()
	}
	return encoded
}

// EncodeCompact marshals v without indentation and without HTML escaping.
// Some providers reject tool content with embedded newlines.
func EncodeCompact(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// JSONSchema represents a JSON Schema for tool parameters.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []interface{}          `json:"enum,omitempty"`
	Default     interface{}            `json:"default,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
	MaxLength   *int                   `json:"maxLength,omitempty"`
}

// ToJSON converts the schema to JSON bytes.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// ToMap converts the schema to a generic map, the shape most provider SDKs accept.
func (s *JSONSchema) ToMap() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	data, err := json.Marshal(NormalizeSchema(s))
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	// omitempty drops an empty properties map; strict providers require it.
	if out["type"] == "object" && out["properties"] == nil {
		out["properties"] = map[string]interface{}{}
	}
	return out
}

// NewObjectSchema creates a new object schema with the given properties.
func NewObjectSchema(description string, properties map[string]*JSONSchema, required []string) *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: description,
		Properties:  properties,
		Required:    required,
	}
}

// NewStringSchema creates a new string schema.
func NewStringSchema(description string) *JSONSchema {
	return &JSONSchema{
		Type:        "string",
		Description: description,
	}
}

// NewIntegerSchema creates a new integer schema.
func NewIntegerSchema(description string) *JSONSchema {
	return &JSONSchema{
		Type:        "integer",
		Description: description,
	}
}

// NewBooleanSchema creates a new boolean schema.
func NewBooleanSchema(description string) *JSONSchema {
	return &JSONSchema{
		Type:        "boolean",
		Description: description,
	}
}

// NewArraySchema creates a new array schema.
func NewArraySchema(description string, items *JSONSchema) *JSONSchema {
	return &JSONSchema{
		Type:        "array",
		Description: description,
		Items:       items,
	}
}

// NewFreeformObjectSchema creates an object schema that accepts any keys.
func NewFreeformObjectSchema(description string) *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: description,
	}
}

// WithEnum adds enum values to the schema.
func (s *JSONSchema) WithEnum(values ...interface{}) *JSONSchema {
	s.Enum = values
	return s
}

// WithDefault adds a default value to the schema.
func (s *JSONSchema) WithDefault(value interface{}) *JSONSchema {
	s.Default = value
	return s
}

// WithRange adds min/max constraints to the schema.
func (s *JSONSchema) WithRange(min, max float64) *JSONSchema {
	s.Minimum = &min
	s.Maximum = &max
	return s
}

// WithMaxLength adds a maximum string length to the schema.
func (s *JSONSchema) WithMaxLength(n int) *JSONSchema {
	s.MaxLength = &n
	return s
}
