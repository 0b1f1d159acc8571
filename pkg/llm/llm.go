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

// Package llm holds what the provider adapters share: API errors that know
// whether a retry can help, tool schema conversion and argument parsing.
// Each vendor lives in its own subpackage behind types.LLMProvider.
package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quarrydata/quarry/pkg/shuttle"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 2048

// APIError is a non-2xx answer from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether repeating the request can succeed: rate limits,
// timeouts and server errors can, everything else cannot.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode >= 500:
		return true
	}
	return false
}

// NewAPIError reads the error response body into an APIError. The body is
// not closed.
func NewAPIError(provider string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && len(envelope.Error) > 0 {
		var detail struct {
			Message string `json:"message"`
		}
		var plain string
		switch {
		case json.Unmarshal(envelope.Error, &detail) == nil && detail.Message != "":
			msg = detail.Message
		case json.Unmarshal(envelope.Error, &plain) == nil && plain != "":
			msg = plain
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Provider: provider, StatusCode: resp.StatusCode, Message: msg}
}

// ToolParameters returns the tool's input schema as a JSON Schema object.
func ToolParameters(tool shuttle.Tool) map[string]interface{} {
	params := tool.InputSchema().ToMap()
	if _, ok := params["properties"]; !ok {
		params["properties"] = map[string]interface{}{}
	}
	return params
}

// ParseArguments decodes tool call arguments sent as a JSON string. Models
// sometimes wrap them in a markdown code fence. Undecodable arguments are
// kept under "_raw" so the tool reports a useful validation error.
func ParseArguments(raw string) map[string]interface{} {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]interface{}{}
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(s), &args); err != nil || args == nil {
		return map[string]interface{}{"_raw": raw}
	}
	return args
}
