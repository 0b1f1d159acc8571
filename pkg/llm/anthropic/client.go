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

// Package anthropic talks to Claude through the official SDK, either on the
// Anthropic API or on AWS Bedrock.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/quarrydata/quarry/pkg/llm"
	"github.com/quarrydata/quarry/pkg/shuttle"
	"github.com/quarrydata/quarry/pkg/types"
)

// Defaults applied by NewClient.
const (
	DefaultModel        = "claude-sonnet-4-5-20250929"
	DefaultBedrockModel = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	DefaultRegion       = "us-east-1"
	DefaultMaxTokens    = 4096
	DefaultTimeout      = 120 * time.Second
)

// Config configures the client.
type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the API endpoint (proxies, tests).
	BaseURL string

	MaxTokens   int
	Temperature *float64

	// ThinkingBudget enables extended thinking with this many tokens when
	// positive. It must be below MaxTokens.
	ThinkingBudget int

	Timeout time.Duration

	// Bedrock routes requests through AWS Bedrock instead of the Anthropic
	// API. APIKey and BaseURL are ignored then.
	Bedrock *BedrockConfig
}

// BedrockConfig selects AWS credentials. With no static keys and no
// profile the default credential chain is used.
type BedrockConfig struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Client implements types.StreamingLLMProvider.
type Client struct {
	client         sdk.Client
	name           string
	model          string
	maxTokens      int64
	temperature    *float64
	thinkingBudget int64
}

// NewClient creates a client. Bedrock clients load the AWS configuration,
// which may read shared config files.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	// Retries are left to the caller so backoff is applied once.
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	name := "anthropic"
	if cfg.Bedrock != nil {
		if cfg.Model == "" {
			cfg.Model = DefaultBedrockModel
		}
		awsCfg, err := loadAWSConfig(ctx, *cfg.Bedrock)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bedrock.WithConfig(awsCfg))
		name = "bedrock"
	} else {
		if cfg.Model == "" {
			cfg.Model = DefaultModel
		}
		if cfg.APIKey != "" {
			opts = append(opts, option.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
	}

	return &Client{
		client:         sdk.NewClient(opts...),
		name:           name,
		model:          cfg.Model,
		maxTokens:      int64(cfg.MaxTokens),
		temperature:    cfg.Temperature,
		thinkingBudget: int64(cfg.ThinkingBudget),
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg BedrockConfig) (aws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	case cfg.Profile != "":
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// Name returns "anthropic" or "bedrock".
func (c *Client) Name() string {
	return c.name
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// Chat sends the conversation and waits for the complete message.
func (c *Client) Chat(ctx context.Context, messages []types.Message, tools []shuttle.Tool) (*types.LLMResponse, error) {
	params, err := c.buildParams(messages, tools)
	if err != nil {
		return nil, err
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.wrapError(err)
	}

	out := &types.LLMResponse{
		StopReason: string(msg.StopReason),
		Usage:      usage(msg.Usage.InputTokens, msg.Usage.OutputTokens),
		Metadata: map[string]interface{}{
			"model":      string(msg.Model),
			"message_id": msg.ID,
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "thinking":
			out.Thinking += block.Thinking
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: decodeInput(block.Input),
			})
		}
	}
	return out, nil
}

// ChatStream streams the message, forwarding text deltas to tokenCallback.
func (c *Client) ChatStream(ctx context.Context, messages []types.Message, tools []shuttle.Tool,
	tokenCallback types.TokenCallback) (*types.LLMResponse, error) {
	params, err := c.buildParams(messages, tools)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		content    strings.Builder
		thinking   strings.Builder
		calls      []types.ToolCall
		stop       string
		messageID  string
		inTokens   int64
		outTokens  int64
		toolInputs = map[int64]*strings.Builder{}
		toolIndex  = map[int64]int{}
	)
	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			messageID = event.Message.ID
			inTokens = event.Message.Usage.InputTokens

		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				toolIndex[event.Index] = len(calls)
				toolInputs[event.Index] = &strings.Builder{}
				calls = append(calls, types.ToolCall{
					ID:    event.ContentBlock.ID,
					Name:  event.ContentBlock.Name,
					Input: map[string]interface{}{},
				})
			}

		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text == "" {
					continue
				}
				content.WriteString(event.Delta.Text)
				if tokenCallback != nil {
					tokenCallback(event.Delta.Text)
				}
			case "thinking_delta":
				thinking.WriteString(event.Delta.Thinking)
			case "input_json_delta":
				if buf, ok := toolInputs[event.Index]; ok {
					buf.WriteString(event.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if buf, ok := toolInputs[event.Index]; ok {
				calls[toolIndex[event.Index]].Input = llm.ParseArguments(buf.String())
				delete(toolInputs, event.Index)
			}

		case "message_delta":
			if event.Delta.StopReason != "" {
				stop = string(event.Delta.StopReason)
			}
			if event.Usage.OutputTokens > 0 {
				outTokens = event.Usage.OutputTokens
			}
		}
	}
	if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, c.wrapError(err)
	}

	return &types.LLMResponse{
		Content:    content.String(),
		Thinking:   thinking.String(),
		ToolCalls:  calls,
		StopReason: stop,
		Usage:      usage(inTokens, outTokens),
		Metadata: map[string]interface{}{
			"model":      c.model,
			"message_id": messageID,
			"streaming":  true,
		},
	}, nil
}

func (c *Client) buildParams(messages []types.Message, tools []shuttle.Tool) (sdk.MessageNewParams, error) {
	system, converted := convertMessages(messages)
	if len(converted) == 0 {
		return sdk.MessageNewParams{}, fmt.Errorf("no messages to send")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		Messages:  converted,
		MaxTokens: c.maxTokens,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if c.temperature != nil {
		params.Temperature = sdk.Float(*c.temperature)
	}
	if c.thinkingBudget > 0 {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(c.thinkingBudget)
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}
	return params, nil
}

// wrapError turns SDK status errors into llm.APIError so the retry policy
// can classify them.
func (c *Client) wrapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		msg := http.StatusText(apiErr.StatusCode)
		var body struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal([]byte(apiErr.RawJSON()), &body) == nil && body.Error.Message != "" {
			msg = body.Error.Message
		}
		return &llm.APIError{Provider: c.name, StatusCode: apiErr.StatusCode, Message: msg}
	}
	return fmt.Errorf("%s request failed: %w", c.name, err)
}

// convertMessages splits out the system prompt. Consecutive tool results
// are merged into one user turn, which the API requires after a turn with
// several tool_use blocks.
func convertMessages(messages []types.Message) (string, []sdk.MessageParam) {
	var (
		system []string
		out    []sdk.MessageParam
		tools  []sdk.ContentBlockParamUnion
	)
	flushTools := func() {
		if len(tools) > 0 {
			out = append(out, sdk.NewUserMessage(tools...))
			tools = nil
		}
	}

	for _, msg := range messages {
		if msg.Role == types.RoleTool {
			isError := msg.ToolResult != nil && !msg.ToolResult.Success
			tools = append(tools, sdk.NewToolResultBlock(msg.ToolUseID, msg.Content, isError))
			continue
		}
		flushTools()

		switch msg.Role {
		case types.RoleSystem:
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
		case types.RoleUser:
			if msg.Content != "" {
				out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
			}
		case types.RoleAssistant:
			var blocks []sdk.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Input
				if input == nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewAssistantMessage(blocks...))
			}
		}
	}
	flushTools()
	return strings.Join(system, "\n\n"), out
}

func convertTools(tools []shuttle.Tool) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := llm.ToolParameters(t)
		var required []string
		if r, ok := schema["required"].([]interface{}); ok {
			for _, name := range r {
				if s, ok := name.(string); ok {
					required = append(required, s)
				}
			}
		}
		out[i] = sdk.ToolUnionParam{OfTool: &sdk.ToolParam{
			Name:        t.Name(),
			Description: sdk.String(t.Description()),
			InputSchema: sdk.ToolInputSchemaParam{
				Properties: schema["properties"],
				Required:   required,
			},
		}}
	}
	return out
}

func decodeInput(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	return llm.ParseArguments(string(raw))
}

func usage(in, out int64) types.Usage {
	return types.Usage{
		InputTokens:  int(in),
		OutputTokens: int(out),
		TotalTokens:  int(in + out),
	}
}

var _ types.StreamingLLMProvider = (*Client)(nil)
