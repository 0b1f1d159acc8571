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
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/observability"
	"github.com/quarrydata/quarry/pkg/shuttle"
	"github.com/quarrydata/quarry/pkg/types"
)

// RetryConfig controls retries of failed LLM calls.
type RetryConfig struct {
	// Attempts is the total number of calls, first one included. 1 disables
	// retries.
	Attempts uint

	// InitialDelay is doubled after every failed attempt up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig returns three attempts with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.Attempts == 0 {
		c.Attempts = def.Attempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = max(def.MaxDelay, c.InitialDelay)
	}
	return c
}

// retryable is implemented by provider errors that know whether repeating
// the call can help (rate limits and 5xx can, bad requests cannot).
type retryable interface {
	Retryable() bool
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// chat calls the provider with retries. When onToken is set and the provider
// streams, tokens are forwarded as they arrive; a call that already
// forwarded tokens is not retried.
func (a *Agent) chat(ctx context.Context, messages []types.Message, tools []shuttle.Tool, onToken types.TokenCallback) (*types.LLMResponse, error) {
	streamer, canStream := a.llm.(types.StreamingLLMProvider)
	useStream := canStream && onToken != nil

	ctx, span := a.tracer.StartSpan(ctx, observability.SpanLLMCompletion,
		observability.WithSpanKind("llm"),
		observability.WithAttribute(observability.AttrLLMProvider, a.llm.Name()),
		observability.WithAttribute(observability.AttrLLMModel, a.llm.Model()),
		observability.WithAttribute(observability.AttrLLMStreaming, useStream),
	)
	defer a.tracer.EndSpan(span)
	labels := map[string]string{
		observability.AttrLLMProvider: a.llm.Name(),
		observability.AttrLLMModel:    a.llm.Model(),
	}

	var (
		attempts uint
		emitted  bool
	)
	resp, err := retry.DoWithData(
		func() (*types.LLMResponse, error) {
			attempts++
			a.tracer.RecordMetric(observability.MetricLLMCalls, 1, labels)

			var (
				resp *types.LLMResponse
				err  error
			)
			if useStream {
				resp, err = streamer.ChatStream(ctx, messages, tools, func(token string) {
					if token == "" {
						return
					}
					emitted = true
					onToken(token)
				})
			} else {
				resp, err = a.llm.Chat(ctx, messages, tools)
			}
			if err != nil {
				a.tracer.RecordMetric(observability.MetricLLMErrors, 1, labels)
				if emitted {
					return nil, retry.Unrecoverable(err)
				}
				return nil, err
			}
			if resp == nil {
				return nil, retry.Unrecoverable(fmt.Errorf("%s returned an empty response", a.llm.Name()))
			}
			return resp, nil
		},
		retry.Context(ctx),
		retry.Attempts(a.retry.Attempts),
		retry.Delay(a.retry.InitialDelay),
		retry.MaxDelay(a.retry.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			zap.L().Warn("llm call failed, retrying",
				zap.String("provider", a.llm.Name()),
				zap.Uint("attempt", n+1),
				zap.Uint("max_attempts", a.retry.Attempts),
				zap.Error(err),
			)
		}),
	)
	span.SetAttribute("llm.attempts", attempts)
	if err != nil {
		if attempts > 1 {
			zap.L().Error("llm retries exhausted",
				zap.String("provider", a.llm.Name()),
				zap.Uint("attempts", attempts),
				zap.Error(err),
			)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("llm call failed: %w", err)
	}

	span.SetAttribute(observability.AttrLLMStop, resp.StopReason)
	span.SetAttribute("llm.tokens.input", resp.Usage.InputTokens)
	span.SetAttribute("llm.tokens.output", resp.Usage.OutputTokens)
	span.SetStatus(observability.StatusOK, "")
	a.tracer.RecordMetric(observability.MetricLLMTokensInput, float64(resp.Usage.InputTokens), labels)
	a.tracer.RecordMetric(observability.MetricLLMTokensOutput, float64(resp.Usage.OutputTokens), labels)
	return resp, nil
}
