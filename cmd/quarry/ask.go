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
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry/pkg/agent"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question",
	Long: `Answer a question about the configured databases.

The answer streams as it is written. The SQL that produced it and a preview
of its rows follow.

Examples:
  quarry ask "How many users signed up last week?"
  quarry ask --connection analytics "Top 10 products by revenue" --xlsx top10.xlsx
  quarry ask --json "Average order value per country"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askNoStream bool
	askJSON     bool
	askShowSQL  bool
	askXLSX     string
)

func init() {
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "wait for the complete answer instead of streaming")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full response as JSON")
	askCmd.Flags().BoolVar(&askShowSQL, "sql", true, "print the SQL behind the answer")
	askCmd.Flags().StringVar(&askXLSX, "xlsx", "", "write the result rows to this Excel file")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, config)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	var resp *agent.Response
	switch {
	case askJSON:
		resp, err = app.Agent.Run(ctx, question, nil)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(resp); encErr != nil {
			return encErr
		}
	case askNoStream:
		r := newRenderer(cmd.OutOrStdout())
		resp, err = app.Agent.Run(ctx, question, nil)
		if resp != nil {
			r.text(resp.Answer + "\n")
			r.summary(resp, askShowSQL)
		}
	default:
		resp, err = streamAnswer(ctx, app.Agent, newRenderer(cmd.OutOrStdout()), question)
	}
	if err != nil {
		return err
	}

	if askXLSX != "" && resp != nil {
		if len(resp.Results) == 0 {
			return fmt.Errorf("no rows to export: the answer did not come from a query")
		}
		if err := writeXLSX(askXLSX, question, resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d rows to %s\n", len(resp.Results), askXLSX)
	}
	return nil
}

type streamer interface {
	Stream(ctx context.Context, question string, history []agent.HistoryMessage) iter.Seq[agent.Chunk]
}

// streamAnswer prints chunks as they arrive and returns the final response.
func streamAnswer(ctx context.Context, a streamer, r *renderer, question string) (*agent.Response, error) {
	var (
		resp    *agent.Response
		lastErr error
		inText  bool
	)
	for chunk := range a.Stream(ctx, question, nil) {
		switch chunk.Type {
		case agent.ChunkThinking:
			r.thinking(chunk.Thinking)
		case agent.ChunkTool:
			if inText {
				r.text("\n")
				inText = false
			}
			r.toolCall(chunk)
		case agent.ChunkText:
			r.text(chunk.Text)
			inText = true
		case agent.ChunkError:
			lastErr = fmt.Errorf("%s", chunk.Message)
			r.errorf("Error: %s", chunk.Message)
		case agent.ChunkDone:
			if inText {
				r.text("\n")
			}
			resp = chunk.Response
		}
	}
	if resp != nil {
		r.summary(resp, askShowSQL)
	}
	return resp, lastErr
}
