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
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry/pkg/knowledge"
	"github.com/quarrydata/quarry/pkg/learning"
	"github.com/quarrydata/quarry/pkg/observability"
)

var learningsCmd = &cobra.Command{
	Use:   "learnings",
	Short: "Inspect and maintain saved learnings",
}

var learningsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learnings, newest first",
	RunE:  runLearningsList,
}

var learningsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old learnings and collapse duplicates",
	Long: `Run one maintenance pass now: learnings older than the retention period are
deleted and learnings with the same title or SQL are collapsed into the oldest one.`,
	RunE: runLearningsPrune,
}

var learningsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one learning",
	Args:  cobra.ExactArgs(1),
	RunE:  runLearningsDelete,
}

var (
	listCategory   string
	listConnection string
	listSource     string
	listLimit      int
	listJSON       bool
	pruneDays      int
)

func init() {
	learningsListCmd.Flags().StringVar(&listCategory, "category", "", "only this category")
	learningsListCmd.Flags().StringVar(&listConnection, "connection", "", "only learnings of this connection")
	learningsListCmd.Flags().StringVar(&listSource, "source", "", "only this source (manual, auto_learned)")
	learningsListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum number of learnings")
	learningsListCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")
	learningsPruneCmd.Flags().IntVar(&pruneDays, "older-than-days", -1, "retention in days (default: learning.retention_days)")

	learningsCmd.AddCommand(learningsListCmd, learningsPruneCmd, learningsDeleteCmd)
	rootCmd.AddCommand(learningsCmd)
}

func runLearningsList(cmd *cobra.Command, args []string) error {
	filter := knowledge.LearningFilter{
		Connection: listConnection,
		Source:     listSource,
		Limit:      listLimit,
	}
	if listCategory != "" {
		category, ok := knowledge.ParseCategory(listCategory)
		if !ok {
			return fmt.Errorf("unknown category %q", listCategory)
		}
		filter.Category = category
	}

	store, err := openKnowledge(cmd.Context(), config, observability.NewNoOpTracer())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	learnings, err := store.ListLearnings(cmd.Context(), filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(learnings)
	}
	if len(learnings) == 0 {
		fmt.Fprintln(out, "No learnings.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tSOURCE\tCREATED\tTITLE")
	for _, l := range learnings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.Category, l.Source(), l.CreatedAt.Local().Format(time.DateOnly), oneLine(l.Title))
	}
	return w.Flush()
}

func runLearningsPrune(cmd *cobra.Command, args []string) error {
	days := config.Learning.RetentionDays
	if pruneDays >= 0 {
		days = pruneDays
	}

	store, err := openKnowledge(cmd.Context(), config, observability.NewNoOpTracer())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	maintenance, err := learning.NewMaintenance(store, learning.MaintenanceConfig{
		Schedule:      config.Learning.MaintenanceSchedule,
		RetentionDays: days,
	})
	if err != nil {
		return err
	}
	report, err := maintenance.RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d learnings, collapsed %d duplicates.\n", report.Pruned, report.Collapsed)
	return nil
}

func runLearningsDelete(cmd *cobra.Command, args []string) error {
	store, err := openKnowledge(cmd.Context(), config, observability.NewNoOpTracer())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.DeleteLearning(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
