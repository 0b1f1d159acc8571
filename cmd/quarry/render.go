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
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"charm.land/lipgloss/v2"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/xuri/excelize/v2"
	"golang.org/x/term"

	"github.com/quarrydata/quarry/pkg/agent"
)

// maxPrintedRows bounds the table printed after an answer.
const maxPrintedRows = 20

// renderer prints answers, SQL and rows. Styling is only applied when the
// output is a terminal.
type renderer struct {
	out   io.Writer
	color bool

	heading lipgloss.Style
	dim     lipgloss.Style
	failure lipgloss.Style
	tool    lipgloss.Style
}

func newRenderer(out io.Writer) *renderer {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return newStyledRenderer(out, color)
}

func newStyledRenderer(out io.Writer, color bool) *renderer {
	r := &renderer{out: out, color: color}
	if color {
		r.heading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
		r.dim = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		r.failure = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
		r.tool = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("11"))
	} else {
		r.heading = lipgloss.NewStyle()
		r.dim = lipgloss.NewStyle()
		r.failure = lipgloss.NewStyle()
		r.tool = lipgloss.NewStyle()
	}
	return r
}

func (r *renderer) toolCall(c agent.Chunk) {
	line := "> " + c.ToolLabel
	if c.SQLPreview != "" {
		line += ": " + c.SQLPreview
	}
	fmt.Fprintln(r.out, r.tool.Render(line))
}

func (r *renderer) thinking(text string) {
	fmt.Fprintln(r.out, r.dim.Render(strings.TrimSpace(text)))
}

func (r *renderer) text(s string) {
	fmt.Fprint(r.out, s)
}

func (r *renderer) errorf(format string, args ...interface{}) {
	fmt.Fprintln(r.out, r.failure.Render(fmt.Sprintf(format, args...)))
}

// summary prints the SQL, a preview of the rows and the usage line.
func (r *renderer) summary(resp *agent.Response, showSQL bool) {
	if showSQL && resp.SQL != "" {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, r.heading.Render("SQL"))
		r.sql(resp.SQL)
	}
	if len(resp.Results) > 0 {
		fmt.Fprintln(r.out)
		r.table(resp.Results)
		if resp.TotalRows > len(resp.Results) {
			fmt.Fprintln(r.out, r.dim.Render(fmt.Sprintf("%d of %d rows returned", len(resp.Results), resp.TotalRows)))
		}
	}
	if resp.Truncated {
		fmt.Fprintln(r.out, r.failure.Render("The answer was cut off at the output token limit."))
	}
	fmt.Fprintln(r.out, r.dim.Render(fmt.Sprintf("%s · %d iterations · %d tokens",
		resp.FinishReason, len(resp.Iterations), resp.Usage.TotalTokens)))
}

func (r *renderer) sql(query string) {
	if r.color {
		if err := quick.Highlight(r.out, query+"\n", "sql", "terminal256", "monokai"); err == nil {
			return
		}
	}
	fmt.Fprintln(r.out, query)
}

func (r *renderer) table(rows []map[string]interface{}) {
	columns := columnsOf(rows)
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	rule := make([]string, len(columns))
	for i, c := range columns {
		rule[i] = strings.Repeat("-", len(c))
	}
	// Styles stay out of the tabwriter: escape codes would skew the widths.
	fmt.Fprintln(w, strings.Join(columns, "\t"))
	fmt.Fprintln(w, strings.Join(rule, "\t"))
	for i, row := range rows {
		if i == maxPrintedRows {
			fmt.Fprintf(w, "... %d more\n", len(rows)-maxPrintedRows)
			break
		}
		cells := make([]string, len(columns))
		for j, col := range columns {
			cells[j] = formatCell(row[col])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}

// columnsOf returns the union of row keys, sorted.
func columnsOf(rows []map[string]interface{}) []string {
	seen := map[string]struct{}{}
	var columns []string
	for _, row := range rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func formatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

// writeXLSX writes the rows of resp to an Excel workbook: a Results sheet
// and a Query sheet holding the question and SQL.
func writeXLSX(path, question string, resp *agent.Response) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const results = "Results"
	if err := f.SetSheetName("Sheet1", results); err != nil {
		return err
	}

	columns := columnsOf(resp.Results)
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(results, "A1", &header); err != nil {
		return err
	}
	for i, row := range resp.Results {
		values := make([]interface{}, len(columns))
		for j, c := range columns {
			if b, ok := row[c].([]byte); ok {
				values[j] = string(b)
			} else {
				values[j] = row[c]
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(results, cell, &values); err != nil {
			return err
		}
	}
	if len(columns) > 0 {
		if err := f.AutoFilter(results, fmt.Sprintf("A1:%s", lastCell(len(columns), len(resp.Results)+1)), nil); err != nil {
			return err
		}
	}

	const query = "Query"
	if _, err := f.NewSheet(query); err != nil {
		return err
	}
	for i, kv := range [][2]string{{"Question", question}, {"SQL", resp.SQL}, {"Answer", resp.Answer}} {
		row := []interface{}{kv[0], kv[1]}
		if err := f.SetSheetRow(query, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func lastCell(col, row int) string {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "A1"
	}
	return cell
}
