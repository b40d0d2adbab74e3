package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/datalens-labs/datalens/pkg/core"
)

// renderResult writes a query result in the requested format.
func renderResult(w io.Writer, result *core.QueryResult, format string) error {
	switch format {
	case "json":
		return renderJSON(w, result.Rows)
	case "csv":
		return renderCSV(w, result.Columns, result.Rows)
	case "md", "markdown":
		return renderMarkdown(w, result.Columns, result.Rows)
	default:
		return renderTable(w, result.Columns, result.Rows)
	}
}

func renderTable(w io.Writer, cols []string, rows []map[string]any) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(cols))
	for i, col := range cols {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		tr := make(table.Row, len(cols))
		for i, col := range cols {
			tr[i] = formatValue(row[col])
		}
		t.AppendRow(tr)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
	return nil
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderCSV(w io.Writer, cols []string, rows []map[string]any) error {
	_, _ = fmt.Fprintln(w, strings.Join(cols, ","))

	for _, row := range rows {
		values := make([]string, len(cols))
		for i, col := range cols {
			values[i] = escapeCSV(formatValue(row[col]))
		}
		_, _ = fmt.Fprintln(w, strings.Join(values, ","))
	}
	return nil
}

func renderMarkdown(w io.Writer, cols []string, rows []map[string]any) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(cols, " | "))
	seps := make([]string, len(cols))
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))

	for _, row := range rows {
		values := make([]string, len(cols))
		for i, col := range cols {
			values[i] = formatValue(row[col])
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(values, " | "))
	}
	return nil
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// renderAnalysis writes a completed analysis: summary first, then each
// insight with its priority, finding and backing query result.
func renderAnalysis(w io.Writer, result *core.AnalysisResult, format string) error {
	if format == "json" {
		return renderJSON(w, result)
	}

	_, _ = fmt.Fprintln(w, "Summary")
	_, _ = fmt.Fprintln(w, strings.Repeat("=", 60))
	_, _ = fmt.Fprintln(w, result.Summary)
	_, _ = fmt.Fprintln(w)

	for i, insight := range result.Insights {
		_, _ = fmt.Fprintf(w, "%d. [%s] %s\n", i+1, strings.ToUpper(string(insight.Priority)), insight.Title)
		_, _ = fmt.Fprintln(w, insight.Finding)
		if insight.Chart != nil {
			_, _ = fmt.Fprintf(w, "Suggested chart: %s\n", insight.Chart.Type)
		}
		if insight.QueryResult != nil {
			if err := renderResult(w, insight.QueryResult, format); err != nil {
				return err
			}
		}
		_, _ = fmt.Fprintln(w)
	}

	return renderFailedQueries(w, result.Plan)
}

// renderFailedQueries lists plan items whose execution failed so partial
// results are never silently partial.
func renderFailedQueries(w io.Writer, plan []core.PlanItemWithResult) error {
	var failed []core.PlanItemWithResult
	for _, item := range plan {
		if item.Error != "" {
			failed = append(failed, item)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	_, _ = fmt.Fprintf(w, "%d of %d queries failed:\n", len(failed), len(plan))
	for _, item := range failed {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", item.Title, item.Error)
	}
	return nil
}
