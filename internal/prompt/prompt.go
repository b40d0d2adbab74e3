// Package prompt builds the system prompts sent to the language model.
// Every prompt demands raw JSON without markdown fences; the salvage layer
// in internal/validate copes when the model ignores that anyway.
package prompt

import (
	"fmt"
	"strings"

	"github.com/datalens-labs/datalens/pkg/core"
)

// Row caps keep prompts inside the context window. Synthesis sees at most
// 20 rows per query result, visualization at most 50.
const (
	SynthesisRowCap = 20
	VisualizeRowCap = 50
)

// User messages paired with each system prompt.
const (
	PlanUserMessage       = "Analyze this dataset and create an analysis plan."
	SynthesizeUserMessage = "Synthesize the query results into prioritized business insights."
	VisualizeUserMessage  = "Generate a chart spec for these query results."
)

// Plan builds the system prompt asking for an analysis plan.
func Plan(schema *core.SchemaInfo) string {
	var b strings.Builder
	b.WriteString("You are a data analyst. Analyze this dataset and create an analysis plan.\n\n")
	writeSchema(&b, schema, true)

	fmt.Fprintf(&b, `
Create 5-8 analytical SQL queries that will reveal the most important business insights from this data.
Cover different aspects: distributions, aggregations, trends, outliers, correlations.

Return ONLY valid JSON (no markdown fences) with this structure:
{
  "queries": [
    {
      "id": "q1",
      "title": "Short descriptive title",
      "sql": "SELECT ... FROM %[1]s ...",
      "rationale": "Why this query is useful"
    }
  ]
}

RULES:
1. Use only SELECT statements on table %[1]q
2. Each query should return at most 20 rows (use LIMIT 20)
3. Focus on aggregations, groupings, and summaries, not raw row dumps
4. Make queries DuckDB-compatible
5. Return raw JSON only, no markdown code blocks`, schema.TableName)

	return b.String()
}

// Synthesize builds the system prompt asking for insights over the executed
// plan. Failed queries are presented with their error text so the model can
// reason around them.
func Synthesize(schema *core.SchemaInfo, items []core.PlanItemWithResult) string {
	var b strings.Builder
	b.WriteString("You are a senior data analyst. Based on the query results below, produce prioritized business insights.\n\n")
	writeSchema(&b, schema, false)

	b.WriteString("\nQUERY RESULTS:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "\n### %s (id: %s)\nSQL: %s\n", item.Title, item.ID, item.SQL)
		switch {
		case item.Error != "":
			fmt.Fprintf(&b, "ERROR: %s\n", item.Error)
		case item.Result != nil && len(item.Result.Columns) > 0 && len(item.Result.Rows) > 0:
			fmt.Fprintf(&b, "Columns: %s\n", strings.Join(item.Result.Columns, ", "))
			rows := item.Result.Rows
			if len(rows) > SynthesisRowCap {
				rows = rows[:SynthesisRowCap]
			}
			for _, row := range rows {
				fmt.Fprintf(&b, "  %s\n", rowValues(row, item.Result.Columns))
			}
		default:
			b.WriteString("No results returned.\n")
		}
	}

	b.WriteString(`
Return ONLY valid JSON (no markdown fences) with this structure:
{
  "summary": "2-3 sentence executive summary of the dataset",
  "insights": [
    {
      "title": "Concise insight title",
      "priority": "high|medium|low",
      "finding": "Detailed explanation of the insight and its business implications",
      "sql": "The SQL query that produced this insight",
      "chart": {"type": "bar", "title": "Chart title", "xKey": "col1", "yKeys": [{"key": "col2", "label": "Label", "color": "#8884d8"}], "stacked": false}
    }
  ]
}

RULES:
1. Produce 3-6 insights, sorted by business impact (high priority first)
2. Each insight must reference actual data from the results
3. Only include "chart" when the data is genuinely suitable for visualization, set it to null otherwise
4. chart.type must be one of: bar, line, pie, area, scatter
5. chart keys must exactly match the query result columns
6. Priority: "high" = actionable/critical, "medium" = notable patterns, "low" = informational
7. Return raw JSON only, no markdown code blocks`)

	return b.String()
}

// Chat builds the system prompt for the conversational NL-to-SQL endpoint.
func Chat(schema *core.SchemaInfo) string {
	var b strings.Builder
	b.WriteString("You are a friendly data analyst assistant. You can have natural conversations AND write DuckDB-compatible SQL queries.\n\nYou have access to this dataset:\n\n")
	writeSchema(&b, schema, true)

	fmt.Fprintf(&b, `
RESPONSE FORMAT:
Always return valid JSON (no markdown code blocks). Use one of these two formats:

1. When the user asks a data question (queries, analysis, aggregations, filters, etc.):
{"type": "sql", "sql": "SELECT ...", "explanation": "..."}

2. When the user is chatting (greetings, reactions, follow-up clarifications, thanks, etc.):
{"type": "chat", "message": "your friendly response here"}

RULES:
1. Only generate SQL when the user is clearly asking a data question
2. For casual messages (hi, wow, thanks, ok, etc.), respond conversationally and do NOT generate SQL
3. Use only SELECT statements (no INSERT/UPDATE/DELETE/DROP)
4. Always query from %q
5. Keep SQL concise and readable
6. Limit results to 100 rows max unless the user asks for more
7. Use conversation history to understand follow-up questions (e.g. "break that down by month" refers to the previous query)
8. Do NOT wrap the JSON in markdown code blocks, return raw JSON only`, schema.TableName)

	return b.String()
}

// Visualize builds the system prompt asking whether query results deserve a
// chart, and if so which declarative spec renders them.
func Visualize(question, sql string, columns []string, rows []map[string]any) string {
	capped := rows
	if len(capped) > VisualizeRowCap {
		capped = capped[:VisualizeRowCap]
	}

	var b strings.Builder
	b.WriteString("You are a data visualization expert. Given query results, decide if a chart is appropriate and describe it as a declarative chart spec.\n\n")
	fmt.Fprintf(&b, "USER QUESTION: %s\nSQL QUERY: %s\n\n", question, sql)
	fmt.Fprintf(&b, "QUERY RESULTS (%d total rows, showing up to %d):\n", len(rows), VisualizeRowCap)
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(columns, ", "))
	fmt.Fprintf(&b, "| %s |\n", strings.Join(columns, " | "))
	for _, row := range capped {
		fmt.Fprintf(&b, "| %s |\n", rowValues(row, columns))
	}

	fmt.Fprintf(&b, `
If the data is suitable for visualization, return a JSON object with a "chart" field.
If not (e.g., single scalar value, too many categories, or text-heavy results), return {"chart": null}.

Return ONLY valid JSON (no markdown fences) with this structure:
{"chart": {"type": "bar", "title": "Chart title", "xKey": "col1", "yKeys": [{"key": "col2", "label": "Label", "color": "#8884d8"}], "stacked": false}}

Or if no chart is appropriate:
{"chart": null}

RULES:
1. chart.type must be one of: bar, line, pie, area, scatter
2. xKey and yKeys[].key must exactly match the query result columns: %s
3. Use "pie" only when there are fewer than 8 categories
4. Use "line" for time-series or sequential data
5. Set "stacked" true only for stacked bar or area charts
6. Return raw JSON only, no markdown code blocks`, strings.Join(columns, ", "))

	return b.String()
}

// writeSchema renders the shared TABLE/COLUMNS header, optionally with the
// sample-row table.
func writeSchema(b *strings.Builder, schema *core.SchemaInfo, withSamples bool) {
	fmt.Fprintf(b, "TABLE: %s\n", schema.TableName)
	if withSamples {
		rowCount := "unknown"
		if schema.RowCount > 0 {
			rowCount = fmt.Sprintf("%d", schema.RowCount)
		}
		fmt.Fprintf(b, "TOTAL ROWS: %s\n", rowCount)
	}
	b.WriteString("COLUMNS:\n")
	for _, col := range schema.Columns {
		fmt.Fprintf(b, "- %s (%s)\n", col.Name, col.Type)
	}

	if !withSamples {
		return
	}

	names := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		names[i] = col.Name
	}
	b.WriteString("\nSAMPLE ROWS:\n")
	fmt.Fprintf(b, "| %s |\n", strings.Join(names, " | "))
	for _, row := range schema.SampleRows {
		fmt.Fprintf(b, "| %s |\n", rowValues(row, names))
	}
}

// rowValues renders one row's values in column order, NULL for missing keys.
func rowValues(row map[string]any, columns []string) string {
	vals := make([]string, len(columns))
	for i, col := range columns {
		v, ok := row[col]
		if !ok || v == nil {
			vals[i] = "NULL"
			continue
		}
		vals[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(vals, " | ")
}
