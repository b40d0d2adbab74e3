package validate

// salvage.go - Lenient recovery of structured data from raw model text.
//
// Model output is free-form: it may wrap JSON in markdown fences, surround
// it with prose, or be truncated mid-array by a token limit. The functions
// here recover as much as possible before the strict validators run.

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/datalens-labs/datalens/pkg/core"
)

var (
	summaryRe     = regexp.MustCompile(`"summary"\s*:\s*("(?:[^"\\]|\\.)*")`)
	insightsArrRe = regexp.MustCompile(`"insights"\s*:\s*\[`)
	bareArrayRe   = regexp.MustCompile(`(?s)\[.*\]`)
)

// StripFences removes a wrapping markdown code fence, if present.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ExtractObject extracts the first top-level JSON object from text using
// brace counting. Returns nil if no complete, parseable object is found.
func ExtractObject(text string) map[string]any {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return nil
	}

	end, ok := scanObject(text, start)
	if !ok {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end]), &obj); err != nil {
		return nil
	}
	return obj
}

// scanObject scans a JSON object starting at text[start] (which must be '{')
// and returns the index one past its closing brace. It is string- and
// escape-aware so braces inside string values do not confuse the count.
func scanObject(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if escape {
			escape = false
			continue
		}
		switch {
		case ch == '\\':
			if inString {
				escape = true
			}
		case ch == '"':
			inString = !inString
		case inString:
			// Skip everything inside strings.
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// ExtractSummary recovers the summary string from potentially truncated
// JSON. Falls back to FallbackSummary.
func ExtractSummary(text string) string {
	m := summaryRe.FindStringSubmatch(text)
	if m == nil {
		return FallbackSummary
	}
	var s string
	if err := json.Unmarshal([]byte(m[1]), &s); err != nil || s == "" {
		return FallbackSummary
	}
	return s
}

// ExtractInsightObjects recovers complete insight objects from potentially
// truncated JSON. It brace-counts each {...} inside the insights array, so
// even if the response was cut off mid-array the finished items survive.
func ExtractInsightObjects(text string) []any {
	loc := insightsArrRe.FindStringIndex(text)
	if loc == nil {
		return nil
	}

	pos := loc[1]
	var objects []any

	for pos < len(text) {
		// Skip whitespace and commas between elements.
		for pos < len(text) && strings.IndexByte(" \t\n\r,", text[pos]) != -1 {
			pos++
		}
		if pos >= len(text) || text[pos] != '{' {
			break
		}

		end, ok := scanObject(text, pos)
		if !ok {
			// Truncated mid-object; stop.
			break
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(text[pos:end]), &obj); err == nil {
			objects = append(objects, obj)
		}
		pos = end
	}

	return objects
}

// ParsePlanText parses raw model text into a plan. It is total: text that
// yields no usable object produces an empty plan, never an error. A bare
// JSON array of query objects is accepted as the queries list.
func ParsePlanText(raw string) *core.PlanResponse {
	text := StripFences(raw)

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		if obj := ExtractObject(text); obj != nil {
			parsed = obj
		}
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		// The model sometimes answers with the queries array alone.
		if m := bareArrayRe.FindString(text); m != "" {
			var arr []any
			if err := json.Unmarshal([]byte(m), &arr); err == nil {
				obj = map[string]any{"queries": arr}
			}
		}
		if obj == nil {
			return &core.PlanResponse{Queries: []core.AnalysisPlanItem{}}
		}
	}

	if _, ok := obj["queries"].([]any); !ok {
		// Accept the first non-empty list of objects under any key.
		for _, val := range obj {
			if arr, ok := val.([]any); ok && len(arr) > 0 {
				if _, ok := arr[0].(map[string]any); ok {
					obj["queries"] = arr
					break
				}
			}
		}
	}

	plan, err := ValidatePlan(obj)
	if err != nil {
		return &core.PlanResponse{Queries: []core.AnalysisPlanItem{}}
	}
	return plan
}

// ParseInsightsText parses raw model text into insights. It is total: a
// clean parse is used directly, anything else goes through truncation
// salvage (summary regex plus per-object brace counting).
func ParseInsightsText(raw string) *core.InsightsResponse {
	text := StripFences(raw)

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		if obj := ExtractObject(text); obj != nil {
			parsed = obj
		}
	}

	obj, ok := parsed.(map[string]any)
	if !ok || !hasInsightsArray(obj) {
		// Truncated response: salvage what we can.
		obj = map[string]any{
			"summary":  ExtractSummary(text),
			"insights": ExtractInsightObjects(text),
		}
	}

	insights, err := ValidateInsights(obj)
	if err != nil {
		return &core.InsightsResponse{Summary: FallbackSummary, Insights: []core.InsightItem{}}
	}
	return insights
}

func hasInsightsArray(obj map[string]any) bool {
	_, ok := obj["insights"].([]any)
	return ok
}

// ParseChatText parses raw model text into a chat response. Total; see
// ValidateChat for the fallback behavior.
func ParseChatText(raw string) *core.ChatResponse {
	text := StripFences(raw)

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		if obj := ExtractObject(text); obj != nil {
			parsed = obj
		}
	}
	return ValidateChat(parsed)
}

// ParseChartText parses raw model text into a chart spec, or nil when the
// model declined to produce one or the spec fails validation. Both the
// bare spec and the {"chart": ...} envelope are accepted.
func ParseChartText(raw string) *core.ChartSpec {
	text := StripFences(raw)

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		if obj := ExtractObject(text); obj != nil {
			parsed = obj
		}
	}
	if obj, ok := parsed.(map[string]any); ok {
		if inner, present := obj["chart"]; present {
			parsed = inner
		}
	}
	return ValidateChart(parsed)
}
