// Package validate converts arbitrary decoded JSON from an untrusted model
// into the typed entities of pkg/core, or fails loudly and specifically.
//
// Failures fall into two tiers. Structural failures (top-level value is not
// an object, a required collection is missing) abort the whole response and
// surface as errors wrapping ErrMalformedResponse. Item-level failures (one
// bad array entry, one bad chart) are tolerated by omission: a model response
// is a best-effort batch, and partial usability beats all-or-nothing
// rejection.
package validate

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/datalens-labs/datalens/pkg/core"
)

// ErrMalformedResponse indicates a structurally invalid model response.
var ErrMalformedResponse = errors.New("malformed model response")

// FallbackSummary is used when a synthesis response carries no usable
// summary. Insights are more valuable than an exact summary, so a missing
// summary is not an error.
const FallbackSummary = "Analysis complete."

// ValidatePlan converts a decoded plan response into a PlanResponse.
// Elements of "queries" missing a string title or sql are dropped silently;
// ids are taken from the element when it is a non-empty string or a number,
// otherwise synthesized as "q<n>" from the 1-based index.
func ValidatePlan(raw any) (*core.PlanResponse, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object", ErrMalformedResponse)
	}

	arr, ok := obj["queries"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing or invalid 'queries' array", ErrMalformedResponse)
	}

	queries := make([]core.AnalysisPlanItem, 0, len(arr))
	for i, el := range arr {
		q, ok := el.(map[string]any)
		if !ok {
			continue
		}
		title, ok := q["title"].(string)
		if !ok {
			continue
		}
		sqlText, ok := q["sql"].(string)
		if !ok {
			continue
		}

		queries = append(queries, core.AnalysisPlanItem{
			ID:        planItemID(q["id"], i),
			Title:     title,
			SQL:       sqlText,
			Rationale: stringOr(q["rationale"]),
		})
	}

	return &core.PlanResponse{Queries: queries}, nil
}

// planItemID coerces a raw id value into a string id, falling back to a
// synthetic "q<n>" id. Numeric ids occur in practice because the model's
// output schema is not contractually enforced upstream.
func planItemID(raw any, idx int) string {
	switch v := raw.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("q%d", idx+1)
}

// ValidateInsights converts a decoded synthesis response into an
// InsightsResponse. Candidate insights missing a string title or finding are
// dropped; priority normalizes to medium; chart validation failures drop only
// the chart, never the insight.
func ValidateInsights(raw any) (*core.InsightsResponse, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object", ErrMalformedResponse)
	}

	summary, ok := obj["summary"].(string)
	if !ok || summary == "" {
		summary = FallbackSummary
	}

	arr, _ := obj["insights"].([]any)
	insights := make([]core.InsightItem, 0, len(arr))
	for _, el := range arr {
		item, ok := validateInsight(el)
		if !ok {
			continue
		}
		insights = append(insights, item)
	}

	return &core.InsightsResponse{Summary: summary, Insights: insights}, nil
}

func validateInsight(el any) (core.InsightItem, bool) {
	obj, ok := el.(map[string]any)
	if !ok {
		return core.InsightItem{}, false
	}
	title, ok := obj["title"].(string)
	if !ok {
		return core.InsightItem{}, false
	}
	finding, ok := obj["finding"].(string)
	if !ok {
		return core.InsightItem{}, false
	}

	priority := core.PriorityMedium
	if p, ok := obj["priority"].(string); ok && core.Priority(p).Valid() {
		priority = core.Priority(p)
	}

	item := core.InsightItem{
		Title:    title,
		Priority: priority,
		Finding:  finding,
		SQL:      stringOr(obj["sql"]),
	}

	if chartRaw, ok := obj["chart"]; ok {
		item.Chart = ValidateChart(chartRaw)
	}

	return item, true
}

// ValidateChart converts a decoded chart value into a ChartSpec. It is total:
// for any input it returns either a spec with at least one y key or nil,
// never an error. The legacy single-yKey shape {xKey, yKey, type, title} is
// normalized into a single-element YKeys slice.
func ValidateChart(raw any) *core.ChartSpec {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	typeStr, ok := obj["type"].(string)
	if !ok {
		return nil
	}
	// Older model prompts produced "histogram"; render it as a bar chart.
	if typeStr == "histogram" {
		typeStr = string(core.ChartBar)
	}
	chartType := core.ChartType(typeStr)
	if !chartType.Valid() {
		return nil
	}

	title, ok := obj["title"].(string)
	if !ok {
		return nil
	}
	xKey, ok := obj["xKey"].(string)
	if !ok {
		return nil
	}

	yKeys := validateYKeys(obj["yKeys"])
	if len(yKeys) == 0 {
		// Legacy shape: a bare string yKey instead of a yKeys array.
		if yKey, ok := obj["yKey"].(string); ok && yKey != "" {
			yKeys = []core.YKey{{Key: yKey}}
		}
	}
	if len(yKeys) == 0 {
		return nil
	}

	stacked, _ := obj["stacked"].(bool)

	return &core.ChartSpec{
		Type:    chartType,
		Title:   title,
		XKey:    xKey,
		YKeys:   yKeys,
		Stacked: stacked,
	}
}

// validateYKeys filters a raw yKeys value to entries carrying a string key.
func validateYKeys(raw any) []core.YKey {
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	var keys []core.YKey
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		key, ok := obj["key"].(string)
		if !ok || key == "" {
			continue
		}
		keys = append(keys, core.YKey{
			Key:   key,
			Label: stringOr(obj["label"]),
			Color: stringOr(obj["color"]),
		})
	}
	return keys
}

// ChatFallbackMessage is returned when a chat response cannot be understood.
const ChatFallbackMessage = "I couldn't generate a valid response. Please try rephrasing your question."

// ValidateChat converts a decoded chat response into a ChatResponse. It is
// total: unusable input yields the fallback explanation with empty SQL.
// Responses of type "chat" (or carrying a message but no sql) map to an
// explanation-only result.
func ValidateChat(raw any) *core.ChatResponse {
	obj, ok := raw.(map[string]any)
	if !ok {
		return &core.ChatResponse{Explanation: ChatFallbackMessage}
	}

	typeStr, _ := obj["type"].(string)
	_, hasSQL := obj["sql"]
	_, hasMessage := obj["message"]
	if typeStr == "chat" || (hasMessage && !hasSQL) {
		if msg, ok := obj["message"].(string); ok && msg != "" {
			return &core.ChatResponse{Explanation: msg}
		}
		return &core.ChatResponse{Explanation: ChatFallbackMessage}
	}

	sqlText := stringOr(obj["sql"])
	explanation, ok := obj["explanation"].(string)
	if !ok {
		explanation = "No explanation provided."
	}

	return &core.ChatResponse{SQL: sqlText, Explanation: explanation}
}

func stringOr(raw any) string {
	s, _ := raw.(string)
	return s
}
