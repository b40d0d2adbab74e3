package core

// AnalysisPlanItem is one model-proposed SQL query, not yet executed.
// Items are created by plan validation and never mutated afterwards.
type AnalysisPlanItem struct {
	// ID is unique within a plan. Synthesized ("q1", "q2", ...) when the
	// model response carries none.
	ID string `json:"id"`

	// Title is a short descriptive title for the query.
	Title string `json:"title"`

	// SQL is the query text to run against the query engine.
	SQL string `json:"sql"`

	// Rationale explains why the model proposed the query. May be empty.
	Rationale string `json:"rationale"`
}

// PlanItemWithResult pairs a plan item with the outcome of executing it.
// Exactly one of Result and Error is set once execution completes; both
// are unset only before execution.
type PlanItemWithResult struct {
	AnalysisPlanItem

	// Result holds the query result on success.
	Result *QueryResult `json:"result,omitempty"`

	// Error holds the engine failure message on failure.
	Error string `json:"error,omitempty"`
}

// Priority ranks an insight by business impact.
type Priority string

// Priority values. Anything else normalizes to PriorityMedium.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the three known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// InsightItem is one synthesized finding, optionally with a chart spec and
// the query result that produced it.
type InsightItem struct {
	Title    string   `json:"title"`
	Priority Priority `json:"priority"`

	// Finding is the natural-language explanation of the insight.
	Finding string `json:"finding"`

	// SQL is the query the model says produced the insight. May be empty.
	SQL string `json:"sql"`

	// Chart is the validated chart spec, if the model suggested one that
	// survived validation.
	Chart *ChartSpec `json:"chart,omitempty"`

	// QueryResult is back-filled by the orchestrator by matching SQL
	// against the executed plan items. Never supplied by the model.
	QueryResult *QueryResult `json:"queryResult,omitempty"`
}
