package core

// PlanResponse is the validated payload of a plan request.
type PlanResponse struct {
	Queries []AnalysisPlanItem `json:"queries"`
}

// InsightsResponse is the validated payload of a synthesis request.
type InsightsResponse struct {
	Summary  string        `json:"summary"`
	Insights []InsightItem `json:"insights"`
}

// AnalysisResult is the terminal output of a successful pipeline run:
// the synthesized insights plus every executed plan item with its result
// or error.
type AnalysisResult struct {
	Summary  string               `json:"summary"`
	Insights []InsightItem        `json:"insights"`
	Plan     []PlanItemWithResult `json:"plan"`
}

// ChatResponse is the validated payload of a chat (NL to SQL) request.
// SQL is empty for purely conversational replies.
type ChatResponse struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}
