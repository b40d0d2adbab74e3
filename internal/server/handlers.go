package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/datalens-labs/datalens/internal/llm"
	"github.com/datalens-labs/datalens/internal/prompt"
	"github.com/datalens-labs/datalens/internal/validate"
	"github.com/datalens-labs/datalens/pkg/core"
)

// Max tokens per call. Synthesis gets the most room because it returns one
// object per insight; truncation there is salvaged, not fatal.
const (
	planMaxTokens       = 4096
	synthesizeMaxTokens = 8192
	chatMaxTokens       = 1024
	visualizeMaxTokens  = 1024
)

// historyCap limits chat context to the last 5 user/assistant pairs.
const historyCap = 10

type insightsRequest struct {
	Phase           string                    `json:"phase"`
	Schema          *core.SchemaInfo          `json:"schema"`
	PlanWithResults []core.PlanItemWithResult `json:"planWithResults"`
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if req.Schema == nil {
		s.sendError(w, http.StatusBadRequest, "Missing schema")
		return
	}

	switch req.Phase {
	case "plan":
		raw, err := s.completer.Complete(r.Context(), prompt.Plan(req.Schema), []llm.Message{
			{Role: "user", Content: prompt.PlanUserMessage},
		}, planMaxTokens)
		if err != nil {
			s.sendCompletionError(w, err)
			return
		}

		plan := validate.ParsePlanText(raw)
		s.logger.Info("plan parsed",
			slog.String("table", req.Schema.TableName),
			slog.Int("queries", len(plan.Queries)))
		s.sendJSON(w, http.StatusOK, plan)

	case "synthesize":
		if len(req.PlanWithResults) == 0 {
			s.sendError(w, http.StatusBadRequest, "Missing planWithResults")
			return
		}

		raw, err := s.completer.Complete(r.Context(), prompt.Synthesize(req.Schema, req.PlanWithResults), []llm.Message{
			{Role: "user", Content: prompt.SynthesizeUserMessage},
		}, synthesizeMaxTokens)
		if err != nil {
			s.sendCompletionError(w, err)
			return
		}

		insights := validate.ParseInsightsText(raw)
		s.logger.Info("insights parsed",
			slog.String("table", req.Schema.TableName),
			slog.Int("insights", len(insights.Insights)))
		s.sendJSON(w, http.StatusOK, insights)

	default:
		s.sendError(w, http.StatusBadRequest, "Invalid phase: must be 'plan' or 'synthesize'")
	}
}

type chatRequest struct {
	Schema   *core.SchemaInfo `json:"schema"`
	Messages []llm.Message    `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if req.Schema == nil {
		s.sendError(w, http.StatusBadRequest, "Missing schema")
		return
	}
	if len(req.Messages) == 0 {
		s.sendError(w, http.StatusBadRequest, "Missing messages")
		return
	}

	history := req.Messages
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}

	raw, err := s.completer.Complete(r.Context(), prompt.Chat(req.Schema), history, chatMaxTokens)
	if err != nil {
		s.sendCompletionError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, validate.ParseChatText(raw))
}

type visualizeRequest struct {
	Question string           `json:"question"`
	SQL      string           `json:"sql"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
}

type visualizeResponse struct {
	Chart *core.ChartSpec `json:"chart"`
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	var req visualizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	// Nothing to chart; not an error.
	if len(req.Columns) == 0 || len(req.Rows) == 0 {
		s.sendJSON(w, http.StatusOK, visualizeResponse{})
		return
	}

	raw, err := s.completer.Complete(r.Context(), prompt.Visualize(req.Question, req.SQL, req.Columns, req.Rows), []llm.Message{
		{Role: "user", Content: prompt.VisualizeUserMessage},
	}, visualizeMaxTokens)
	if err != nil {
		s.sendCompletionError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, visualizeResponse{Chart: validate.ParseChartText(raw)})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}

// sendCompletionError maps an LLM failure to 502; the upstream model, not
// this service, is what broke.
func (s *Server) sendCompletionError(w http.ResponseWriter, err error) {
	s.logger.Error("completion failed", "error", err)
	s.sendError(w, http.StatusBadGateway, "LLM API error: "+err.Error())
}
