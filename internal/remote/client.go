// Package remote issues the two network calls of the analysis pipeline
// (plan and synthesis) against the model endpoint service, translating
// transport failures into pipeline failures and handing raw response
// bodies to the validators. It never interprets response shapes itself.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/datalens-labs/datalens/internal/validate"
	"github.com/datalens-labs/datalens/pkg/core"
)

// DefaultRowCap is the maximum number of result rows forwarded per query to
// the synthesis call. It bounds request size; the full QueryResult held
// locally is never capped.
const DefaultRowCap = 20

// Config holds configuration for the insights client.
type Config struct {
	// BaseURL is the root of the model endpoint service.
	BaseURL string

	// RowCap overrides DefaultRowCap when positive.
	RowCap int

	// HTTPClient overrides http.DefaultClient. Useful for tests and for
	// callers that want transport-level timeouts.
	HTTPClient *http.Client

	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Client calls the model endpoint service.
type Client struct {
	baseURL    string
	rowCap     int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the model endpoint service.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	rowCap := cfg.RowCap
	if rowCap <= 0 {
		rowCap = DefaultRowCap
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		rowCap:     rowCap,
		httpClient: httpClient,
		logger:     logger,
	}
}

// planRequest is the wire shape of a plan request.
type planRequest struct {
	Phase  string           `json:"phase"`
	Schema *core.SchemaInfo `json:"schema"`
}

// synthesizeRequest is the wire shape of a synthesis request.
type synthesizeRequest struct {
	Phase           string                    `json:"phase"`
	Schema          *core.SchemaInfo          `json:"schema"`
	PlanWithResults []core.PlanItemWithResult `json:"planWithResults"`
}

// chatRequest is the wire shape of a chat request.
type chatRequest struct {
	Schema   *core.SchemaInfo `json:"schema"`
	Messages []ChatMessage    `json:"messages"`
}

// ChatMessage is one turn of conversation history sent with a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestPlan asks the model endpoint for an analysis plan.
func (c *Client) RequestPlan(ctx context.Context, schema *core.SchemaInfo) (*core.PlanResponse, error) {
	body, err := c.post(ctx, "/api/insights", planRequest{Phase: "plan", Schema: schema}, "Plan request failed")
	if err != nil {
		return nil, err
	}

	plan, err := validate.ValidatePlan(body)
	if err != nil {
		return nil, fmt.Errorf("plan response: %w", err)
	}

	c.logger.Debug("plan received", slog.Int("queries", len(plan.Queries)))
	return plan, nil
}

// RequestSynthesis sends the executed plan to the model endpoint and returns
// the validated insights. Result rows are truncated to the row cap before
// serialization; per-item error strings pass through unmodified so the model
// can reason about partial failures.
func (c *Client) RequestSynthesis(ctx context.Context, schema *core.SchemaInfo, items []core.PlanItemWithResult) (*core.InsightsResponse, error) {
	req := synthesizeRequest{
		Phase:           "synthesize",
		Schema:          schema,
		PlanWithResults: capRows(items, c.rowCap),
	}

	body, err := c.post(ctx, "/api/insights", req, "Synthesis request failed")
	if err != nil {
		return nil, err
	}

	insights, err := validate.ValidateInsights(body)
	if err != nil {
		return nil, fmt.Errorf("synthesis response: %w", err)
	}

	c.logger.Debug("insights received", slog.Int("insights", len(insights.Insights)))
	return insights, nil
}

// RequestChat sends a conversational question (with history, newest last)
// and returns the validated SQL/explanation pair.
func (c *Client) RequestChat(ctx context.Context, schema *core.SchemaInfo, messages []ChatMessage) (*core.ChatResponse, error) {
	body, err := c.post(ctx, "/api/chat", chatRequest{Schema: schema, Messages: messages}, "Chat request failed")
	if err != nil {
		return nil, err
	}

	var resp core.ChatResponse
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode chat response: %w", err)
	}
	if err := json.Unmarshal(buf, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	return &resp, nil
}

// capRows returns a copy of items whose result rows are truncated to cap.
// The originals are never mutated; the full results stay with the caller.
func capRows(items []core.PlanItemWithResult, cap int) []core.PlanItemWithResult {
	capped := make([]core.PlanItemWithResult, len(items))
	for i, item := range items {
		capped[i] = item
		if item.Result != nil && len(item.Result.Rows) > cap {
			capped[i].Result = &core.QueryResult{
				Columns: item.Result.Columns,
				Rows:    item.Result.Rows[:cap],
			}
		}
	}
	return capped
}

// post sends one JSON request to the insights endpoint and decodes the
// response body. Non-success statuses are translated using the server's
// error field when present, else "<genericMsg> (<status>)".
func (c *Client) post(ctx context.Context, path string, payload any, genericMsg string) (any, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		if failure.Error != "" {
			return nil, fmt.Errorf("%s", failure.Error)
		}
		return nil, fmt.Errorf("%s (%d)", genericMsg, resp.StatusCode)
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return body, nil
}
