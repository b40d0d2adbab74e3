package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalens-labs/datalens/internal/validate"
	"github.com/datalens-labs/datalens/pkg/core"
)

func testSchema() *core.SchemaInfo {
	return &core.SchemaInfo{
		TableName: "sales",
		Columns: []core.SchemaColumn{
			{Name: "region", Type: "VARCHAR"},
			{Name: "amount", Type: "DOUBLE"},
		},
		RowCount: 100,
	}
}

func TestRequestPlan(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/insights", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		fmt.Fprint(w, `{"queries":[
			{"id":"q1","title":"Sales by region","sql":"SELECT region, SUM(amount) FROM sales GROUP BY region"},
			{"title":"Row count","sql":"SELECT COUNT(*) FROM sales"}
		]}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	plan, err := client.RequestPlan(context.Background(), testSchema())
	require.NoError(t, err)

	assert.Equal(t, "plan", gotBody["phase"])
	assert.NotNil(t, gotBody["schema"])

	require.Len(t, plan.Queries, 2)
	assert.Equal(t, "q1", plan.Queries[0].ID)
	assert.Equal(t, "q2", plan.Queries[1].ID)
}

func TestRequestPlan_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"wrong":"shape"}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.RequestPlan(context.Background(), testSchema())
	require.Error(t, err)
	assert.ErrorIs(t, err, validate.ErrMalformedResponse)
}

func TestRequestPlan_ServerErrorWithMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"error":"upstream model unavailable"}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.RequestPlan(context.Background(), testSchema())
	require.Error(t, err)
	assert.Equal(t, "upstream model unavailable", err.Error())
}

func TestRequestPlan_ServerErrorWithoutMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.RequestPlan(context.Background(), testSchema())
	require.Error(t, err)
	assert.Equal(t, "Plan request failed (500)", err.Error())
}

func TestRequestSynthesis(t *testing.T) {
	var gotBody struct {
		Phase           string           `json:"phase"`
		Schema          *core.SchemaInfo `json:"schema"`
		PlanWithResults []struct {
			ID     string `json:"id"`
			Error  string `json:"error,omitempty"`
			Result *struct {
				Rows []map[string]any `json:"rows"`
			} `json:"result"`
		} `json:"planWithResults"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"summary":"Sales skew north.","insights":[
			{"title":"North dominates","priority":"high","finding":"60% of revenue is in the north region."}
		]}`)
	}))
	defer srv.Close()

	rows := make([]map[string]any, 50)
	for i := range rows {
		rows[i] = map[string]any{"n": i}
	}
	items := []core.PlanItemWithResult{
		{
			AnalysisPlanItem: core.AnalysisPlanItem{ID: "q1", Title: "Big result", SQL: "SELECT n FROM t"},
			Result:           &core.QueryResult{Columns: []string{"n"}, Rows: rows},
		},
		{
			AnalysisPlanItem: core.AnalysisPlanItem{ID: "q2", Title: "Broken", SQL: "SELECT boom"},
			Error:            "Binder Error: column boom does not exist",
		},
	}

	client := NewClient(Config{BaseURL: srv.URL})
	insights, err := client.RequestSynthesis(context.Background(), testSchema(), items)
	require.NoError(t, err)

	assert.Equal(t, "synthesize", gotBody.Phase)
	require.Len(t, gotBody.PlanWithResults, 2)
	// Rows are capped on the wire, errors pass through verbatim.
	assert.Len(t, gotBody.PlanWithResults[0].Result.Rows, DefaultRowCap)
	assert.Equal(t, "Binder Error: column boom does not exist", gotBody.PlanWithResults[1].Error)

	assert.Equal(t, "Sales skew north.", insights.Summary)
	require.Len(t, insights.Insights, 1)
	assert.Equal(t, core.PriorityHigh, insights.Insights[0].Priority)
}

func TestRequestSynthesis_CapDoesNotMutateCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"summary":"ok","insights":[]}`)
	}))
	defer srv.Close()

	rows := make([]map[string]any, 30)
	for i := range rows {
		rows[i] = map[string]any{"n": i}
	}
	items := []core.PlanItemWithResult{{
		AnalysisPlanItem: core.AnalysisPlanItem{ID: "q1", Title: "t", SQL: "s"},
		Result:           &core.QueryResult{Columns: []string{"n"}, Rows: rows},
	}}

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.RequestSynthesis(context.Background(), testSchema(), items)
	require.NoError(t, err)

	assert.Len(t, items[0].Result.Rows, 30)
}

func TestRequestSynthesis_GenericError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "not json")
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.RequestSynthesis(context.Background(), testSchema(), nil)
	require.Error(t, err)
	assert.Equal(t, "Synthesis request failed (503)", err.Error())
}

func TestRequestChat(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"sql":"SELECT region FROM sales","explanation":"Lists the regions."}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	resp, err := client.RequestChat(context.Background(), testSchema(), []ChatMessage{
		{Role: "user", Content: "what regions are there?"},
	})
	require.NoError(t, err)

	assert.NotNil(t, gotBody["schema"])
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)

	assert.Equal(t, "SELECT region FROM sales", resp.SQL)
	assert.Equal(t, "Lists the regions.", resp.Explanation)
}

func TestRequestChat_ErrorWithMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"error":"LLM API error: timeout"}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.RequestChat(context.Background(), testSchema(), nil)
	require.Error(t, err)
	assert.Equal(t, "LLM API error: timeout", err.Error())
}

func TestRequestPlan_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.RequestPlan(context.Background(), testSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestCapRows_SmallResultUntouched(t *testing.T) {
	items := []core.PlanItemWithResult{{
		AnalysisPlanItem: core.AnalysisPlanItem{ID: "q1"},
		Result:           &core.QueryResult{Rows: []map[string]any{{"a": 1}}},
	}}
	capped := capRows(items, 20)
	// Same backing result pointer when under the cap.
	assert.Same(t, items[0].Result, capped[0].Result)
}
