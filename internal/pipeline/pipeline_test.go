package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalens-labs/datalens/internal/testutil"
	"github.com/datalens-labs/datalens/pkg/core"
)

type fakeRemote struct {
	plan        *core.PlanResponse
	planErr     error
	insights    *core.InsightsResponse
	synthErr    error
	synthItems  []core.PlanItemWithResult
	synthCalled bool
}

func (f *fakeRemote) RequestPlan(ctx context.Context, schema *core.SchemaInfo) (*core.PlanResponse, error) {
	return f.plan, f.planErr
}

func (f *fakeRemote) RequestSynthesis(ctx context.Context, schema *core.SchemaInfo, items []core.PlanItemWithResult) (*core.InsightsResponse, error) {
	f.synthCalled = true
	f.synthItems = items
	return f.insights, f.synthErr
}

// fakeExecutor returns canned results keyed by SQL text; unknown SQL fails.
type fakeExecutor struct {
	results map[string]*core.QueryResult
	queries []string
}

func (f *fakeExecutor) Query(ctx context.Context, query string) (*core.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.queries = append(f.queries, query)
	if result, ok := f.results[query]; ok {
		return result, nil
	}
	return nil, fmt.Errorf("table not found")
}

func twoQueryPlan() *core.PlanResponse {
	return &core.PlanResponse{Queries: []core.AnalysisPlanItem{
		{ID: "q1", Title: "Sales by region", SQL: "SELECT region, SUM(amount) FROM sales GROUP BY region"},
		{ID: "q2", Title: "Top products", SQL: "SELECT product FROM sales LIMIT 5"},
	}}
}

func TestRun_Success(t *testing.T) {
	regionResult := &core.QueryResult{
		Columns: []string{"region", "sum"},
		Rows:    []map[string]any{{"region": "north", "sum": 100.0}},
	}
	remote := &fakeRemote{
		plan: twoQueryPlan(),
		insights: &core.InsightsResponse{
			Summary: "Regional sales are concentrated.",
			Insights: []core.InsightItem{{
				Title:    "North leads",
				Priority: core.PriorityHigh,
				Finding:  "North carries most revenue.",
				SQL:      "SELECT region, SUM(amount) FROM sales GROUP BY region",
			}},
		},
	}
	exec := &fakeExecutor{results: map[string]*core.QueryResult{
		"SELECT region, SUM(amount) FROM sales GROUP BY region": regionResult,
		"SELECT product FROM sales LIMIT 5":                     {Columns: []string{"product"}},
	}}

	o := New(remote, exec, WithLogger(testutil.NewTestLogger(t)))
	result, err := o.Run(context.Background(), &core.SchemaInfo{TableName: "sales"})
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, o.Progress().Phase)
	assert.Equal(t, "Regional sales are concentrated.", result.Summary)
	require.Len(t, result.Plan, 2)
	assert.Equal(t, []string{
		"SELECT region, SUM(amount) FROM sales GROUP BY region",
		"SELECT product FROM sales LIMIT 5",
	}, exec.queries)

	// Insight results are back-filled by exact SQL match.
	require.Len(t, result.Insights, 1)
	assert.Same(t, regionResult, result.Insights[0].QueryResult)
}

func TestRun_QueryFailureIsTolerated(t *testing.T) {
	remote := &fakeRemote{
		plan:     twoQueryPlan(),
		insights: &core.InsightsResponse{Summary: "Partial picture."},
	}
	exec := &fakeExecutor{results: map[string]*core.QueryResult{
		"SELECT product FROM sales LIMIT 5": {Columns: []string{"product"}},
	}}

	o := New(remote, exec, WithLogger(testutil.NewTestLogger(t)))
	result, err := o.Run(context.Background(), &core.SchemaInfo{TableName: "sales"})
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, o.Progress().Phase)
	require.True(t, remote.synthCalled)
	require.Len(t, remote.synthItems, 2)

	// Failed item carries its error, successful item its result.
	assert.Equal(t, "table not found", remote.synthItems[0].Error)
	assert.Nil(t, remote.synthItems[0].Result)
	assert.Empty(t, remote.synthItems[1].Error)
	assert.NotNil(t, remote.synthItems[1].Result)

	assert.Equal(t, "Partial picture.", result.Summary)
}

func TestRun_EmptyPlanIsFatal(t *testing.T) {
	remote := &fakeRemote{plan: &core.PlanResponse{}}
	o := New(remote, &fakeExecutor{})

	_, err := o.Run(context.Background(), &core.SchemaInfo{TableName: "sales"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyPlan)
	assert.Equal(t, core.PhaseError, o.Progress().Phase)
	assert.False(t, remote.synthCalled)
}

func TestRun_PlanFailureIsFatal(t *testing.T) {
	remote := &fakeRemote{planErr: errors.New("Plan request failed (502)")}
	o := New(remote, &fakeExecutor{})

	_, err := o.Run(context.Background(), &core.SchemaInfo{TableName: "sales"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Plan request failed (502)")
	assert.Equal(t, core.PhaseError, o.Progress().Phase)
}

func TestRun_SynthesisFailureIsFatal(t *testing.T) {
	remote := &fakeRemote{
		plan:     twoQueryPlan(),
		synthErr: errors.New("Synthesis request failed (500)"),
	}
	exec := &fakeExecutor{results: map[string]*core.QueryResult{}}

	o := New(remote, exec)
	_, err := o.Run(context.Background(), &core.SchemaInfo{TableName: "sales"})
	require.Error(t, err)
	assert.Equal(t, core.PhaseError, o.Progress().Phase)
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	remote := &fakeRemote{plan: twoQueryPlan()}
	o := New(remote, &fakeExecutor{})

	_, err := o.Run(ctx, &core.SchemaInfo{TableName: "sales"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.PhaseError, o.Progress().Phase)
	assert.False(t, remote.synthCalled)
}

func TestRun_ProgressSequence(t *testing.T) {
	remote := &fakeRemote{
		plan:     twoQueryPlan(),
		insights: &core.InsightsResponse{Summary: "ok"},
	}
	exec := &fakeExecutor{results: map[string]*core.QueryResult{
		"SELECT region, SUM(amount) FROM sales GROUP BY region": {},
		"SELECT product FROM sales LIMIT 5":                     {},
	}}

	var snapshots []core.Progress
	o := New(remote, exec, WithOnProgress(func(p core.Progress) {
		snapshots = append(snapshots, p)
	}))

	_, err := o.Run(context.Background(), &core.SchemaInfo{TableName: "sales"})
	require.NoError(t, err)
	require.NotEmpty(t, snapshots)

	// Phases appear in order and CompletedQueries never decreases or
	// exceeds TotalQueries.
	phaseOrder := map[core.Phase]int{
		core.PhasePlanning:     0,
		core.PhaseExecuting:    1,
		core.PhaseSynthesizing: 2,
		core.PhaseDone:         3,
	}
	lastPhase := -1
	lastCompleted := 0
	for _, s := range snapshots {
		rank, ok := phaseOrder[s.Phase]
		require.True(t, ok, "unexpected phase %q", s.Phase)
		assert.GreaterOrEqual(t, rank, lastPhase)
		lastPhase = rank

		assert.GreaterOrEqual(t, s.CompletedQueries, lastCompleted)
		assert.LessOrEqual(t, s.CompletedQueries, s.TotalQueries)
		lastCompleted = s.CompletedQueries

		if s.Phase != core.PhaseExecuting {
			assert.Empty(t, s.CurrentQueryTitle)
		}
	}

	// All queries are done before synthesis starts.
	for _, s := range snapshots {
		if s.Phase == core.PhaseSynthesizing {
			assert.Equal(t, s.TotalQueries, s.CompletedQueries)
		}
	}
	assert.Equal(t, core.PhaseDone, snapshots[len(snapshots)-1].Phase)
}

func TestBackfillResults(t *testing.T) {
	shared := &core.QueryResult{Columns: []string{"a"}}
	items := []core.PlanItemWithResult{
		{AnalysisPlanItem: core.AnalysisPlanItem{ID: "q1", SQL: "SELECT a"}, Result: shared},
		{AnalysisPlanItem: core.AnalysisPlanItem{ID: "q2", SQL: "SELECT a"}, Result: &core.QueryResult{}},
	}
	insights := []core.InsightItem{
		{Title: "matched", SQL: "SELECT a"},
		{Title: "no sql"},
		{Title: "unmatched", SQL: "SELECT b"},
	}

	backfillResults(insights, items)

	// First exact SQL match wins.
	assert.Same(t, shared, insights[0].QueryResult)
	assert.Nil(t, insights[1].QueryResult)
	assert.Nil(t, insights[2].QueryResult)
}

// memStore is an in-memory core.Store for asserting what the pipeline records.
type memStore struct {
	runs      map[string]*core.Run
	queryRuns map[string]*core.QueryRun
	nextID    int
}

func newMemStore() *memStore {
	return &memStore{
		runs:      make(map[string]*core.Run),
		queryRuns: make(map[string]*core.QueryRun),
	}
}

func (s *memStore) Open(string) error { return nil }
func (s *memStore) Close() error      { return nil }
func (s *memStore) InitSchema() error { return nil }

func (s *memStore) CreateRun(tableName string) (*core.Run, error) {
	s.nextID++
	run := &core.Run{ID: fmt.Sprintf("run-%d", s.nextID), TableName: tableName, Status: core.RunStatusRunning}
	s.runs[run.ID] = run
	return run, nil
}

func (s *memStore) GetRun(id string) (*core.Run, error) { return s.runs[id], nil }

func (s *memStore) CompleteRun(id string, status core.RunStatus, summary, errMsg string) error {
	run := s.runs[id]
	run.Status = status
	run.Summary = summary
	run.Error = errMsg
	return nil
}

func (s *memStore) ListRuns(int) ([]*core.Run, error) { return nil, nil }

func (s *memStore) RecordQueryRun(qr *core.QueryRun) error {
	s.nextID++
	qr.ID = fmt.Sprintf("qr-%d", s.nextID)
	s.queryRuns[qr.ID] = qr
	return nil
}

func (s *memStore) UpdateQueryRun(id string, status core.QueryRunStatus, rowCount int64, errMsg string) error {
	qr := s.queryRuns[id]
	qr.Status = status
	qr.RowCount = rowCount
	qr.Error = errMsg
	return nil
}

func (s *memStore) GetQueryRunsForRun(runID string) ([]*core.QueryRun, error) {
	var out []*core.QueryRun
	for _, qr := range s.queryRuns {
		if qr.RunID == runID {
			out = append(out, qr)
		}
	}
	return out, nil
}

func TestRun_RecordsHistory(t *testing.T) {
	remote := &fakeRemote{
		plan:     twoQueryPlan(),
		insights: &core.InsightsResponse{Summary: "Done."},
	}
	exec := &fakeExecutor{results: map[string]*core.QueryResult{
		"SELECT region, SUM(amount) FROM sales GROUP BY region": {Rows: []map[string]any{{"a": 1}, {"a": 2}}},
	}}
	store := newMemStore()

	o := New(remote, exec, WithStore(store))
	_, err := o.Run(context.Background(), &core.SchemaInfo{TableName: "sales"})
	require.NoError(t, err)

	require.Len(t, store.runs, 1)
	for _, run := range store.runs {
		assert.Equal(t, core.RunStatusCompleted, run.Status)
		assert.Equal(t, "Done.", run.Summary)
		assert.Equal(t, "sales", run.TableName)
	}

	require.Len(t, store.queryRuns, 2)
	byQueryID := map[string]*core.QueryRun{}
	for _, qr := range store.queryRuns {
		byQueryID[qr.QueryID] = qr
	}
	assert.Equal(t, core.QueryRunStatusSuccess, byQueryID["q1"].Status)
	assert.Equal(t, int64(2), byQueryID["q1"].RowCount)
	assert.Equal(t, core.QueryRunStatusFailed, byQueryID["q2"].Status)
	assert.Equal(t, "table not found", byQueryID["q2"].Error)
}

func TestRun_FailureMarksRunFailed(t *testing.T) {
	remote := &fakeRemote{
		plan:     twoQueryPlan(),
		synthErr: errors.New("Synthesis request failed (500)"),
	}
	store := newMemStore()

	o := New(remote, &fakeExecutor{}, WithStore(store))
	_, err := o.Run(context.Background(), &core.SchemaInfo{TableName: "sales"})
	require.Error(t, err)

	require.Len(t, store.runs, 1)
	for _, run := range store.runs {
		assert.Equal(t, core.RunStatusFailed, run.Status)
		assert.Contains(t, run.Error, "Synthesis request failed")
	}
}
