// Package pipeline drives an analysis run end to end: request a plan,
// execute each planned query against the local engine, then send the
// results back for synthesis. One run is one goroutine; observers read
// progress through snapshots.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/datalens-labs/datalens/pkg/core"
)

// ErrEmptyPlan is returned when the model produces a plan with no queries.
// The message is shown to users verbatim.
var ErrEmptyPlan = errors.New("No analysis queries were generated.")

// Remote requests plans and synthesis from the model endpoint service.
type Remote interface {
	RequestPlan(ctx context.Context, schema *core.SchemaInfo) (*core.PlanResponse, error)
	RequestSynthesis(ctx context.Context, schema *core.SchemaInfo, items []core.PlanItemWithResult) (*core.InsightsResponse, error)
}

// Executor runs one SQL statement against the local query engine.
type Executor interface {
	Query(ctx context.Context, query string) (*core.QueryResult, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithStore attaches a run-history store. Recording is best effort: store
// failures are logged and never fail the run.
func WithStore(store core.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithOnProgress registers a callback invoked with a snapshot after every
// progress change. The callback runs on the pipeline goroutine and must not
// block.
func WithOnProgress(fn func(core.Progress)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// Orchestrator owns the analysis state machine. It is single-use per run:
// call Run once, poll Progress from any goroutine.
type Orchestrator struct {
	remote     Remote
	exec       Executor
	store      core.Store
	logger     *slog.Logger
	onProgress func(core.Progress)

	mu       sync.Mutex
	progress core.Progress
}

// New creates an Orchestrator over the given remote client and executor.
func New(remote Remote, exec Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		remote:   remote,
		exec:     exec,
		logger:   slog.New(slog.DiscardHandler),
		progress: core.Progress{Phase: core.PhaseDone},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Progress returns an immutable snapshot of the current progress.
func (o *Orchestrator) Progress() core.Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

func (o *Orchestrator) setProgress(mutate func(*core.Progress)) {
	o.mu.Lock()
	mutate(&o.progress)
	snapshot := o.progress
	o.mu.Unlock()

	if o.onProgress != nil {
		o.onProgress(snapshot)
	}
}

// Run executes the full pipeline against the given schema. Individual query
// failures are tolerated and carried into the synthesis request; plan and
// synthesis failures, an empty plan, and context cancellation are fatal.
func (o *Orchestrator) Run(ctx context.Context, schema *core.SchemaInfo) (*core.AnalysisResult, error) {
	o.setProgress(func(p *core.Progress) {
		*p = core.Progress{Phase: core.PhasePlanning}
	})

	plan, err := o.remote.RequestPlan(ctx, schema)
	if err != nil {
		return nil, o.fail("", fmt.Errorf("planning failed: %w", err))
	}
	if len(plan.Queries) == 0 {
		return nil, o.fail("", ErrEmptyPlan)
	}

	o.logger.Info("plan received",
		slog.String("table", schema.TableName),
		slog.Int("queries", len(plan.Queries)))

	runID, queryRunIDs := o.recordRunStart(schema.TableName, plan.Queries)

	o.setProgress(func(p *core.Progress) {
		p.Phase = core.PhaseExecuting
		p.TotalQueries = len(plan.Queries)
		p.CompletedQueries = 0
	})

	items := make([]core.PlanItemWithResult, 0, len(plan.Queries))
	for _, item := range plan.Queries {
		o.setProgress(func(p *core.Progress) {
			p.CurrentQueryTitle = item.Title
		})
		o.updateQueryRun(runID, queryRunIDs[item.ID], core.QueryRunStatusRunning, 0, "")

		executed := core.PlanItemWithResult{AnalysisPlanItem: item}
		result, err := o.exec.Query(ctx, item.SQL)
		switch {
		case err != nil && ctx.Err() != nil:
			// Cancellation aborts the run; a single bad query does not.
			return nil, o.fail(runID, fmt.Errorf("run cancelled: %w", ctx.Err()))
		case err != nil:
			executed.Error = err.Error()
			o.logger.Warn("query failed",
				slog.String("query_id", item.ID), slog.String("error", err.Error()))
			o.updateQueryRun(runID, queryRunIDs[item.ID], core.QueryRunStatusFailed, 0, err.Error())
		default:
			executed.Result = result
			o.updateQueryRun(runID, queryRunIDs[item.ID], core.QueryRunStatusSuccess, int64(len(result.Rows)), "")
		}
		items = append(items, executed)

		o.setProgress(func(p *core.Progress) {
			p.CompletedQueries++
		})
	}

	o.setProgress(func(p *core.Progress) {
		p.Phase = core.PhaseSynthesizing
		p.CurrentQueryTitle = ""
	})

	insights, err := o.remote.RequestSynthesis(ctx, schema, items)
	if err != nil {
		return nil, o.fail(runID, fmt.Errorf("synthesis failed: %w", err))
	}

	backfillResults(insights.Insights, items)

	o.setProgress(func(p *core.Progress) {
		p.Phase = core.PhaseDone
	})
	o.recordRunEnd(runID, core.RunStatusCompleted, insights.Summary, "")

	o.logger.Info("analysis complete",
		slog.String("table", schema.TableName),
		slog.Int("insights", len(insights.Insights)))

	return &core.AnalysisResult{
		Summary:  insights.Summary,
		Insights: insights.Insights,
		Plan:     items,
	}, nil
}

// fail transitions to the error phase and returns err unchanged.
func (o *Orchestrator) fail(runID string, err error) error {
	o.setProgress(func(p *core.Progress) {
		p.Phase = core.PhaseError
		p.CurrentQueryTitle = ""
	})
	o.recordRunEnd(runID, core.RunStatusFailed, "", err.Error())
	return err
}

// backfillResults attaches the executed result to each insight that carries
// SQL, matched by the first plan item with exactly the same SQL text.
func backfillResults(insights []core.InsightItem, items []core.PlanItemWithResult) {
	for i := range insights {
		if insights[i].SQL == "" {
			continue
		}
		for _, item := range items {
			if item.SQL == insights[i].SQL {
				insights[i].QueryResult = item.Result
				break
			}
		}
	}
}

// recordRunStart creates the run record and its pending query rows. Returns
// the run id plus a plan-item-id to query-run-id mapping, or "" when no
// store is attached or the store fails.
func (o *Orchestrator) recordRunStart(tableName string, queries []core.AnalysisPlanItem) (string, map[string]string) {
	if o.store == nil {
		return "", nil
	}
	run, err := o.store.CreateRun(tableName)
	if err != nil {
		o.logger.Warn("failed to record run", slog.String("error", err.Error()))
		return "", nil
	}
	ids := make(map[string]string, len(queries))
	for _, q := range queries {
		qr := &core.QueryRun{
			RunID:   run.ID,
			QueryID: q.ID,
			Title:   q.Title,
			SQL:     q.SQL,
			Status:  core.QueryRunStatusPending,
		}
		if err := o.store.RecordQueryRun(qr); err != nil {
			o.logger.Warn("failed to record query run",
				slog.String("run_id", run.ID), slog.String("query_id", q.ID),
				slog.String("error", err.Error()))
			continue
		}
		ids[q.ID] = qr.ID
	}
	return run.ID, ids
}

func (o *Orchestrator) updateQueryRun(runID, queryRunID string, status core.QueryRunStatus, rowCount int64, errMsg string) {
	if o.store == nil || runID == "" || queryRunID == "" {
		return
	}
	if err := o.store.UpdateQueryRun(queryRunID, status, rowCount, errMsg); err != nil {
		o.logger.Warn("failed to update query run",
			slog.String("run_id", runID), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) recordRunEnd(runID string, status core.RunStatus, summary, errMsg string) {
	if o.store == nil || runID == "" {
		return
	}
	if err := o.store.CompleteRun(runID, status, summary, errMsg); err != nil {
		o.logger.Warn("failed to complete run",
			slog.String("run_id", runID), slog.String("error", err.Error()))
	}
}
