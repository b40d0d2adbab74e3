package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/datalens-labs/datalens/pkg/core"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Format string
	Limit  int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show analysis run history",
		Long: `Show recorded analysis runs, newest first.

With a run id, shows the run's summary and the outcome of each planned
query.`,
		Example: `  # List recent runs
  datalens runs

  # Show one run in detail
  datalens runs 5f2b9c1e-...

  # More history, machine readable
  datalens runs --limit 100 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showRun(cmd, args[0], opts)
			}
			return listRuns(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list")

	return cmd
}

func listRuns(cmd *cobra.Command, opts *RunsOptions) error {
	cc := NewCommandContext(cmd)

	store, cleanup, err := openStore(cc.Cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	runs, err := store.ListRuns(opts.Limit)
	if err != nil {
		return err
	}

	result := &core.QueryResult{
		Columns: []string{"id", "table", "status", "started", "summary"},
		Rows:    make([]map[string]any, 0, len(runs)),
	}
	for _, run := range runs {
		result.Rows = append(result.Rows, map[string]any{
			"id":      run.ID,
			"table":   run.TableName,
			"status":  string(run.Status),
			"started": run.StartedAt.Format(time.RFC3339),
			"summary": truncate(run.Summary, 60),
		})
	}

	return renderResult(cmd.OutOrStdout(), result, opts.Format)
}

func showRun(cmd *cobra.Command, runID string, opts *RunsOptions) error {
	cc := NewCommandContext(cmd)

	store, cleanup, err := openStore(cc.Cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	queryRuns, err := store.GetQueryRunsForRun(runID)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return renderJSON(cmd.OutOrStdout(), map[string]any{
			"run":     run,
			"queries": queryRuns,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "Table:   %s\n", run.TableName)
	fmt.Fprintf(w, "Status:  %s\n", run.Status)
	fmt.Fprintf(w, "Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Fprintf(w, "Ended:   %s\n", run.CompletedAt.Format(time.RFC3339))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", run.Error)
	}
	if run.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", run.Summary)
	}
	fmt.Fprintln(w)

	result := &core.QueryResult{
		Columns: []string{"title", "status", "rows", "error"},
		Rows:    make([]map[string]any, 0, len(queryRuns)),
	}
	for _, qr := range queryRuns {
		result.Rows = append(result.Rows, map[string]any{
			"title":  qr.Title,
			"status": string(qr.Status),
			"rows":   qr.RowCount,
			"error":  truncate(qr.Error, 60),
		})
	}

	return renderResult(w, result, opts.Format)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
