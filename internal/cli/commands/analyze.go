package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datalens-labs/datalens/internal/pipeline"
	"github.com/datalens-labs/datalens/internal/remote"
	"github.com/datalens-labs/datalens/pkg/core"
)

// AnalyzeOptions holds options for the analyze command.
type AnalyzeOptions struct {
	Format string
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <file.csv>",
		Short: "Load a CSV and run a full analysis",
		Long: `Load a CSV file into the local query engine and run the analysis
pipeline against it: the model plans a set of SQL queries, datalens
executes them locally, and the model synthesizes the results into a
summary with prioritized insights.

Individual query failures do not abort the run; the model sees the
errors and works with what succeeded. Each run is recorded in the
run-history database (see 'datalens runs').`,
		Example: `  # Analyze a dataset
  datalens analyze sales.csv

  # Machine-readable output
  datalens analyze sales.csv --format json

  # Against a different endpoint
  datalens analyze sales.csv --endpoint http://model-host:8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table, json, csv, md (default from config)")

	return cmd
}

func runAnalyze(cmd *cobra.Command, csvPath string, opts *AnalyzeOptions) error {
	ctx := cmd.Context()
	cc := NewCommandContext(cmd)
	cfg := cc.Cfg

	format := opts.Format
	if format == "" {
		format = cfg.Output
	}

	ad, cleanup, err := openAdapter(ctx, cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := ad.LoadCSV(ctx, cfg.Table, csvPath); err != nil {
		return fmt.Errorf("failed to load %s: %w", csvPath, err)
	}

	schema, err := ad.SchemaSnapshot(ctx, cfg.Table, cfg.SampleRows)
	if err != nil {
		return fmt.Errorf("failed to snapshot schema: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Loaded %s into %q (%d rows, %d columns)\n",
		csvPath, cfg.Table, schema.RowCount, len(schema.Columns))

	client := remote.NewClient(remote.Config{
		BaseURL: cfg.Endpoint,
		Logger:  cc.Logger,
	})

	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(cc.Logger),
		pipeline.WithOnProgress(progressPrinter(cmd)),
	}

	// History recording is best effort; an unusable state database should
	// not block the analysis itself.
	store, storeCleanup, err := openStore(cfg)
	if err != nil {
		cc.Logger.Warn("run history disabled", "error", err)
	} else {
		defer storeCleanup()
		pipeOpts = append(pipeOpts, pipeline.WithStore(store))
	}

	orch := pipeline.New(client, ad, pipeOpts...)
	result, err := orch.Run(ctx, schema)
	if err != nil {
		return err
	}

	return renderAnalysis(cmd.OutOrStdout(), result, format)
}

// progressPrinter returns a progress callback that narrates the run on
// stderr, one line per phase change or executed query.
func progressPrinter(cmd *cobra.Command) func(core.Progress) {
	w := cmd.ErrOrStderr()
	var lastPhase core.Phase
	var lastTitle string

	return func(p core.Progress) {
		switch p.Phase {
		case core.PhasePlanning:
			if lastPhase != core.PhasePlanning {
				fmt.Fprintln(w, "Planning analysis...")
			}
		case core.PhaseExecuting:
			if p.CurrentQueryTitle != "" && p.CurrentQueryTitle != lastTitle {
				fmt.Fprintf(w, "[%d/%d] %s\n", p.CompletedQueries+1, p.TotalQueries, p.CurrentQueryTitle)
			}
		case core.PhaseSynthesizing:
			if lastPhase != core.PhaseSynthesizing {
				fmt.Fprintln(w, "Synthesizing insights...")
			}
		}
		lastPhase = p.Phase
		lastTitle = p.CurrentQueryTitle
	}
}
