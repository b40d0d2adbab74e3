package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datalens-labs/datalens/internal/remote"
)

// AskOptions holds options for the ask command.
type AskOptions struct {
	Format string
}

// NewAskCommand creates the ask command.
func NewAskCommand() *cobra.Command {
	opts := &AskOptions{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the loaded dataset",
		Long: `Ask a natural-language question about the currently loaded dataset.

The model either answers conversationally or proposes a SQL query,
which datalens executes locally and renders. Requires a dataset loaded
by a previous 'datalens analyze' (or 'datalens query' against your own
data).`,
		Example: `  datalens ask "which product had the highest revenue last month?"
  datalens ask "how many rows have a missing email?" --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table, json, csv, md (default from config)")

	return cmd
}

func runAsk(cmd *cobra.Command, question string, opts *AskOptions) error {
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

	schema, err := ad.SchemaSnapshot(ctx, cfg.Table, cfg.SampleRows)
	if err != nil {
		return fmt.Errorf("no dataset loaded as %q (run 'datalens analyze' first): %w", cfg.Table, err)
	}

	client := remote.NewClient(remote.Config{
		BaseURL: cfg.Endpoint,
		Logger:  cc.Logger,
	})

	resp, err := client.RequestChat(ctx, schema, []remote.ChatMessage{
		{Role: "user", Content: question},
	})
	if err != nil {
		return err
	}

	if resp.Explanation != "" {
		fmt.Fprintln(cmd.OutOrStdout(), resp.Explanation)
	}
	if resp.SQL == "" {
		return nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Running: %s\n", resp.SQL)
	result, err := ad.Query(ctx, resp.SQL)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	return renderResult(cmd.OutOrStdout(), result, format)
}
