package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datalens-labs/datalens/internal/adapter"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Query the analysis database",
		Long: `Query the local analysis database directly.

Execute SQL against the query engine holding your loaded datasets.
Supports multiple output formats for scripting and integration.

When invoked without arguments, enters interactive REPL mode.`,
		Example: `  # Execute SQL directly
  datalens query "SELECT * FROM dataset LIMIT 10"

  # List available tables
  datalens query tables

  # Show schema for a table
  datalens query schema dataset

  # Output as JSON
  datalens query "SELECT count(*) AS n FROM dataset" --format json

  # Interactive mode
  datalens query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	cmd.AddCommand(newQueryTablesCommand(opts))
	cmd.AddCommand(newQuerySchemaCommand(opts))

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	ctx := cmd.Context()
	cc := NewCommandContext(cmd)

	ad, cleanup, err := openAdapter(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Determine SQL source
	var sqlQuery string

	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(os.Stdin):
		// Read from stdin (piped input)
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		// No input, TTY detected - enter REPL mode
		return runQueryREPL(cmd, ad, cc.Cfg, opts)
	}

	return executeAndRender(ctx, cmd, ad, sqlQuery, opts.Format)
}

func executeAndRender(ctx context.Context, cmd *cobra.Command, ad adapter.Adapter, sqlQuery, format string) error {
	result, err := ad.Query(ctx, sqlQuery)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return renderResult(cmd.OutOrStdout(), result, format)
}

// newQueryTablesCommand creates the tables subcommand.
func newQueryTablesCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List all tables in the analysis database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			ad, cleanup, err := openAdapter(cmd.Context(), cc.Cfg, cc.Logger)
			if err != nil {
				return err
			}
			defer cleanup()
			return listTables(cmd.Context(), cmd.OutOrStdout(), ad, opts.Format)
		},
	}
}

// newQuerySchemaCommand creates the schema subcommand.
func newQuerySchemaCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show schema for a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)
			ad, cleanup, err := openAdapter(cmd.Context(), cc.Cfg, cc.Logger)
			if err != nil {
				return err
			}
			defer cleanup()
			return showSchema(cmd.Context(), cmd.OutOrStdout(), ad, args[0], opts.Format)
		},
	}
}

// information_schema queries keep these portable across duckdb and postgres.

func listTables(ctx context.Context, w io.Writer, ad adapter.Adapter, format string) error {
	result, err := ad.Query(ctx, `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_name`)
	if err != nil {
		return err
	}
	return renderResult(w, result, format)
}

func showSchema(ctx context.Context, w io.Writer, ad adapter.Adapter, tableName, format string) error {
	result, err := ad.Query(ctx, fmt.Sprintf(`
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = '%s'
		ORDER BY ordinal_position`, strings.ReplaceAll(tableName, "'", "''")))
	if err != nil {
		return err
	}
	if len(result.Rows) == 0 {
		return fmt.Errorf("table '%s' not found", tableName)
	}
	return renderResult(w, result, format)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
