package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/datalens-labs/datalens/pkg/core"
)

func init() {
	Register("duckdb", func(logger *slog.Logger) Adapter { return NewDuckDB(logger) })
}

// DuckDB implements the Adapter interface for DuckDB.
type DuckDB struct {
	BaseSQLAdapter
}

// NewDuckDB creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func NewDuckDB(logger *slog.Logger) *DuckDB {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDB{BaseSQLAdapter: BaseSQLAdapter{Logger: logger}}
}

// DialectName returns the SQL dialect for this adapter.
func (a *DuckDB) DialectName() string {
	return "duckdb"
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database.
func (a *DuckDB) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	// One shared connection; plan queries run sequentially against it.
	db.SetMaxOpenConns(1)

	a.DB = db
	a.Cfg = cfg
	return nil
}

// SchemaSnapshot builds a schema snapshot of the table from DuckDB's
// information_schema plus a sample of rows.
func (a *DuckDB) SchemaSnapshot(ctx context.Context, table string, sampleRows int) (*core.SchemaInfo, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	schema, tableName := parseQualifiedName(table, "main")

	query := `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`
	rows, err := a.DB.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []core.SchemaColumn
	for rows.Next() {
		var col core.SchemaColumn
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}

	info := &core.SchemaInfo{TableName: tableName, Columns: columns}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteQualified(schema, tableName)) //nolint:gosec // Table names are validated by caller
	if err := a.DB.QueryRowContext(ctx, countQuery).Scan(&info.RowCount); err != nil {
		// Non-fatal error, just set to 0
		info.RowCount = 0
	}

	if sampleRows > 0 {
		sampleQuery := fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteQualified(schema, tableName), sampleRows) //nolint:gosec // Table names are validated by caller
		sample, err := a.Query(ctx, sampleQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to sample rows: %w", err)
		}
		info.SampleRows = sample.Rows
	}

	return info, nil
}

// LoadCSV loads data from a CSV file into a table.
// DuckDB will automatically infer the schema from the CSV file.
func (a *DuckDB) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	if a.DB == nil {
		return fmt.Errorf("database connection not established")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	// Use DuckDB's read_csv_auto to load the CSV with automatic schema detection
	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)",
		quoteIdentifier(tableName),
		strings.ReplaceAll(absPath, "'", "''"),
	)

	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}

	a.Logger.Debug("csv loaded", slog.String("table", tableName), slog.String("path", absPath))
	return nil
}

// quoteIdentifier double-quotes an identifier for DuckDB/Postgres.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteQualified(schema, name string) string {
	return quoteIdentifier(schema) + "." + quoteIdentifier(name)
}

// Ensure DuckDB implements Adapter interface
var _ Adapter = (*DuckDB)(nil)
