package core

// SchemaColumn describes one column of the loaded table.
type SchemaColumn struct {
	// Name is the column name as reported by the database.
	Name string `json:"name"`

	// Type is the database type of the column (e.g., "VARCHAR", "BIGINT").
	Type string `json:"type"`
}

// SchemaInfo is an immutable snapshot of the loaded table, taken once and
// consumed read-only for the duration of a pipeline run.
type SchemaInfo struct {
	// TableName is the name of the table the snapshot describes.
	TableName string `json:"tableName"`

	// Columns lists the table's columns in ordinal order.
	Columns []SchemaColumn `json:"columns"`

	// SampleRows holds up to a handful of example rows, keyed by column name.
	SampleRows []map[string]any `json:"sampleRows"`

	// RowCount is the total number of rows in the table.
	RowCount int64 `json:"rowCount"`
}

// QueryResult is the tabular result of executing one SQL query.
// Produced once per execution and never mutated afterwards.
type QueryResult struct {
	// Columns holds the result column names in order.
	Columns []string `json:"columns"`

	// Rows holds the result rows, each keyed by column name.
	Rows []map[string]any `json:"rows"`
}
