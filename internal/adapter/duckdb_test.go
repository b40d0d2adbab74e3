package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func connectMemoryDuckDB(t *testing.T) *DuckDB {
	t.Helper()
	ctx := context.Background()
	a := NewDuckDB(nil)
	if err := a.Connect(ctx, Config{Path: ":memory:"}); err != nil {
		t.Fatalf("failed to connect to in-memory DuckDB: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestDuckDB_ConnectInMemory(t *testing.T) {
	connectMemoryDuckDB(t)
}

func TestDuckDB_ConnectFileBased(t *testing.T) {
	ctx := context.Background()
	a := NewDuckDB(nil)

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.duckdb")

	if err := a.Connect(ctx, Config{Path: dbPath}); err != nil {
		t.Fatalf("failed to connect to file-based DuckDB: %v", err)
	}
	defer a.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestDuckDB_Query(t *testing.T) {
	ctx := context.Background()
	a := connectMemoryDuckDB(t)

	if err := a.Exec(ctx, `CREATE TABLE users (id INTEGER, name VARCHAR)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if err := a.Exec(ctx, `INSERT INTO users VALUES (1, 'alice'), (2, 'bob')`); err != nil {
		t.Fatalf("failed to insert data: %v", err)
	}

	result, err := a.Query(ctx, `SELECT id, name FROM users ORDER BY id`)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}

	if len(result.Columns) != 2 || result.Columns[0] != "id" || result.Columns[1] != "name" {
		t.Errorf("unexpected columns: %v", result.Columns)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if result.Rows[0]["name"] != "alice" {
		t.Errorf("rows[0][name] = %v, want alice", result.Rows[0]["name"])
	}
}

func TestDuckDB_QueryError(t *testing.T) {
	ctx := context.Background()
	a := connectMemoryDuckDB(t)

	if _, err := a.Query(ctx, `SELECT * FROM missing_table`); err == nil {
		t.Fatal("expected error querying a missing table")
	}
	if _, err := a.Query(ctx, `SELEC nonsense`); err == nil {
		t.Fatal("expected error for invalid SQL")
	}
}

func TestDuckDB_SchemaSnapshot(t *testing.T) {
	ctx := context.Background()
	a := connectMemoryDuckDB(t)

	if err := a.Exec(ctx, `CREATE TABLE sales (region VARCHAR, amount DOUBLE)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if err := a.Exec(ctx, `INSERT INTO sales VALUES ('north', 10.5), ('south', 20.0), ('east', 5.25)`); err != nil {
		t.Fatalf("failed to insert data: %v", err)
	}

	info, err := a.SchemaSnapshot(ctx, "sales", 2)
	if err != nil {
		t.Fatalf("SchemaSnapshot failed: %v", err)
	}

	if info.TableName != "sales" {
		t.Errorf("TableName = %q, want sales", info.TableName)
	}
	if len(info.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(info.Columns))
	}
	if info.Columns[0].Name != "region" {
		t.Errorf("columns[0] = %q, want region", info.Columns[0].Name)
	}
	if info.RowCount != 3 {
		t.Errorf("RowCount = %d, want 3", info.RowCount)
	}
	if len(info.SampleRows) != 2 {
		t.Errorf("expected 2 sample rows, got %d", len(info.SampleRows))
	}
}

func TestDuckDB_SchemaSnapshotMissingTable(t *testing.T) {
	ctx := context.Background()
	a := connectMemoryDuckDB(t)

	if _, err := a.SchemaSnapshot(ctx, "no_such_table", 5); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestDuckDB_LoadCSV(t *testing.T) {
	ctx := context.Background()
	a := connectMemoryDuckDB(t)

	csvPath := filepath.Join(t.TempDir(), "data.csv")
	content := "region,sales\nnorth,100\nsouth,250\n"
	if err := os.WriteFile(csvPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}

	if err := a.LoadCSV(ctx, "dataset", csvPath); err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}

	result, err := a.Query(ctx, `SELECT region, sales FROM dataset ORDER BY sales`)
	if err != nil {
		t.Fatalf("failed to query loaded data: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if result.Rows[0]["region"] != "north" {
		t.Errorf("rows[0][region] = %v, want north", result.Rows[0]["region"])
	}
}

func TestDuckDB_NotConnected(t *testing.T) {
	ctx := context.Background()
	a := NewDuckDB(nil)

	if err := a.Exec(ctx, "SELECT 1"); err == nil {
		t.Error("Exec should fail before Connect")
	}
	if _, err := a.Query(ctx, "SELECT 1"); err == nil {
		t.Error("Query should fail before Connect")
	}
	if _, err := a.SchemaSnapshot(ctx, "t", 1); err == nil {
		t.Error("SchemaSnapshot should fail before Connect")
	}
}
