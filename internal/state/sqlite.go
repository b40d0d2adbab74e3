// Package state persists analysis run history in SQLite.
package state

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/datalens-labs/datalens/pkg/core"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore implements core.Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite run-history store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		// WAL keeps readers (the runs command) from blocking a recording run.
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	} else {
		dsn = ":memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema initializes the database schema.
func (s *SQLiteStore) InitSchema() error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// CreateRun creates a new analysis run in the running state.
func (s *SQLiteStore) CreateRun(tableName string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &core.Run{
		ID:        generateID(),
		TableName: tableName,
		Status:    core.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, table_name, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.TableName, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &core.Run{}
	var summary, errMsg sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRow(
		`SELECT id, table_name, status, summary, error, started_at, completed_at FROM runs WHERE id = ?`,
		id,
	).Scan(&run.ID, &run.TableName, &run.Status, &summary, &errMsg, &run.StartedAt, &completedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Summary = summary.String
	run.Error = errMsg.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, summary, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	result, err := s.db.Exec(
		`UPDATE runs SET status = ?, summary = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, nullIfEmpty(summary), nullIfEmpty(errMsg), now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListRuns retrieves the most recent runs up to the given limit.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, table_name, status, summary, error, started_at, completed_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run := &core.Run{}
		var summary, errMsg sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.TableName, &run.Status, &summary, &errMsg, &run.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Summary = summary.String
		run.Error = errMsg.String
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// RecordQueryRun inserts a query-run record, assigning its ID.
func (s *SQLiteStore) RecordQueryRun(qr *core.QueryRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if qr.ID == "" {
		qr.ID = generateID()
	}
	if qr.Status == "" {
		qr.Status = core.QueryRunStatusPending
	}

	_, err := s.db.Exec(
		`INSERT INTO query_runs (id, run_id, query_id, title, sql, status, row_count, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		qr.ID, qr.RunID, qr.QueryID, qr.Title, qr.SQL, qr.Status, qr.RowCount, nullIfEmpty(qr.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record query run: %w", err)
	}
	return nil
}

// UpdateQueryRun updates the status, row count and error of a query run.
func (s *SQLiteStore) UpdateQueryRun(id string, status core.QueryRunStatus, rowCount int64, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.Exec(
		`UPDATE query_runs SET status = ?, row_count = ?, error = ? WHERE id = ?`,
		status, rowCount, nullIfEmpty(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update query run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("query run not found: %s", id)
	}
	return nil
}

// GetQueryRunsForRun retrieves all query runs belonging to a run.
func (s *SQLiteStore) GetQueryRunsForRun(runID string) ([]*core.QueryRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, query_id, title, sql, status, row_count, error
		 FROM query_runs WHERE run_id = ? ORDER BY rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var queryRuns []*core.QueryRun
	for rows.Next() {
		qr := &core.QueryRun{}
		var errMsg sql.NullString
		if err := rows.Scan(&qr.ID, &qr.RunID, &qr.QueryID, &qr.Title, &qr.SQL, &qr.Status, &qr.RowCount, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan query run: %w", err)
		}
		qr.Error = errMsg.String
		queryRuns = append(queryRuns, qr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query runs: %w", err)
	}

	return queryRuns, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure SQLiteStore implements core.Store
var _ core.Store = (*SQLiteStore)(nil)
