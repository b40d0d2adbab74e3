package core

import "time"

// RunStatus represents the status of a recorded analysis run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded analysis pipeline run.
type Run struct {
	ID          string     `json:"id"`
	TableName   string     `json:"table_name"`
	Status      RunStatus  `json:"status"`
	Summary     string     `json:"summary,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// QueryRunStatus represents the status of one plan item within a run.
type QueryRunStatus string

// Query run status constants.
const (
	QueryRunStatusPending QueryRunStatus = "pending"
	QueryRunStatusRunning QueryRunStatus = "running"
	QueryRunStatusSuccess QueryRunStatus = "success"
	QueryRunStatusFailed  QueryRunStatus = "failed"
)

// QueryRun records the execution of one plan item.
type QueryRun struct {
	ID       string         `json:"id"`
	RunID    string         `json:"run_id"`
	QueryID  string         `json:"query_id"`
	Title    string         `json:"title"`
	SQL      string         `json:"sql"`
	Status   QueryRunStatus `json:"status"`
	RowCount int64          `json:"row_count"`
	Error    string         `json:"error,omitempty"`
}

// Store defines the interface for run history persistence.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(tableName string) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, summary, errMsg string) error
	ListRuns(limit int) ([]*Run, error)

	// Query run operations
	RecordQueryRun(qr *QueryRun) error
	UpdateQueryRun(id string, status QueryRunStatus, rowCount int64, errMsg string) error
	GetQueryRunsForRun(runID string) ([]*QueryRun, error)
}
