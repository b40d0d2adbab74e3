package state

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// Driver-level failures are hard to provoke with a real database; sqlmock
// covers the error-wrapping paths.

func mockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &SQLiteStore{db: db}, mock
}

func TestCreateRun_InsertError(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("INSERT INTO runs").WillReturnError(errors.New("disk I/O error"))

	if _, err := s.CreateRun("sales"); err == nil {
		t.Fatal("expected error when insert fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListRuns_QueryError(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM runs").WillReturnError(errors.New("database is locked"))

	if _, err := s.ListRuns(10); err == nil {
		t.Fatal("expected error when query fails")
	}
}

func TestUpdateQueryRun_ExecError(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("UPDATE query_runs").WillReturnError(errors.New("database is locked"))

	if err := s.UpdateQueryRun("id", "success", 1, ""); err == nil {
		t.Fatal("expected error when update fails")
	}
}

func TestCompleteRun_RowsAffectedError(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("UPDATE runs").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("result unavailable")))

	if err := s.CompleteRun("id", "completed", "", ""); err == nil {
		t.Fatal("expected error when RowsAffected fails")
	}
}
