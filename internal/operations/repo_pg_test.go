package operations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func pgTestColumns() []string {
	return []string{
		"id", "remote_ref", "model_type", "custom_model_id", "source_kind", "source_url",
		"storage_key", "content_type", "size_bytes", "status", "result", "error_kind",
		"error_detail", "created_at", "updated_at",
	}
}

func TestPGRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	op := newTestOperation("op-1")

	mock.ExpectExec("INSERT INTO operations").
		WithArgs(
			op.ID,
			op.RemoteRef,
			op.Model.Kind(),
			"",
			op.Source.Kind,
			op.Source.URL,
			"",
			"",
			int64(0),
			StatusNotStarted,
			nil,
			"",
			"",
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), op); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDRestoresResultAndError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	rows := sqlmock.NewRows(pgTestColumns()).AddRow(
		"op-1", "https://remote.example/operations/ref-1", "custom", "my-model",
		SourceKindURL, "https://example.com/doc.pdf", "", "", int64(0),
		StatusFailed, nil, ErrorKindRemoteFailure, "boom", now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM operations").
		WithArgs("op-1").
		WillReturnRows(rows)

	op, err := repo.GetByID(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !op.Model.IsCustom() || op.Model.RemoteID() != "my-model" {
		t.Fatalf("model not restored: %v", op.Model)
	}
	if op.Error == nil || op.Error.Kind != ErrorKindRemoteFailure || op.Error.Detail != "boom" {
		t.Fatalf("error not restored: %+v", op.Error)
	}
	if op.Result != nil {
		t.Fatalf("failed operation must not carry a result")
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectQuery("SELECT (.+) FROM operations").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(pgTestColumns()))

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoTransitionApplies(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec("UPDATE operations").
		WithArgs(StatusRunning, nil, "", "", "op-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Transition(context.Background(), "op-1", StatusRunning, nil, nil); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoTransitionIllegalWhenNoRowMatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec("UPDATE operations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM operations").
		WithArgs("op-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(StatusSucceeded))

	err = repo.Transition(context.Background(), "op-1", StatusFailed, nil, &OperationError{Kind: ErrorKindRemoteFailure})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestPGRepoTransitionNotFoundWhenRowMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec("UPDATE operations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM operations").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	err = repo.Transition(context.Background(), "missing", StatusRunning, nil, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoEvictReportsCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	cutoff := time.Now().UTC().Add(-time.Hour)
	mock.ExpectExec("DELETE FROM operations").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	removed, err := repo.Evict(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if removed != 4 {
		t.Fatalf("removed = %d, want 4", removed)
	}
}
