package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/todmy/req-analyzer/pkg/models"
)

var taskRowColumns = []string{
	"id", "project_id", "status", "progress", "total_comparisons", "completed_comparisons",
	"current_requirement_1", "current_requirement_2", "error", "is_current",
	"started_at", "completed_at", "created_at",
}

func TestPostgresTaskRepository_Create_ClearsCurrentFlag(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresTaskRepository(db)

	task := &models.AnalysisTask{
		ProjectID:        uuid.New(),
		Status:           models.TaskStatusPending,
		TotalComparisons: 45,
		IsCurrent:        true,
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE analysis_tasks SET is_current = FALSE").
		WithArgs(task.ProjectID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO analysis_tasks").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.Create(context.Background(), task); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if task.ID == uuid.Nil {
		t.Error("expected task ID to be generated")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresTaskRepository_Create_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresTaskRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE analysis_tasks SET is_current = FALSE").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err = repo.Create(context.Background(), &models.AnalysisTask{ProjectID: uuid.New(), IsCurrent: true})
	if err == nil {
		t.Error("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresTaskRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresTaskRepository(db)

	id, projectID := uuid.New(), uuid.New()
	started := time.Now().Add(-time.Minute)
	completed := time.Now()

	rows := sqlmock.NewRows(taskRowColumns).AddRow(
		id.String(), projectID.String(), "completed", 100, 10, 10,
		"", "", "", true, started, completed, started,
	)

	mock.ExpectQuery("SELECT (.+) FROM analysis_tasks WHERE id").
		WithArgs(id).
		WillReturnRows(rows)

	task, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if task.Status != models.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", task.Status)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(completed) {
		t.Errorf("expected completed_at %v, got %v", completed, task.CompletedAt)
	}
	if task.ProjectID != projectID {
		t.Errorf("expected project %s, got %s", projectID, task.ProjectID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresTaskRepository_GetCurrent_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresTaskRepository(db)
	projectID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM analysis_tasks WHERE project_id").
		WithArgs(projectID).
		WillReturnError(sql.ErrNoRows)

	task, err := repo.GetCurrent(context.Background(), projectID)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if task != nil {
		t.Error("expected nil task")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresTaskRepository_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresTaskRepository(db)

	task := &models.AnalysisTask{
		ID:                   uuid.New(),
		Status:               models.TaskStatusProcessing,
		Progress:             50,
		TotalComparisons:     10,
		CompletedComparisons: 5,
	}

	mock.ExpectExec("UPDATE analysis_tasks SET status").
		WithArgs(task.ID, "processing", 50, 10, 5, "", "", "", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), task); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
