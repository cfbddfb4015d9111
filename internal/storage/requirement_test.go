package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/todmy/req-analyzer/pkg/models"
)

func TestPostgresRequirementRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRequirementRepository(db)

	req := &models.Requirement{
		ProjectID: uuid.New(),
		Text:      "The system shall allow refunds within 30 days of purchase.",
	}

	mock.ExpectExec("INSERT INTO requirements").
		WithArgs(sqlmock.AnyArg(), req.ProjectID, req.Text, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), req); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if req.ID == uuid.Nil {
		t.Error("expected requirement ID to be generated")
	}
	if req.UpdatedAt.IsZero() {
		t.Error("expected updated_at to be stamped")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRequirementRepository_Update_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRequirementRepository(db)

	mock.ExpectExec("UPDATE requirements").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Update(context.Background(), &models.Requirement{ID: uuid.New(), Text: "changed text"})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRequirementRepository_ListByProjectID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRequirementRepository(db)

	projectID := uuid.New()
	id1, id2 := uuid.New(), uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "project_id", "text", "created_at", "updated_at"}).
		AddRow(id1.String(), projectID.String(), "first requirement text", now, now).
		AddRow(id2.String(), projectID.String(), "second requirement text", now, now)

	mock.ExpectQuery("SELECT (.+) FROM requirements WHERE project_id").
		WithArgs(projectID).
		WillReturnRows(rows)

	reqs, err := repo.ListByProjectID(context.Background(), projectID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].ID != id1 || reqs[1].ID != id2 {
		t.Errorf("unexpected ids: %s, %s", reqs[0].ID, reqs[1].ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRequirementRepository_GetUpdatedAt_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRequirementRepository(db)

	id := uuid.New()
	mock.ExpectQuery("SELECT updated_at FROM requirements WHERE id").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetUpdatedAt(context.Background(), id)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRequirementRepository_Create_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRequirementRepository(db)

	mock.ExpectExec("INSERT INTO requirements").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err = repo.Create(context.Background(), &models.Requirement{ID: uuid.New(), Text: "duplicate requirement"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}
