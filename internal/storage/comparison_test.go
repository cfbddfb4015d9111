package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/todmy/req-analyzer/pkg/models"
)

func TestPostgresComparisonResultRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresComparisonResultRepository(db)

	result := &models.ComparisonResult{
		ProjectID:          uuid.New(),
		RequirementText1:   "The system shall allow refunds within 30 days of purchase.",
		RequirementText2:   "The system shall not allow any refunds under any circumstances.",
		Index1:             0,
		Index2:             1,
		SimilarityScore:    0.99,
		ContradictionScore: 0.95,
		IsContradiction:    true,
		Provider:           "test",
	}

	mock.ExpectExec("INSERT INTO comparison_results").
		WithArgs(
			sqlmock.AnyArg(), result.ProjectID, nil, nil,
			result.RequirementText1, result.RequirementText2, 0, 1,
			0.99, 0.95, true, "test", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), result); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result.ID == uuid.Nil {
		t.Error("expected result ID to be generated")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresComparisonResultRepository_ListByProjectID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresComparisonResultRepository(db)

	projectID := uuid.New()
	reqID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "project_id", "requirement_id_1", "requirement_id_2",
		"requirement_text_1", "requirement_text_2", "index_1", "index_2",
		"similarity_score", "contradiction_score", "is_contradiction", "provider", "created_at",
	}).AddRow(
		uuid.New().String(), projectID.String(), reqID.String(), nil,
		"text one here", "text two here", 0, 1,
		0.99, 0.97, true, "test", now,
	)

	mock.ExpectQuery("SELECT (.+) FROM comparison_results WHERE project_id").
		WithArgs(projectID).
		WillReturnRows(rows)

	results, err := repo.ListByProjectID(context.Background(), projectID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].RequirementID1 != reqID {
		t.Errorf("expected requirement id %s, got %s", reqID, results[0].RequirementID1)
	}
	if results[0].RequirementID2 != uuid.Nil {
		t.Errorf("expected nil requirement id, got %s", results[0].RequirementID2)
	}
	if !results[0].IsContradiction {
		t.Error("expected contradiction flag")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresComparisonResultRepository_DeleteByProjectID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresComparisonResultRepository(db)
	projectID := uuid.New()

	mock.ExpectExec("DELETE FROM comparison_results WHERE project_id").
		WithArgs(projectID).
		WillReturnResult(sqlmock.NewResult(0, 12))

	if err := repo.DeleteByProjectID(context.Background(), projectID); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
