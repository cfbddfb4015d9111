package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/todmy/req-analyzer/pkg/models"
)

// ComparisonResultRepository persists per-project pair results. A run replaces
// all rows of its project: DeleteByProjectID first, then Create per pair.
type ComparisonResultRepository interface {
	Create(ctx context.Context, result *models.ComparisonResult) error
	ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.ComparisonResult, error)
	DeleteByProjectID(ctx context.Context, projectID uuid.UUID) error
}

// PostgresComparisonResultRepository implements ComparisonResultRepository using PostgreSQL
type PostgresComparisonResultRepository struct {
	db *sql.DB
}

// NewPostgresComparisonResultRepository creates a new PostgresComparisonResultRepository
func NewPostgresComparisonResultRepository(db *sql.DB) *PostgresComparisonResultRepository {
	return &PostgresComparisonResultRepository{db: db}
}

// Create inserts a comparison result
func (r *PostgresComparisonResultRepository) Create(ctx context.Context, result *models.ComparisonResult) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO comparison_results (
			id, project_id, requirement_id_1, requirement_id_2,
			requirement_text_1, requirement_text_2, index_1, index_2,
			similarity_score, contradiction_score, is_contradiction, provider, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		result.ID,
		result.ProjectID,
		nullUUID(result.RequirementID1),
		nullUUID(result.RequirementID2),
		result.RequirementText1,
		result.RequirementText2,
		result.Index1,
		result.Index2,
		result.SimilarityScore,
		result.ContradictionScore,
		result.IsContradiction,
		result.Provider,
		result.CreatedAt,
	)

	return classify(err)
}

// ListByProjectID retrieves the stored results of a project in pair order
func (r *PostgresComparisonResultRepository) ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.ComparisonResult, error) {
	query := `
		SELECT id, project_id, requirement_id_1, requirement_id_2,
			requirement_text_1, requirement_text_2, index_1, index_2,
			similarity_score, contradiction_score, is_contradiction, provider, created_at
		FROM comparison_results
		WHERE project_id = $1
		ORDER BY index_1 ASC, index_2 ASC
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.ComparisonResult
	for rows.Next() {
		result := &models.ComparisonResult{}
		var id1, id2 uuid.NullUUID
		err := rows.Scan(
			&result.ID,
			&result.ProjectID,
			&id1,
			&id2,
			&result.RequirementText1,
			&result.RequirementText2,
			&result.Index1,
			&result.Index2,
			&result.SimilarityScore,
			&result.ContradictionScore,
			&result.IsContradiction,
			&result.Provider,
			&result.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		result.RequirementID1 = id1.UUID
		result.RequirementID2 = id2.UUID
		results = append(results, result)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// DeleteByProjectID removes all results for a project
func (r *PostgresComparisonResultRepository) DeleteByProjectID(ctx context.Context, projectID uuid.UUID) error {
	query := `DELETE FROM comparison_results WHERE project_id = $1`
	_, err := r.db.ExecContext(ctx, query, projectID)
	return err
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
