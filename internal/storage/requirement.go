package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/todmy/req-analyzer/pkg/models"
)

// RequirementRepository defines the requirement lookups the analysis engine needs
type RequirementRepository interface {
	Create(ctx context.Context, requirement *models.Requirement) error
	Update(ctx context.Context, requirement *models.Requirement) error
	ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.Requirement, error)
	GetUpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error)
}

// PostgresRequirementRepository implements RequirementRepository using PostgreSQL
type PostgresRequirementRepository struct {
	db *sql.DB
}

// NewPostgresRequirementRepository creates a new PostgresRequirementRepository
func NewPostgresRequirementRepository(db *sql.DB) *PostgresRequirementRepository {
	return &PostgresRequirementRepository{db: db}
}

// Create inserts a new requirement into the database
func (r *PostgresRequirementRepository) Create(ctx context.Context, requirement *models.Requirement) error {
	if requirement.ID == uuid.Nil {
		requirement.ID = uuid.New()
	}

	now := time.Now()
	if requirement.CreatedAt.IsZero() {
		requirement.CreatedAt = now
	}
	if requirement.UpdatedAt.IsZero() {
		requirement.UpdatedAt = now
	}

	query := `
		INSERT INTO requirements (id, project_id, text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		requirement.ID,
		requirement.ProjectID,
		requirement.Text,
		requirement.CreatedAt,
		requirement.UpdatedAt,
	)

	return classify(err)
}

// Update modifies a requirement's text and bumps updated_at
func (r *PostgresRequirementRepository) Update(ctx context.Context, requirement *models.Requirement) error {
	requirement.UpdatedAt = time.Now()

	query := `
		UPDATE requirements
		SET text = $2, updated_at = $3
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		requirement.ID,
		requirement.Text,
		requirement.UpdatedAt,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByProjectID retrieves all requirements of a project
func (r *PostgresRequirementRepository) ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.Requirement, error) {
	query := `
		SELECT id, project_id, text, created_at, updated_at
		FROM requirements
		WHERE project_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRequirements(rows)
}

// GetUpdatedAt returns the last modification time of a requirement
func (r *PostgresRequirementRepository) GetUpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	query := `SELECT updated_at FROM requirements WHERE id = $1`

	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx, query, id).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}

	return updatedAt, nil
}

func scanRequirements(rows *sql.Rows) ([]*models.Requirement, error) {
	var requirements []*models.Requirement
	for rows.Next() {
		requirement := &models.Requirement{}
		err := rows.Scan(
			&requirement.ID,
			&requirement.ProjectID,
			&requirement.Text,
			&requirement.CreatedAt,
			&requirement.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		requirements = append(requirements, requirement)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return requirements, nil
}
