package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/todmy/req-analyzer/pkg/models"
)

// TaskRepository defines the interface for analysis task storage operations
type TaskRepository interface {
	// Create inserts task. When task.IsCurrent is set, every other task of the
	// project loses its current flag in the same transaction.
	Create(ctx context.Context, task *models.AnalysisTask) error
	Update(ctx context.Context, task *models.AnalysisTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisTask, error)
	GetCurrent(ctx context.Context, projectID uuid.UUID) (*models.AnalysisTask, error)
}

// PostgresTaskRepository implements TaskRepository using PostgreSQL
type PostgresTaskRepository struct {
	db *sql.DB
}

// NewPostgresTaskRepository creates a new PostgresTaskRepository
func NewPostgresTaskRepository(db *sql.DB) *PostgresTaskRepository {
	return &PostgresTaskRepository{db: db}
}

const taskColumns = `id, project_id, status, progress, total_comparisons, completed_comparisons,
	current_requirement_1, current_requirement_2, error, is_current, started_at, completed_at, created_at`

// Create inserts a new task
func (r *PostgresTaskRepository) Create(ctx context.Context, task *models.AnalysisTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if task.IsCurrent {
		_, err := tx.ExecContext(ctx,
			`UPDATE analysis_tasks SET is_current = FALSE WHERE project_id = $1 AND is_current`,
			task.ProjectID,
		)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO analysis_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = tx.ExecContext(ctx, query,
		task.ID,
		task.ProjectID,
		string(task.Status),
		task.Progress,
		task.TotalComparisons,
		task.CompletedComparisons,
		task.CurrentRequirement1,
		task.CurrentRequirement2,
		task.Error,
		task.IsCurrent,
		nullTime(task.StartedAt),
		nullTime(task.CompletedAt),
		task.CreatedAt,
	)
	if err != nil {
		return classify(err)
	}

	return tx.Commit()
}

// Update writes the mutable task fields
func (r *PostgresTaskRepository) Update(ctx context.Context, task *models.AnalysisTask) error {
	query := `
		UPDATE analysis_tasks
		SET status = $2, progress = $3, total_comparisons = $4, completed_comparisons = $5,
			current_requirement_1 = $6, current_requirement_2 = $7, error = $8,
			started_at = $9, completed_at = $10
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		task.ID,
		string(task.Status),
		task.Progress,
		task.TotalComparisons,
		task.CompletedComparisons,
		task.CurrentRequirement1,
		task.CurrentRequirement2,
		task.Error,
		nullTime(task.StartedAt),
		nullTime(task.CompletedAt),
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

// GetByID retrieves a task by its ID
func (r *PostgresTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisTask, error) {
	query := `SELECT ` + taskColumns + ` FROM analysis_tasks WHERE id = $1`
	return scanTask(r.db.QueryRowContext(ctx, query, id))
}

// GetCurrent retrieves the most recently started task of a project
func (r *PostgresTaskRepository) GetCurrent(ctx context.Context, projectID uuid.UUID) (*models.AnalysisTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM analysis_tasks
		WHERE project_id = $1 AND is_current
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanTask(r.db.QueryRowContext(ctx, query, projectID))
}

func scanTask(row *sql.Row) (*models.AnalysisTask, error) {
	task := &models.AnalysisTask{}
	var (
		status               string
		startedAt, completed sql.NullTime
	)
	err := row.Scan(
		&task.ID,
		&task.ProjectID,
		&status,
		&task.Progress,
		&task.TotalComparisons,
		&task.CompletedComparisons,
		&task.CurrentRequirement1,
		&task.CurrentRequirement2,
		&task.Error,
		&task.IsCurrent,
		&startedAt,
		&completed,
		&task.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	task.Status = models.TaskStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		task.CompletedAt = &t
	}
	return task, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
