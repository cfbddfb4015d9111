package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/todmy/req-analyzer/internal/storage"
	"github.com/todmy/req-analyzer/pkg/models"
)

// TaskCoordinator owns the AnalysisTask state machine:
// pending -> processing -> completed | failed.
type TaskCoordinator struct {
	tasks        storage.TaskRepository
	requirements storage.RequirementRepository
	logger       *zap.Logger
	now          func() time.Time
}

// NewTaskCoordinator creates a coordinator over the given repositories
func NewTaskCoordinator(tasks storage.TaskRepository, requirements storage.RequirementRepository, logger *zap.Logger) *TaskCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskCoordinator{
		tasks:        tasks,
		requirements: requirements,
		logger:       logger,
		now:          time.Now,
	}
}

// Progress returns round(completed/total*100) clamped to [0,100]
func Progress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(completed) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Create stores a pending task that becomes the project's current task
func (c *TaskCoordinator) Create(ctx context.Context, projectID uuid.UUID, total int) (*models.AnalysisTask, error) {
	task := &models.AnalysisTask{
		ID:               uuid.New(),
		ProjectID:        projectID,
		Status:           models.TaskStatusPending,
		TotalComparisons: total,
		IsCurrent:        true,
		CreatedAt:        c.now(),
	}

	if err := c.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	c.logger.Info("analysis task created",
		zap.String("task_id", task.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.Int("total_comparisons", total),
	)
	return task, nil
}

// Start moves a pending task to processing
func (c *TaskCoordinator) Start(ctx context.Context, task *models.AnalysisTask) error {
	if task.Status != models.TaskStatusPending {
		return fmt.Errorf("start task in status %q", task.Status)
	}
	now := c.now()
	task.Status = models.TaskStatusProcessing
	task.StartedAt = &now
	return c.save(ctx, task)
}

// Focus records the pair about to be evaluated
func (c *TaskCoordinator) Focus(ctx context.Context, task *models.AnalysisTask, text1, text2 string) error {
	task.CurrentRequirement1 = text1
	task.CurrentRequirement2 = text2
	return c.save(ctx, task)
}

// Advance counts one visited pair and recomputes progress
func (c *TaskCoordinator) Advance(ctx context.Context, task *models.AnalysisTask, text1, text2 string) error {
	if task.CompletedComparisons < task.TotalComparisons {
		task.CompletedComparisons++
	}
	task.CurrentRequirement1 = text1
	task.CurrentRequirement2 = text2
	task.Progress = Progress(task.CompletedComparisons, task.TotalComparisons)
	return c.save(ctx, task)
}

// Complete finalizes the task. A non-empty summary marks partial success.
func (c *TaskCoordinator) Complete(ctx context.Context, task *models.AnalysisTask, summary string) error {
	now := c.now()
	task.Status = models.TaskStatusCompleted
	task.Error = summary
	task.CompletedAt = &now

	c.logger.Info("analysis task completed",
		zap.String("task_id", task.ID.String()),
		zap.Int("completed_comparisons", task.CompletedComparisons),
		zap.Int("total_comparisons", task.TotalComparisons),
		zap.String("error", summary),
	)
	return c.save(ctx, task)
}

// Fail finalizes the task as failed
func (c *TaskCoordinator) Fail(ctx context.Context, task *models.AnalysisTask, cause error) error {
	now := c.now()
	task.Status = models.TaskStatusFailed
	task.Error = cause.Error()
	task.CompletedAt = &now

	c.logger.Error("analysis task failed",
		zap.String("task_id", task.ID.String()),
		zap.Error(cause),
	)
	return c.save(ctx, task)
}

// Get returns the task with the given id
func (c *TaskCoordinator) Get(ctx context.Context, id uuid.UUID) (*models.AnalysisTask, error) {
	task, err := c.tasks.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Current returns the most recently created task of a project
func (c *TaskCoordinator) Current(ctx context.Context, projectID uuid.UUID) (*models.AnalysisTask, error) {
	task, err := c.tasks.GetCurrent(ctx, projectID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get current task: %w", err)
	}
	return task, nil
}

// IsStale reports whether a completed task's project has a requirement
// updated after the task completed. Unfinished tasks are never stale.
func (c *TaskCoordinator) IsStale(ctx context.Context, task *models.AnalysisTask) (bool, error) {
	if task.Status != models.TaskStatusCompleted || task.CompletedAt == nil {
		return false, nil
	}

	reqs, err := c.requirements.ListByProjectID(ctx, task.ProjectID)
	if err != nil {
		return false, fmt.Errorf("list requirements: %w", err)
	}

	for _, r := range reqs {
		if r.UpdatedAt.After(*task.CompletedAt) {
			return true, nil
		}
	}
	return false, nil
}

func (c *TaskCoordinator) save(ctx context.Context, task *models.AnalysisTask) error {
	if err := c.tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}
