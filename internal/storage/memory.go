package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/todmy/req-analyzer/pkg/models"
)

// MemoryStore implements every repository in process memory. It backs the
// service when no database is configured.
type MemoryStore struct {
	mu           sync.RWMutex
	requirements map[uuid.UUID]models.Requirement
	results      map[uuid.UUID][]models.ComparisonResult
	tasks        map[uuid.UUID]models.AnalysisTask
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requirements: make(map[uuid.UUID]models.Requirement),
		results:      make(map[uuid.UUID][]models.ComparisonResult),
		tasks:        make(map[uuid.UUID]models.AnalysisTask),
	}
}

// Requirements returns the store as a RequirementRepository
func (s *MemoryStore) Requirements() RequirementRepository { return memoryRequirements{s} }

// Results returns the store as a ComparisonResultRepository
func (s *MemoryStore) Results() ComparisonResultRepository { return memoryResults{s} }

// Tasks returns the store as a TaskRepository
func (s *MemoryStore) Tasks() TaskRepository { return memoryTasks{s} }

type memoryRequirements struct{ s *MemoryStore }

func (m memoryRequirements) Create(ctx context.Context, requirement *models.Requirement) error {
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

	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.requirements[requirement.ID] = *requirement
	return nil
}

func (m memoryRequirements) Update(ctx context.Context, requirement *models.Requirement) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	existing, ok := m.s.requirements[requirement.ID]
	if !ok {
		return ErrNotFound
	}
	requirement.UpdatedAt = time.Now()
	existing.Text = requirement.Text
	existing.UpdatedAt = requirement.UpdatedAt
	m.s.requirements[requirement.ID] = existing
	return nil
}

func (m memoryRequirements) ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.Requirement, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var out []*models.Requirement
	for _, r := range m.s.requirements {
		if r.ProjectID == projectID {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m memoryRequirements) GetUpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	r, ok := m.s.requirements[id]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return r.UpdatedAt, nil
}

type memoryResults struct{ s *MemoryStore }

func (m memoryResults) Create(ctx context.Context, result *models.ComparisonResult) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.results[result.ProjectID] = append(m.s.results[result.ProjectID], *result)
	return nil
}

func (m memoryResults) ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.ComparisonResult, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	rows := m.s.results[projectID]
	out := make([]*models.ComparisonResult, 0, len(rows))
	for _, r := range rows {
		r := r
		out = append(out, &r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Index1 != out[j].Index1 {
			return out[i].Index1 < out[j].Index1
		}
		return out[i].Index2 < out[j].Index2
	})
	return out, nil
}

func (m memoryResults) DeleteByProjectID(ctx context.Context, projectID uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.results, projectID)
	return nil
}

type memoryTasks struct{ s *MemoryStore }

func (m memoryTasks) Create(ctx context.Context, task *models.AnalysisTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if task.IsCurrent {
		for id, t := range m.s.tasks {
			if t.ProjectID == task.ProjectID && t.IsCurrent {
				t.IsCurrent = false
				m.s.tasks[id] = t
			}
		}
	}
	m.s.tasks[task.ID] = *task
	return nil
}

func (m memoryTasks) Update(ctx context.Context, task *models.AnalysisTask) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	existing, ok := m.s.tasks[task.ID]
	if !ok {
		return ErrNotFound
	}
	updated := *task
	// the current flag is owned by Create
	updated.IsCurrent = existing.IsCurrent
	m.s.tasks[task.ID] = updated
	return nil
}

func (m memoryTasks) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisTask, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	t, ok := m.s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m memoryTasks) GetCurrent(ctx context.Context, projectID uuid.UUID) (*models.AnalysisTask, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	for _, t := range m.s.tasks {
		if t.ProjectID == projectID && t.IsCurrent {
			t := t
			return &t, nil
		}
	}
	return nil, ErrNotFound
}
