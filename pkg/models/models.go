package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Requirement is a persisted requirement statement belonging to a project
type Requirement struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RequirementText is one statement submitted for analysis. RequirementID is
// uuid.Nil when the text has no persisted counterpart.
type RequirementText struct {
	Text          string    `json:"text"`
	RequirementID uuid.UUID `json:"id,omitempty"`
}

// UnmarshalJSON accepts either a bare string or an object {"text": ..., "id": ...}
func (r *RequirementText) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		r.Text = text
		r.RequirementID = uuid.Nil
		return nil
	}

	var obj struct {
		Text string `json:"text"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("requirement must be a string or an object: %w", err)
	}

	r.Text = obj.Text
	r.RequirementID = uuid.Nil
	if obj.ID != "" {
		id, err := uuid.Parse(obj.ID)
		if err != nil {
			return fmt.Errorf("invalid requirement id %q: %w", obj.ID, err)
		}
		r.RequirementID = id
	}
	return nil
}

// TextsOf wraps plain strings as RequirementText values
func TextsOf(texts ...string) []RequirementText {
	out := make([]RequirementText, len(texts))
	for i, t := range texts {
		out[i] = RequirementText{Text: t}
	}
	return out
}

// ComparisonResult is the stored outcome of one examined requirement pair
type ComparisonResult struct {
	ID                 uuid.UUID `json:"id"`
	ProjectID          uuid.UUID `json:"project_id"`
	RequirementID1     uuid.UUID `json:"requirement_id_1,omitempty"`
	RequirementID2     uuid.UUID `json:"requirement_id_2,omitempty"`
	RequirementText1   string    `json:"requirement_text_1"`
	RequirementText2   string    `json:"requirement_text_2"`
	Index1             int       `json:"index1"`
	Index2             int       `json:"index2"`
	SimilarityScore    float64   `json:"similarity_score"`
	ContradictionScore float64   `json:"contradiction_score"`
	IsContradiction    bool      `json:"is_contradiction"`
	Provider           string    `json:"provider"`
	CreatedAt          time.Time `json:"created_at"`
}

// TaskStatus is the lifecycle state of an AnalysisTask
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// AnalysisTask tracks one asynchronous analysis run
type AnalysisTask struct {
	ID                   uuid.UUID  `json:"id"`
	ProjectID            uuid.UUID  `json:"project_id"`
	Status               TaskStatus `json:"status"`
	Progress             int        `json:"progress"`
	TotalComparisons     int        `json:"total_comparisons"`
	CompletedComparisons int        `json:"completed_comparisons"`
	CurrentRequirement1  string     `json:"current_requirement_1"`
	CurrentRequirement2  string     `json:"current_requirement_2"`
	Error                string     `json:"error,omitempty"`
	IsCurrent            bool       `json:"is_current"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}
