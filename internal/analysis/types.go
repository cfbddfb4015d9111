package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/todmy/req-analyzer/internal/pairs"
	"github.com/todmy/req-analyzer/pkg/models"
)

const (
	// DefaultSimilarityThreshold admits nearly every scored pair
	DefaultSimilarityThreshold = 0.0001
	// DefaultNLIThreshold is the final score at which a pair is a contradiction
	DefaultNLIThreshold = 0.8
	// DefaultMaxProviderErrors is the error count a run tolerates before aborting
	DefaultMaxProviderErrors = 5
)

// Config holds the service-wide analysis settings
type Config struct {
	SimilarityThreshold float64
	NLIThreshold        float64
	MaxRequirements     int
	MinTextLength       int
	// MaxProviderErrors aborts the sweep once the count exceeds it
	MaxProviderErrors int
}

// DefaultConfig returns the default analysis configuration
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		NLIThreshold:        DefaultNLIThreshold,
		MaxRequirements:     pairs.DefaultMaxRequirements,
		MinTextLength:       pairs.DefaultMinTextLength,
		MaxProviderErrors:   DefaultMaxProviderErrors,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.NLIThreshold <= 0 {
		c.NLIThreshold = d.NLIThreshold
	}
	if c.MaxRequirements <= 0 {
		c.MaxRequirements = d.MaxRequirements
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = d.MinTextLength
	}
	if c.MaxProviderErrors <= 0 {
		c.MaxProviderErrors = d.MaxProviderErrors
	}
	return c
}

// Options are the per-request overrides. Nil fields fall back to Config.
type Options struct {
	Async               bool      `json:"async"`
	ProjectID           uuid.UUID `json:"project_id"`
	SimilarityThreshold *float64  `json:"similarity_threshold,omitempty"`
	NLIThreshold        *float64  `json:"nli_threshold,omitempty"`
	MaxRequirements     *int      `json:"max_requirements,omitempty"`
}

// settings are the effective thresholds of one run
type settings struct {
	similarityThreshold float64
	nliThreshold        float64
	maxRequirements     int
}

func (c Config) resolve(opts Options) (settings, error) {
	s := settings{
		similarityThreshold: c.SimilarityThreshold,
		nliThreshold:        c.NLIThreshold,
		maxRequirements:     c.MaxRequirements,
	}
	if opts.SimilarityThreshold != nil {
		s.similarityThreshold = *opts.SimilarityThreshold
	}
	if opts.NLIThreshold != nil {
		s.nliThreshold = *opts.NLIThreshold
	}
	if opts.MaxRequirements != nil {
		s.maxRequirements = *opts.MaxRequirements
	}

	if s.similarityThreshold < 0 || s.similarityThreshold > 1 {
		return settings{}, fmt.Errorf("%w: similarity_threshold must be within [0,1]", ErrInvalidRequest)
	}
	if s.nliThreshold < 0 || s.nliThreshold > 1 {
		return settings{}, fmt.Errorf("%w: nli_threshold must be within [0,1]", ErrInvalidRequest)
	}
	if s.maxRequirements < 2 {
		return settings{}, fmt.Errorf("%w: max_requirements must be at least 2", ErrInvalidRequest)
	}
	return s, nil
}

// Contradiction is one pair whose final score reached the NLI threshold
type Contradiction struct {
	Index1             int       `json:"index1"`
	Index2             int       `json:"index2"`
	RequirementID1     uuid.UUID `json:"requirement_id_1,omitempty"`
	RequirementID2     uuid.UUID `json:"requirement_id_2,omitempty"`
	Requirement1       string    `json:"requirement1"`
	Requirement2       string    `json:"requirement2"`
	SimilarityScore    float64   `json:"similarity_score"`
	ContradictionScore float64   `json:"contradiction_score"`
	Provider           string    `json:"provider"`
	// IsStale is set on stored results whose requirements changed since the row was written
	IsStale bool `json:"is_stale,omitempty"`
}

func contradictionFromResult(r *models.ComparisonResult) Contradiction {
	return Contradiction{
		Index1:             r.Index1,
		Index2:             r.Index2,
		RequirementID1:     r.RequirementID1,
		RequirementID2:     r.RequirementID2,
		Requirement1:       r.RequirementText1,
		Requirement2:       r.RequirementText2,
		SimilarityScore:    r.SimilarityScore,
		ContradictionScore: r.ContradictionScore,
		Provider:           r.Provider,
	}
}

// Response is returned by every analysis entry point
type Response struct {
	Contradictions        []Contradiction   `json:"contradictions"`
	ComparisonsMade       int               `json:"comparisons_made"`
	NLIChecksMade         int               `json:"nli_checks_made"`
	ProcessingTimeSeconds float64           `json:"processing_time_seconds"`
	Errors                string            `json:"errors,omitempty"`
	IsComplete            bool              `json:"is_complete"`
	TaskID                *uuid.UUID        `json:"task_id,omitempty"`
	ProjectID             *uuid.UUID        `json:"project_id,omitempty"`
	Status                models.TaskStatus `json:"status,omitempty"`
	Progress              int               `json:"progress,omitempty"`
	IsStale               bool              `json:"is_stale,omitempty"`
	Warnings              []string          `json:"warnings,omitempty"`
	ExcludedRequirements  int               `json:"excluded_requirements,omitempty"`
}

// StatusResponse describes one analysis task for polling clients
type StatusResponse struct {
	TaskID               uuid.UUID         `json:"task_id"`
	ProjectID            uuid.UUID         `json:"project_id"`
	Status               models.TaskStatus `json:"status"`
	Progress             int               `json:"progress"`
	TotalComparisons     int               `json:"total_comparisons"`
	CompletedComparisons int               `json:"completed_comparisons"`
	CurrentRequirement1  string            `json:"current_requirement_1"`
	CurrentRequirement2  string            `json:"current_requirement_2"`
	Error                string            `json:"error,omitempty"`
	IsStale              bool              `json:"is_stale"`
	IsCurrent            bool              `json:"is_current"`
	StartedAt            *time.Time        `json:"started_at,omitempty"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
}

func statusFromTask(t *models.AnalysisTask, stale bool) *StatusResponse {
	return &StatusResponse{
		TaskID:               t.ID,
		ProjectID:            t.ProjectID,
		Status:               t.Status,
		Progress:             t.Progress,
		TotalComparisons:     t.TotalComparisons,
		CompletedComparisons: t.CompletedComparisons,
		CurrentRequirement1:  t.CurrentRequirement1,
		CurrentRequirement2:  t.CurrentRequirement2,
		Error:                t.Error,
		IsStale:              stale,
		IsCurrent:            t.IsCurrent,
		StartedAt:            t.StartedAt,
		CompletedAt:          t.CompletedAt,
	}
}
