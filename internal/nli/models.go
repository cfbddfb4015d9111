package nli

import (
	"errors"
	"fmt"
)

// Label names returned by NLI providers
const (
	LabelEntailment    = "entailment"
	LabelNeutral       = "neutral"
	LabelContradiction = "contradiction"
)

// DefaultProvider tags results scored by the hosted NLI endpoint
const DefaultProvider = "huggingface-nli"

var (
	// ErrTransient marks a failure worth retrying: transport errors and non-2xx responses
	ErrTransient = errors.New("transient provider error")
	// ErrMalformedResponse marks a 2xx response whose payload could not be interpreted
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Scores is the three-way label distribution for one (premise, hypothesis)
// evaluation. Values are nominally in [0,1] but need not sum to 1.
type Scores struct {
	Entailment    float64 `json:"entailment"`
	Neutral       float64 `json:"neutral"`
	Contradiction float64 `json:"contradiction"`
}

// ProviderError is returned once the retry budget is exhausted
type ProviderError struct {
	Attempts   int
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("nli provider failed after %d attempts (last status %d): %v", e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("nli provider failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ScoreRequest is the body POSTed to the scoring endpoint
type ScoreRequest struct {
	Inputs ScoreInputs `json:"inputs"`
}

// ScoreInputs holds the ordered statement pair
type ScoreInputs struct {
	Premise    string `json:"premise"`
	Hypothesis string `json:"hypothesis"`
}

// LabelScore is one entry of the provider's label distribution
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// legacyScores is the flat object shape older providers return
type legacyScores struct {
	Entailment    *float64 `json:"entailment"`
	Neutral       *float64 `json:"neutral"`
	Contradiction *float64 `json:"contradiction"`
}
