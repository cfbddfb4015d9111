package contradiction

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/todmy/req-analyzer/internal/nli"
)

// Verdict is the classifier's output for an admitted pair
type Verdict struct {
	Score    float64    `json:"score"`
	Raw      nli.Scores `json:"raw"`
	Provider string     `json:"provider"`
	// Fresh is true when the classifier issued its own provider evaluation
	Fresh bool `json:"-"`
}

// Classifier turns an NLI label distribution into a contradiction confidence
type Classifier struct {
	scorer   nli.Scorer
	provider string
	logger   *zap.Logger
}

// NewClassifier creates a classifier. provider tags every verdict.
func NewClassifier(scorer nli.Scorer, provider string, logger *zap.Logger) *Classifier {
	if provider == "" {
		provider = nli.DefaultProvider
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{scorer: scorer, provider: provider, logger: logger}
}

// Provider returns the tag attached to verdicts
func (c *Classifier) Provider() string {
	return c.provider
}

// Classify produces the adjusted contradiction score for a pair. When prior
// is non-nil those scores are reused instead of calling the provider again.
func (c *Classifier) Classify(ctx context.Context, premise, hypothesis string, prior *nli.Scores) (Verdict, error) {
	var (
		raw   nli.Scores
		fresh bool
	)
	if prior != nil {
		raw = *prior
	} else {
		scores, err := c.scorer.Score(ctx, premise, hypothesis)
		if err != nil {
			return Verdict{}, fmt.Errorf("score pair: %w", err)
		}
		raw, fresh = scores, true
	}

	v := Verdict{
		Score:    AdjustContradiction(raw),
		Raw:      raw,
		Provider: c.provider,
		Fresh:    fresh,
	}

	if v.Score != raw.Contradiction {
		c.logger.Debug("contradiction score adjusted",
			zap.Float64("raw", raw.Contradiction),
			zap.Float64("adjusted", v.Score),
		)
	}

	return v, nil
}
