package contradiction

import (
	"context"

	"go.uber.org/zap"

	"github.com/todmy/req-analyzer/internal/nli"
)

// Admission is the gate's decision input for one pair
type Admission struct {
	Similarity float64
	// Scores is valid only when Scored is true
	Scores nli.Scores
	Scored bool
	Err    error
}

// Admitted reports whether the pair should proceed to classification
func (a Admission) Admitted(threshold float64) bool {
	return a.Similarity >= threshold
}

// Gate is the cheap pre-filter in front of the classifier
type Gate struct {
	scorer nli.Scorer
	logger *zap.Logger
}

// NewGate creates a similarity gate backed by scorer
func NewGate(scorer nli.Scorer, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{scorer: scorer, logger: logger}
}

// Evaluate scores the pair once. Provider failures yield NeutralSimilarity
// instead of an error so the pair is not dropped outright.
func (g *Gate) Evaluate(ctx context.Context, premise, hypothesis string) Admission {
	scores, err := g.scorer.Score(ctx, premise, hypothesis)
	if err != nil {
		g.logger.Debug("similarity scoring failed, using neutral default", zap.Error(err))
		return Admission{Similarity: NeutralSimilarity, Err: err}
	}

	return Admission{
		Similarity: SimilarityScore(scores),
		Scores:     scores,
		Scored:     true,
	}
}
