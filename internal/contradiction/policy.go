package contradiction

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/todmy/req-analyzer/internal/nli"
)

// Similarity gate constants
const (
	// ForcedAdmissionSimilarity is returned for likely contradictions so the
	// gate never filters them out on a low entailment score.
	ForcedAdmissionSimilarity = 0.99
	// NeutralSimilarity is returned when the provider could not score a pair
	NeutralSimilarity = 0.5

	likelyContradiction = 0.5
	contradictionFloor  = 0.01
)

// Contradiction adjustment constants
const (
	highConfidenceContradiction = 0.8
	boostedContradiction        = 0.95
	dominantLabelConfidence     = 0.7
	entailmentCeiling           = 0.2
	neutralCeiling              = 0.1
)

var labelOrder = [...]string{nli.LabelEntailment, nli.LabelNeutral, nli.LabelContradiction}

func vector(s nli.Scores) []float64 {
	return []float64{s.Entailment, s.Neutral, s.Contradiction}
}

// DominantLabel returns the label whose score is the strict maximum.
// ok is false when the top score is shared.
func DominantLabel(s nli.Scores) (label string, ok bool) {
	v := vector(s)
	idx := floats.MaxIdx(v)
	for i, x := range v {
		if i != idx && x == v[idx] {
			return "", false
		}
	}
	return labelOrder[idx], true
}

// SimilarityScore collapses a label distribution into the gate's admission scalar
func SimilarityScore(s nli.Scores) float64 {
	if s.Contradiction > likelyContradiction {
		return ForcedAdmissionSimilarity
	}

	label, ok := DominantLabel(s)
	switch {
	case ok && label == nli.LabelEntailment:
		return s.Entailment
	case ok && label == nli.LabelContradiction:
		return math.Max(contradictionFloor, s.Contradiction)
	}
	return floats.Max(vector(s))
}

// AdjustContradiction applies the confidence boost/suppression policy to the
// raw contradiction score. The result is clamped to [0,1].
func AdjustContradiction(s nli.Scores) float64 {
	c := s.Contradiction
	label, ok := DominantLabel(s)

	switch {
	case c > highConfidenceContradiction:
		c = math.Max(c, boostedContradiction)
	case ok && label == nli.LabelEntailment && s.Entailment > dominantLabelConfidence:
		c = math.Min(c, entailmentCeiling)
	case ok && label == nli.LabelNeutral && s.Neutral > dominantLabelConfidence:
		c = math.Min(c, neutralCeiling)
	}

	return math.Max(0, math.Min(1, c))
}
