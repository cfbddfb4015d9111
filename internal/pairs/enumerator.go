package pairs

import (
	"unicode/utf8"

	"github.com/todmy/req-analyzer/pkg/models"
)

const (
	// DefaultMaxRequirements caps how many requirements one run considers
	DefaultMaxRequirements = 100
	// DefaultMinTextLength is the shortest text, in characters, worth comparing
	DefaultMinTextLength = 10
)

// Pair is an unordered pair of input positions with I < J
type Pair struct {
	I    int
	J    int
	Skip bool // either text is too short to compare
}

// Plan is the full set of pairs for one run
type Plan struct {
	Requirements []models.RequirementText
	Pairs        []Pair
	// Excluded counts inputs dropped by the MaxRequirements cap
	Excluded int
}

// Total returns the number of pairs, skipped ones included
func (p Plan) Total() int {
	return len(p.Pairs)
}

// Skipped returns how many pairs will not be sent to the classifier
func (p Plan) Skipped() int {
	n := 0
	for _, pr := range p.Pairs {
		if pr.Skip {
			n++
		}
	}
	return n
}

// Enumerator generates the deduplicated pair set for a run
type Enumerator struct {
	MaxRequirements int
	MinTextLength   int
}

// NewEnumerator creates an enumerator. Non-positive values use the defaults.
func NewEnumerator(maxRequirements, minTextLength int) Enumerator {
	if maxRequirements <= 0 {
		maxRequirements = DefaultMaxRequirements
	}
	if minTextLength <= 0 {
		minTextLength = DefaultMinTextLength
	}
	return Enumerator{MaxRequirements: maxRequirements, MinTextLength: minTextLength}
}

// Considered returns min(n, MaxRequirements)
func (e Enumerator) Considered(n int) int {
	limit := e.MaxRequirements
	if limit <= 0 {
		limit = DefaultMaxRequirements
	}
	if n > limit {
		return limit
	}
	return n
}

// TotalPairs returns n(n-1)/2 for the considered prefix of n inputs
func (e Enumerator) TotalPairs(n int) int {
	n = e.Considered(n)
	return n * (n - 1) / 2
}

// Plan truncates reqs to the cap and lists every (i, j) with i < j.
// Inputs beyond the cap are excluded silently; Plan.Excluded reports how many.
func (e Enumerator) Plan(reqs []models.RequirementText) Plan {
	n := e.Considered(len(reqs))
	kept := reqs[:n]

	minLen := e.MinTextLength
	if minLen <= 0 {
		minLen = DefaultMinTextLength
	}
	short := make([]bool, n)
	for i, r := range kept {
		short[i] = utf8.RuneCountInString(r.Text) < minLen
	}

	// Only iterate upper triangle to avoid duplicates and self-pairs
	pairs := make([]Pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, Pair{I: i, J: j, Skip: short[i] || short[j]})
		}
	}

	return Plan{
		Requirements: kept,
		Pairs:        pairs,
		Excluded:     len(reqs) - n,
	}
}
