package nli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseScores decodes any of the supported response shapes:
// [{label,score}...], [[{label,score}...]] or {entailment,neutral,contradiction}.
func ParseScores(body []byte) (Scores, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Scores{}, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	switch trimmed[0] {
	case '[':
		var flat []LabelScore
		if err := json.Unmarshal(trimmed, &flat); err == nil {
			return fromLabels(flat)
		}

		var nested [][]LabelScore
		if err := json.Unmarshal(trimmed, &nested); err != nil {
			return Scores{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if len(nested) == 0 {
			return Scores{}, fmt.Errorf("%w: empty label list", ErrMalformedResponse)
		}
		return fromLabels(nested[0])

	case '{':
		var legacy legacyScores
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return Scores{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if legacy.Entailment == nil && legacy.Neutral == nil && legacy.Contradiction == nil {
			return Scores{}, fmt.Errorf("%w: no label scores in object", ErrMalformedResponse)
		}

		var s Scores
		if legacy.Entailment != nil {
			s.Entailment = *legacy.Entailment
		}
		if legacy.Neutral != nil {
			s.Neutral = *legacy.Neutral
		}
		if legacy.Contradiction != nil {
			s.Contradiction = *legacy.Contradiction
		}
		return s, nil
	}

	return Scores{}, fmt.Errorf("%w: unexpected payload", ErrMalformedResponse)
}

func fromLabels(labels []LabelScore) (Scores, error) {
	var s Scores
	found := 0
	for _, l := range labels {
		switch strings.ToLower(strings.TrimSpace(l.Label)) {
		case LabelEntailment:
			s.Entailment = l.Score
			found++
		case LabelNeutral:
			s.Neutral = l.Score
			found++
		case LabelContradiction:
			s.Contradiction = l.Score
			found++
		}
	}
	if found == 0 {
		return Scores{}, fmt.Errorf("%w: no known labels", ErrMalformedResponse)
	}
	return s, nil
}
