package nli

import (
	"context"
	"errors"
	"testing"
)

type mapCache struct {
	data   map[string]Scores
	getErr error
}

func (m *mapCache) Get(ctx context.Context, key string) (Scores, bool, error) {
	if m.getErr != nil {
		return Scores{}, false, m.getErr
	}
	s, ok := m.data[key]
	return s, ok, nil
}

func (m *mapCache) Set(ctx context.Context, key string, scores Scores) error {
	m.data[key] = scores
	return nil
}

type stubScorer struct {
	calls  int
	scores Scores
	err    error
}

func (s *stubScorer) Score(ctx context.Context, premise, hypothesis string) (Scores, error) {
	s.calls++
	return s.scores, s.err
}

func TestCachedScorer_HitsCacheOnSecondCall(t *testing.T) {
	inner := &stubScorer{scores: Scores{Contradiction: 0.9}}
	cache := &mapCache{data: map[string]Scores{}}
	cs := NewCachedScorer(inner, cache, "test", nil)

	for i := 0; i < 2; i++ {
		got, err := cs.Score(context.Background(), "a", "b")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Contradiction != 0.9 {
			t.Errorf("expected contradiction 0.9, got %v", got.Contradiction)
		}
	}

	if inner.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", inner.calls)
	}
}

func TestCachedScorer_PairOrderMatters(t *testing.T) {
	if GenerateCacheKey("p", "a", "b") == GenerateCacheKey("p", "b", "a") {
		t.Error("expected ordered pairs to produce different keys")
	}
	if GenerateCacheKey("p1", "a", "b") == GenerateCacheKey("p2", "a", "b") {
		t.Error("expected providers to namespace keys")
	}
}

func TestCachedScorer_CacheErrorFallsThrough(t *testing.T) {
	inner := &stubScorer{scores: Scores{Entailment: 0.8}}
	cache := &mapCache{data: map[string]Scores{}, getErr: errors.New("redis down")}
	cs := NewCachedScorer(inner, cache, "test", nil)

	got, err := cs.Score(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Entailment != 0.8 {
		t.Errorf("expected entailment 0.8, got %v", got.Entailment)
	}
}

func TestCachedScorer_ErrorsAreNotCached(t *testing.T) {
	inner := &stubScorer{err: errors.New("boom")}
	cache := &mapCache{data: map[string]Scores{}}
	cs := NewCachedScorer(inner, cache, "test", nil)

	if _, err := cs.Score(context.Background(), "a", "b"); err == nil {
		t.Fatal("expected error")
	}
	if len(cache.data) != 0 {
		t.Errorf("expected empty cache, got %d entries", len(cache.data))
	}
}
