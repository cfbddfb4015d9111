package nli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"
)

// Cache defines the interface for NLI score caches
type Cache interface {
	// Get retrieves scores from cache
	Get(ctx context.Context, key string) (Scores, bool, error)

	// Set stores scores in cache
	Set(ctx context.Context, key string, scores Scores) error
}

// Scorer produces a label distribution for an ordered statement pair
type Scorer interface {
	Score(ctx context.Context, premise, hypothesis string) (Scores, error)
}

// GenerateCacheKey creates a cache key from provider, premise and hypothesis.
// The pair is ordered: (a, b) and (b, a) are different evaluations.
func GenerateCacheKey(provider, premise, hypothesis string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(premise))
	h.Write([]byte{0})
	h.Write([]byte(hypothesis))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// CachedScorer wraps a Scorer with caching
type CachedScorer struct {
	scorer   Scorer
	cache    Cache
	provider string
	logger   *zap.Logger
}

// NewCachedScorer creates a new cached scorer. provider namespaces the keys.
func NewCachedScorer(scorer Scorer, cache Cache, provider string, logger *zap.Logger) *CachedScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedScorer{
		scorer:   scorer,
		cache:    cache,
		provider: provider,
		logger:   logger,
	}
}

// Score returns cached scores when present, otherwise delegates and stores the result.
// Cache failures are logged and never fail the evaluation.
func (c *CachedScorer) Score(ctx context.Context, premise, hypothesis string) (Scores, error) {
	key := GenerateCacheKey(c.provider, premise, hypothesis)

	cached, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("nli cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	scores, err := c.scorer.Score(ctx, premise, hypothesis)
	if err != nil {
		return Scores{}, err
	}

	if err := c.cache.Set(ctx, key, scores); err != nil {
		c.logger.Warn("nli cache write failed", zap.String("key", key), zap.Error(err))
	}

	return scores, nil
}

// NoOpCache is a cache that doesn't cache anything
type NoOpCache struct{}

func (NoOpCache) Get(ctx context.Context, key string) (Scores, bool, error) {
	return Scores{}, false, nil
}

func (NoOpCache) Set(ctx context.Context, key string, scores Scores) error {
	return nil
}
