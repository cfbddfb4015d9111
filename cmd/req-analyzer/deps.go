package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/todmy/req-analyzer/internal/analysis"
	"github.com/todmy/req-analyzer/internal/config"
	"github.com/todmy/req-analyzer/internal/metrics"
	"github.com/todmy/req-analyzer/internal/nli"
	"github.com/todmy/req-analyzer/internal/storage"
)

// closers releases resources in reverse order of acquisition
type closers []func() error

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// openStores connects to PostgreSQL, or falls back to process memory when no
// database is configured
func openStores(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (analysis.Stores, func() error, error) {
	if cfg.URL == "" {
		logger.Warn("no database configured, results are kept in memory only")
		mem := storage.NewMemoryStore()
		return analysis.Stores{
			Requirements: mem.Requirements(),
			Results:      mem.Results(),
			Tasks:        mem.Tasks(),
		}, func() error { return nil }, nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return analysis.Stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return analysis.Stores{}, nil, fmt.Errorf("ping database: %w", err)
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return analysis.Stores{}, nil, err
	}

	return analysis.Stores{
		Requirements: storage.NewPostgresRequirementRepository(db),
		Results:      storage.NewPostgresComparisonResultRepository(db),
		Tasks:        storage.NewPostgresTaskRepository(db),
	}, db.Close, nil
}

// newScorer builds the NLI client, wrapped with the Redis score cache when
// one is configured
func newScorer(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (nli.Scorer, func() error, error) {
	if cfg.NLI.Endpoint == "" {
		return nil, nil, fmt.Errorf("nli.endpoint is required")
	}
	if cfg.NLI.APIKey == "" {
		logger.Warn("nli.apiKey is empty, provider requests are unauthenticated")
	}

	client := nli.NewClient(cfg.NLI.Endpoint, cfg.NLI.APIKey,
		nli.WithProvider(cfg.NLI.Provider),
		nli.WithTimeout(cfg.NLI.Timeout),
		nli.WithMaxAttempts(cfg.NLI.MaxAttempts),
		nli.WithRateLimit(cfg.NLI.RequestsPerSecond),
		nli.WithObserver(m),
		nli.WithLogger(logger),
	)

	if cfg.Cache.RedisAddr == "" {
		return client, func() error { return nil }, nil
	}

	cache, err := nli.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("nli score cache enabled", zap.String("addr", cfg.Cache.RedisAddr))
	return nli.NewCachedScorer(client, cache, client.Provider(), logger), cache.Close, nil
}

func analysisConfig(cfg config.AnalysisConfig) analysis.Config {
	return analysis.Config{
		SimilarityThreshold: cfg.SimilarityThreshold,
		NLIThreshold:        cfg.NLIThreshold,
		MaxRequirements:     cfg.MaxRequirements,
		MinTextLength:       cfg.MinTextLength,
		MaxProviderErrors:   cfg.MaxProviderErrors,
	}
}
