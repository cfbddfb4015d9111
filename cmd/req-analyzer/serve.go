package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/todmy/req-analyzer/internal/analysis"
	"github.com/todmy/req-analyzer/internal/api"
	"github.com/todmy/req-analyzer/internal/auth"
	"github.com/todmy/req-analyzer/internal/config"
	"github.com/todmy/req-analyzer/internal/logging"
	"github.com/todmy/req-analyzer/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var cleanup closers
	defer func() { cleanup.Close() }()

	m := metrics.New()

	stores, closeDB, err := openStores(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	cleanup = append(cleanup, closeDB)

	scorer, closeCache, err := newScorer(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	cleanup = append(cleanup, closeCache)

	orchestrator := analysis.NewOrchestrator(analysisConfig(cfg.Analysis), scorer, stores,
		analysis.WithProvider(cfg.NLI.Provider),
		analysis.WithMetrics(m),
		analysis.WithLogger(logger),
	)

	var authService auth.Service
	if cfg.Auth.JWTSecret != "" {
		authService = auth.NewJWTService(auth.Config{SecretKey: cfg.Auth.JWTSecret})
	} else {
		logger.Warn("auth.jwtSecret is empty, the API is unauthenticated")
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewServer(api.ServerConfig{
			Analyzer: orchestrator,
			Auth:     authService,
			Metrics:  m,
			Logger:   logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting req-analyzer server", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", zap.Error(err))
		}
		if err := orchestrator.Shutdown(shutdownCtx); err != nil {
			logger.Error("analysis runs did not finish in time", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}
