package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/todmy/req-analyzer/internal/analysis"
	"github.com/todmy/req-analyzer/internal/auth"
	"github.com/todmy/req-analyzer/internal/metrics"
	"github.com/todmy/req-analyzer/pkg/models"
)

// Analyzer is the analysis engine surface served over HTTP
type Analyzer interface {
	Analyze(ctx context.Context, reqs []models.RequirementText, opts analysis.Options) (*analysis.Response, error)
	Status(ctx context.Context, taskID uuid.UUID) (*analysis.StatusResponse, error)
	CurrentStatus(ctx context.Context, projectID uuid.UUID) (*analysis.StatusResponse, error)
	StoredResults(ctx context.Context, projectID uuid.UUID) (*analysis.Response, error)
}

// ServerConfig holds the server dependencies
type ServerConfig struct {
	Analyzer Analyzer
	// Auth guards /api/v1 when set
	Auth           auth.Service
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	AllowedOrigins []string
	// MaxBodyBytes limits request bodies; zero uses 10 MiB
	MaxBodyBytes int64
}

type Server struct {
	router       *chi.Mux
	analyzer     Analyzer
	auth         auth.Service
	metrics      *metrics.Metrics
	logger       *zap.Logger
	maxBodyBytes int64
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:*", "https://*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		router:       r,
		analyzer:     cfg.Analyzer,
		auth:         cfg.Auth,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.auth != nil {
			r.Use(auth.Middleware(s.auth, s.logger))
		}

		r.Post("/analyze", s.handleAnalyze)
		r.Get("/tasks/{taskID}", s.handleGetTask)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/contradictions", s.handleGetContradictions)
			r.Get("/tasks/current", s.handleGetCurrentTask)
		})
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs one line per request
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// Helper to send JSON responses
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
