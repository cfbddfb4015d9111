package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/todmy/req-analyzer/internal/analysis"
	"github.com/todmy/req-analyzer/pkg/models"
)

// AnalyzeRequest is the body of POST /api/v1/analyze
type AnalyzeRequest struct {
	Requirements        []models.RequirementText `json:"requirements"`
	Async               bool                     `json:"async"`
	ProjectID           string                   `json:"project_id"`
	SimilarityThreshold *float64                 `json:"similarity_threshold"`
	NLIThreshold        *float64                 `json:"nli_threshold"`
	MaxRequirements     *int                     `json:"max_requirements"`
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := analysis.Options{
		Async:               req.Async,
		SimilarityThreshold: req.SimilarityThreshold,
		NLIThreshold:        req.NLIThreshold,
		MaxRequirements:     req.MaxRequirements,
	}
	if req.ProjectID != "" {
		pid, err := uuid.Parse(req.ProjectID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid project id")
			return
		}
		opts.ProjectID = pid
	}

	resp, err := s.analyzer.Analyze(r.Context(), req.Requirements, opts)
	if err != nil {
		s.respondAnalysisError(w, r, err)
		return
	}

	status := http.StatusOK
	if req.Async {
		status = http.StatusAccepted
	}
	respondJSON(w, status, resp)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	status, err := s.analyzer.Status(r.Context(), taskID)
	if err != nil {
		s.respondAnalysisError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetCurrentTask(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}

	status, err := s.analyzer.CurrentStatus(r.Context(), projectID)
	if err != nil {
		s.respondAnalysisError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetContradictions(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}

	resp, err := s.analyzer.StoredResults(r.Context(), projectID)
	if err != nil {
		s.respondAnalysisError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func projectIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid project id")
		return uuid.Nil, false
	}
	return projectID, true
}

// respondAnalysisError maps engine errors onto HTTP statuses
func (s *Server) respondAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, analysis.ErrTaskNotFound):
		respondError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, analysis.ErrShuttingDown):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("analysis request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
