package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/todmy/req-analyzer/internal/contradiction"
	"github.com/todmy/req-analyzer/internal/metrics"
	"github.com/todmy/req-analyzer/internal/nli"
	"github.com/todmy/req-analyzer/internal/pairs"
	"github.com/todmy/req-analyzer/internal/storage"
	"github.com/todmy/req-analyzer/pkg/models"
)

const (
	modeSync  = "sync"
	modeAsync = "async"

	finalizeTimeout = 10 * time.Second
)

// Stores groups the repositories the orchestrator reads and writes
type Stores struct {
	Requirements storage.RequirementRepository
	Results      storage.ComparisonResultRepository
	Tasks        storage.TaskRepository
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithProvider sets the provider tag recorded on results
func WithProvider(provider string) Option {
	return func(o *Orchestrator) {
		o.provider = provider
	}
}

// Orchestrator runs pair sweeps synchronously or in the background
type Orchestrator struct {
	cfg          Config
	provider     string
	gate         *contradiction.Gate
	classifier   *contradiction.Classifier
	requirements storage.RequirementRepository
	results      storage.ComparisonResultRepository
	tasks        *TaskCoordinator
	runs         *registry
	metrics      *metrics.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// NewOrchestrator wires the engine around scorer and stores
func NewOrchestrator(cfg Config, scorer nli.Scorer, stores Stores, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:          cfg.withDefaults(),
		provider:     nli.DefaultProvider,
		requirements: stores.Requirements,
		results:      stores.Results,
		runs:         newRegistry(),
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.gate = contradiction.NewGate(scorer, o.logger)
	o.classifier = contradiction.NewClassifier(scorer, o.provider, o.logger)
	o.tasks = NewTaskCoordinator(stores.Tasks, stores.Requirements, o.logger)
	return o
}

// Tasks exposes the task coordinator
func (o *Orchestrator) Tasks() *TaskCoordinator {
	return o.tasks
}

// Analyze dispatches to the synchronous or asynchronous mode per opts.Async
func (o *Orchestrator) Analyze(ctx context.Context, reqs []models.RequirementText, opts Options) (*Response, error) {
	if opts.Async {
		resp, _, err := o.AnalyzeAsync(ctx, reqs, opts)
		return resp, err
	}
	return o.AnalyzeSync(ctx, reqs, opts)
}

// AnalyzeSync runs the full sweep inline. Per-pair failures never fail the
// call: partial contradictions are returned with an errors summary.
func (o *Orchestrator) AnalyzeSync(ctx context.Context, reqs []models.RequirementText, opts Options) (*Response, error) {
	s, err := o.validate(reqs, opts)
	if err != nil {
		return nil, err
	}

	start := o.now()
	run, runCtx, err := o.runs.begin(ctx, opts.ProjectID, ErrReplaced)
	if err != nil {
		return nil, err
	}

	plan := o.plan(ctx, reqs, opts.ProjectID, s)
	o.logger.Info("analysis started",
		zap.String("mode", modeSync),
		zap.Int("requirements", len(plan.Requirements)),
		zap.Int("pairs", plan.Total()),
	)

	res, sweepErr := o.sweep(runCtx, run, plan, s, nil)
	o.runs.finish(run, interruption(runCtx, sweepErr))

	if sweepErr != nil && ctx.Err() != nil {
		o.metrics.RunFinished(modeSync, "cancelled", false)
		return nil, ctx.Err()
	}

	resp := res.response(plan)
	resp.ProcessingTimeSeconds = o.now().Sub(start).Seconds()
	resp.IsComplete = true
	if opts.ProjectID != uuid.Nil {
		projectID := opts.ProjectID
		resp.ProjectID = &projectID
	}

	summary := res.summary()
	if sweepErr != nil {
		sweepErr = interruption(runCtx, sweepErr)
		summary = joinErrors(summary, fmt.Sprintf("analysis interrupted: %v", sweepErr))
		o.logger.Error("synchronous analysis interrupted", zap.Error(sweepErr))
	}
	resp.Errors = summary

	status := "completed"
	if resp.Errors != "" {
		status = "partial"
	}
	o.metrics.RunFinished(modeSync, status, false)
	o.logger.Info("analysis finished",
		zap.String("mode", modeSync),
		zap.Int("comparisons", resp.ComparisonsMade),
		zap.Int("contradictions", len(resp.Contradictions)),
		zap.Float64("seconds", resp.ProcessingTimeSeconds),
	)

	return resp, nil
}

// AnalyzeAsync creates a pending task and returns immediately. The sweep runs
// in the background under the returned Run.
func (o *Orchestrator) AnalyzeAsync(ctx context.Context, reqs []models.RequirementText, opts Options) (*Response, *Run, error) {
	if opts.ProjectID == uuid.Nil {
		return nil, nil, fmt.Errorf("%w: project_id is required for asynchronous analysis", ErrInvalidRequest)
	}
	s, err := o.validate(reqs, opts)
	if err != nil {
		return nil, nil, err
	}
	if !o.runs.accepting() {
		return nil, nil, ErrShuttingDown
	}

	enum := pairs.NewEnumerator(s.maxRequirements, o.cfg.MinTextLength)
	task, err := o.tasks.Create(ctx, opts.ProjectID, enum.TotalPairs(len(reqs)))
	if err != nil {
		return nil, nil, err
	}

	// the run outlives the request that created it
	run, runCtx, err := o.runs.begin(context.WithoutCancel(ctx), opts.ProjectID, ErrSuperseded)
	if err != nil {
		if ferr := o.tasks.Fail(context.WithoutCancel(ctx), task, err); ferr != nil {
			o.logger.Error("failed to mark task failed",
				zap.String("task_id", task.ID.String()),
				zap.Error(ferr),
			)
		}
		return nil, nil, err
	}
	run.TaskID = task.ID

	taskID, projectID := task.ID, task.ProjectID
	resp := &Response{
		Contradictions: []Contradiction{},
		TaskID:         &taskID,
		ProjectID:      &projectID,
		Status:         task.Status,
		IsComplete:     false,
	}
	if excluded := len(reqs) - enum.Considered(len(reqs)); excluded > 0 {
		resp.ExcludedRequirements = excluded
		resp.Warnings = []string{truncationWarning(excluded, s.maxRequirements)}
	}

	texts := append([]models.RequirementText(nil), reqs...)
	o.metrics.RunStarted()
	go o.runAsync(runCtx, run, task, texts, s)

	return resp, run, nil
}

// Shutdown cancels in-flight runs and waits for them to finalize
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.runs.shutdown(ctx)
}

// Status returns the polling view of a task
func (o *Orchestrator) Status(ctx context.Context, taskID uuid.UUID) (*StatusResponse, error) {
	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return o.status(ctx, task)
}

// CurrentStatus returns the polling view of a project's current task
func (o *Orchestrator) CurrentStatus(ctx context.Context, projectID uuid.UUID) (*StatusResponse, error) {
	task, err := o.tasks.Current(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return o.status(ctx, task)
}

func (o *Orchestrator) status(ctx context.Context, task *models.AnalysisTask) (*StatusResponse, error) {
	stale, err := o.tasks.IsStale(ctx, task)
	if err != nil {
		return nil, err
	}
	return statusFromTask(task, stale), nil
}

// StoredResults rebuilds a response from the persisted rows of a project
// and the completion state of its current task
func (o *Orchestrator) StoredResults(ctx context.Context, projectID uuid.UUID) (*Response, error) {
	rows, err := o.results.ListByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	task, err := o.tasks.Current(ctx, projectID)
	if err != nil && !errors.Is(err, ErrTaskNotFound) {
		return nil, err
	}

	updatedAt := make(map[uuid.UUID]time.Time)
	changedSince := func(id uuid.UUID, written time.Time) (bool, error) {
		if id == uuid.Nil {
			return false, nil
		}
		t, ok := updatedAt[id]
		if !ok {
			var gerr error
			t, gerr = o.requirements.GetUpdatedAt(ctx, id)
			if errors.Is(gerr, storage.ErrNotFound) {
				// the requirement was deleted after the row was written
				return true, nil
			}
			if gerr != nil {
				return false, fmt.Errorf("get updated_at: %w", gerr)
			}
			updatedAt[id] = t
		}
		return t.After(written), nil
	}

	resp := &Response{
		Contradictions:  []Contradiction{},
		ComparisonsMade: len(rows),
		ProjectID:       &projectID,
		IsComplete:      true,
	}

	for _, row := range rows {
		if !row.IsContradiction {
			continue
		}
		c := contradictionFromResult(row)
		stale1, err := changedSince(row.RequirementID1, row.CreatedAt)
		if err != nil {
			return nil, err
		}
		stale2, err := changedSince(row.RequirementID2, row.CreatedAt)
		if err != nil {
			return nil, err
		}
		c.IsStale = stale1 || stale2
		resp.Contradictions = append(resp.Contradictions, c)
	}

	if task == nil {
		for _, c := range resp.Contradictions {
			resp.IsStale = resp.IsStale || c.IsStale
		}
		return resp, nil
	}

	taskID := task.ID
	resp.TaskID = &taskID
	resp.Status = task.Status
	resp.Progress = task.Progress
	resp.Errors = task.Error
	resp.IsComplete = task.Status.IsTerminal()
	if task.StartedAt != nil && task.CompletedAt != nil {
		resp.ProcessingTimeSeconds = task.CompletedAt.Sub(*task.StartedAt).Seconds()
	}
	resp.IsStale, err = o.tasks.IsStale(ctx, task)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) validate(reqs []models.RequirementText, opts Options) (settings, error) {
	if len(reqs) < 2 {
		return settings{}, fmt.Errorf("%w: at least 2 requirements are required, got %d", ErrInvalidRequest, len(reqs))
	}
	return o.cfg.resolve(opts)
}

// plan truncates the input and fills missing requirement ids from the project
func (o *Orchestrator) plan(ctx context.Context, reqs []models.RequirementText, projectID uuid.UUID, s settings) pairs.Plan {
	plan := pairs.NewEnumerator(s.maxRequirements, o.cfg.MinTextLength).Plan(reqs)
	if projectID == uuid.Nil {
		return plan
	}

	stored, err := o.requirements.ListByProjectID(ctx, projectID)
	if err != nil {
		o.logger.Warn("requirement id mapping skipped", zap.String("project_id", projectID.String()), zap.Error(err))
		return plan
	}

	byText := make(map[string]uuid.UUID, len(stored))
	for _, r := range stored {
		if _, dup := byText[r.Text]; !dup {
			byText[r.Text] = r.ID
		}
	}

	mapped := make([]models.RequirementText, len(plan.Requirements))
	for i, r := range plan.Requirements {
		if r.RequirementID == uuid.Nil {
			r.RequirementID = byText[r.Text]
		}
		mapped[i] = r
	}
	plan.Requirements = mapped
	return plan
}

func (o *Orchestrator) runAsync(ctx context.Context, run *Run, task *models.AnalysisTask, reqs []models.RequirementText, s settings) {
	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("analysis panicked: %v", r)
			o.finalize(ctx, task, runErr)
		}
		o.runs.finish(run, runErr)
		o.metrics.RunFinished(modeAsync, string(task.Status), true)
	}()

	logger := o.logger.With(
		zap.String("task_id", task.ID.String()),
		zap.String("project_id", task.ProjectID.String()),
	)

	if err := o.tasks.Start(ctx, task); err != nil {
		runErr = err
		o.finalize(ctx, task, err)
		return
	}

	plan := o.plan(ctx, reqs, task.ProjectID, s)
	logger.Info("analysis started",
		zap.String("mode", modeAsync),
		zap.Int("requirements", len(plan.Requirements)),
		zap.Int("pairs", plan.Total()),
	)

	res, err := o.sweep(ctx, run, plan, s, task)
	if err != nil {
		runErr = interruption(ctx, err)
		o.finalize(ctx, task, runErr)
		return
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := o.tasks.Complete(fctx, task, res.summary()); err != nil {
		runErr = err
		logger.Error("failed to complete task", zap.Error(err))
	}
}

// finalize marks the task failed with the cause of a sweep interruption. A
// task whose results a synchronous run rewrote is completed instead.
func (o *Orchestrator) finalize(ctx context.Context, task *models.AnalysisTask, err error) {
	err = interruption(ctx, err)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if replaced(ctx, err) {
		if cerr := o.tasks.Complete(fctx, task, ErrReplaced.Error()); cerr != nil {
			o.logger.Error("failed to complete replaced task",
				zap.String("task_id", task.ID.String()),
				zap.Error(cerr),
			)
		}
		return
	}

	if ferr := o.tasks.Fail(fctx, task, err); ferr != nil {
		o.logger.Error("failed to mark task failed",
			zap.String("task_id", task.ID.String()),
			zap.Error(ferr),
		)
	}
}

// sweepResult accumulates the outcome of one pair sweep
type sweepResult struct {
	contradictions []Contradiction
	comparisons    int
	checks         int
	providerErrors int
	aborted        bool
}

func (r sweepResult) response(plan pairs.Plan) *Response {
	resp := &Response{
		Contradictions:  r.contradictions,
		ComparisonsMade: r.comparisons,
		NLIChecksMade:   r.checks,
	}
	if resp.Contradictions == nil {
		resp.Contradictions = []Contradiction{}
	}
	if plan.Excluded > 0 {
		resp.ExcludedRequirements = plan.Excluded
		resp.Warnings = []string{truncationWarning(plan.Excluded, len(plan.Requirements))}
	}
	return resp
}

// summary describes provider errors; empty when there were none
func (r sweepResult) summary() string {
	switch {
	case r.aborted:
		return fmt.Sprintf("analysis stopped after %d provider errors", r.providerErrors)
	case r.providerErrors > 0:
		return fmt.Sprintf("%d provider errors during analysis", r.providerErrors)
	default:
		return ""
	}
}

// sweep visits every pair of plan in order. Provider failures are counted
// and the sweep aborts once they exceed MaxProviderErrors. Any other error
// (persistence, cancellation, supersession) stops the sweep and is returned
// with the partial result.
func (o *Orchestrator) sweep(ctx context.Context, run *Run, plan pairs.Plan, s settings, task *models.AnalysisTask) (sweepResult, error) {
	var res sweepResult
	reqs := plan.Requirements
	persist := run.ProjectID != uuid.Nil

	if persist {
		err := o.runs.guard(run, func() error {
			return o.results.DeleteByProjectID(ctx, run.ProjectID)
		})
		if err != nil {
			return res, fmt.Errorf("delete previous results: %w", err)
		}
	}

	for _, p := range plan.Pairs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		a, b := reqs[p.I], reqs[p.J]

		if p.Skip {
			o.metrics.ObservePair("skipped", false)
			if err := o.advance(ctx, task, a.Text, b.Text); err != nil {
				return res, err
			}
			continue
		}

		res.comparisons++
		if task != nil {
			if err := o.tasks.Focus(ctx, task, a.Text, b.Text); err != nil {
				return res, err
			}
		}

		adm := o.gate.Evaluate(ctx, a.Text, b.Text)
		res.checks++
		if adm.Err != nil && stopped(ctx, adm.Err) {
			return res, interrupted(ctx, adm.Err)
		}

		if !adm.Admitted(s.similarityThreshold) {
			o.metrics.ObservePair("filtered", false)
			if err := o.advance(ctx, task, a.Text, b.Text); err != nil {
				return res, err
			}
			continue
		}

		var prior *nli.Scores
		if adm.Scored {
			prior = &adm.Scores
		}

		verdict, err := o.classifier.Classify(ctx, a.Text, b.Text, prior)
		if verdict.Fresh || err != nil {
			res.checks++
		}
		if err != nil {
			if stopped(ctx, err) {
				return res, interrupted(ctx, err)
			}
			res.providerErrors++
			o.metrics.ObservePair("error", false)
			o.logger.Warn("pair classification failed",
				zap.Int("index1", p.I),
				zap.Int("index2", p.J),
				zap.Int("provider_errors", res.providerErrors),
				zap.Error(err),
			)
			if err := o.advance(ctx, task, a.Text, b.Text); err != nil {
				return res, err
			}
			if res.providerErrors > o.cfg.MaxProviderErrors {
				res.aborted = true
				o.logger.Warn("analysis aborted: provider error ceiling reached",
					zap.Int("provider_errors", res.providerErrors),
				)
				return res, nil
			}
			continue
		}

		isContradiction := verdict.Score >= s.nliThreshold
		if persist {
			row := &models.ComparisonResult{
				ProjectID:          run.ProjectID,
				RequirementID1:     a.RequirementID,
				RequirementID2:     b.RequirementID,
				RequirementText1:   a.Text,
				RequirementText2:   b.Text,
				Index1:             p.I,
				Index2:             p.J,
				SimilarityScore:    adm.Similarity,
				ContradictionScore: verdict.Score,
				IsContradiction:    isContradiction,
				Provider:           verdict.Provider,
				CreatedAt:          o.now(),
			}
			err := o.runs.guard(run, func() error {
				return o.results.Create(ctx, row)
			})
			if err != nil {
				return res, fmt.Errorf("store comparison result: %w", err)
			}
		}

		if isContradiction {
			res.contradictions = append(res.contradictions, Contradiction{
				Index1:             p.I,
				Index2:             p.J,
				RequirementID1:     a.RequirementID,
				RequirementID2:     b.RequirementID,
				Requirement1:       a.Text,
				Requirement2:       b.Text,
				SimilarityScore:    adm.Similarity,
				ContradictionScore: verdict.Score,
				Provider:           verdict.Provider,
			})
		}
		o.metrics.ObservePair("classified", isContradiction)

		if err := o.advance(ctx, task, a.Text, b.Text); err != nil {
			return res, err
		}
	}

	return res, nil
}

func (o *Orchestrator) advance(ctx context.Context, task *models.AnalysisTask, text1, text2 string) error {
	if task == nil {
		return nil
	}
	return o.tasks.Advance(ctx, task, text1, text2)
}

// interruption replaces a bare cancellation error with the cause recorded on ctx
func interruption(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
	}
	return err
}

// stopped reports whether an evaluation error came from ctx running out
// rather than from the provider
func stopped(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var perr *nli.ProviderError
	if errors.As(err, &perr) {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// replaced reports whether err stopped a run because a synchronous run took
// over its project's results
func replaced(ctx context.Context, err error) bool {
	if !errors.Is(context.Cause(ctx), ErrReplaced) {
		return false
	}
	return errors.Is(err, ErrReplaced) || errors.Is(err, ErrSuperseded)
}

func truncationWarning(excluded, limit int) string {
	return fmt.Sprintf("%d requirements beyond max_requirements=%d were excluded from analysis", excluded, limit)
}

func joinErrors(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "; ")
}
