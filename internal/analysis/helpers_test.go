package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/todmy/req-analyzer/internal/nli"
	"github.com/todmy/req-analyzer/internal/storage"
	"github.com/todmy/req-analyzer/pkg/models"
)

var errProviderDown = errors.New("provider down")

type scoreFunc func(ctx context.Context, premise, hypothesis string, call int) (nli.Scores, error)

// fakeScorer counts evaluations and delegates to fn
type fakeScorer struct {
	mu    sync.Mutex
	calls int
	fn    scoreFunc
}

func (f *fakeScorer) Score(ctx context.Context, premise, hypothesis string) (nli.Scores, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(ctx, premise, hypothesis, call)
}

func (f *fakeScorer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fixedScores(s nli.Scores) *fakeScorer {
	return &fakeScorer{fn: func(context.Context, string, string, int) (nli.Scores, error) {
		return s, nil
	}}
}

func failingScorer() *fakeScorer {
	return &fakeScorer{fn: func(context.Context, string, string, int) (nli.Scores, error) {
		return nli.Scores{}, errProviderDown
	}}
}

// keywordScorer reports a contradiction whenever either text contains "never"
func keywordScorer() *fakeScorer {
	return &fakeScorer{fn: func(_ context.Context, premise, hypothesis string, _ int) (nli.Scores, error) {
		if strings.Contains(premise, "never") || strings.Contains(hypothesis, "never") {
			return nli.Scores{Contradiction: 0.9, Neutral: 0.05, Entailment: 0.05}, nil
		}
		return nli.Scores{Entailment: 0.85, Neutral: 0.1, Contradiction: 0.05}, nil
	}}
}

// blockingScorer blocks every call until ctx is done and signals entry on started
func blockingScorer(started chan<- struct{}) *fakeScorer {
	var once sync.Once
	return &fakeScorer{fn: func(ctx context.Context, _, _ string, _ int) (nli.Scores, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nli.Scores{}, ctx.Err()
	}}
}

type recordingTasks struct {
	storage.TaskRepository
	mu      sync.Mutex
	updates []models.AnalysisTask
}

func (r *recordingTasks) Update(ctx context.Context, task *models.AnalysisTask) error {
	r.mu.Lock()
	r.updates = append(r.updates, *task)
	r.mu.Unlock()
	return r.TaskRepository.Update(ctx, task)
}

func (r *recordingTasks) snapshot() []models.AnalysisTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AnalysisTask(nil), r.updates...)
}

// hookedTasks runs onCreate after every stored task
type hookedTasks struct {
	storage.TaskRepository
	onCreate func()
}

func (h *hookedTasks) Create(ctx context.Context, task *models.AnalysisTask) error {
	if err := h.TaskRepository.Create(ctx, task); err != nil {
		return err
	}
	h.onCreate()
	return nil
}

type failingResults struct {
	storage.ComparisonResultRepository
}

func (failingResults) Create(context.Context, *models.ComparisonResult) error {
	return errors.New("disk full")
}

func memoryStores(store *storage.MemoryStore) Stores {
	return Stores{
		Requirements: store.Requirements(),
		Results:      store.Results(),
		Tasks:        store.Tasks(),
	}
}

func newTestOrchestrator(scorer nli.Scorer, cfg Config) (*Orchestrator, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	return NewOrchestrator(cfg, scorer, memoryStores(store)), store
}

func waitRun(t *testing.T, run *Run) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := run.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "run did not finish in time")
	return err
}

var (
	refundAllowed   = "The system shall allow refunds within 30 days of purchase."
	refundForbidden = "The system shall not allow any refunds under any circumstances."
)

func longTexts(n int) []models.RequirementText {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = strings.Repeat(string(rune('a'+i)), 12) + " requirement"
	}
	return models.TextsOf(texts...)
}

func floatOpt(v float64) *float64 { return &v }

func intOpt(v int) *int { return &v }
