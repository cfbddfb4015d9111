package analysis

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var errShutdown = errors.New("analysis cancelled: service shutting down")

// Run is the handle of one analysis run
type Run struct {
	ProjectID uuid.UUID
	TaskID    uuid.UUID

	version uint64
	cancel  context.CancelCauseFunc
	done    chan struct{}
	err     error
}

// Done is closed when the run has finished
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx is done
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the terminal error of the run. Only valid after Done is closed.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Cancel asks the run to stop at the next pair boundary
func (r *Run) Cancel() {
	r.cancel(context.Canceled)
}

// projectRuns serializes result writes of one project and stamps run versions
type projectRuns struct {
	mu      sync.Mutex
	version uint64
	cancel  context.CancelCauseFunc
}

// registry tracks in-flight runs. Starting a run for a project cancels and
// supersedes the previous one.
type registry struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*projectRuns
	active   map[*Run]struct{}
	closed   bool
}

func newRegistry() *registry {
	return &registry{
		projects: make(map[uuid.UUID]*projectRuns),
		active:   make(map[*Run]struct{}),
	}
}

// begin registers a run derived from parent. The project's previous run, if
// any, is cancelled with cause. Runs without a project are tracked for
// shutdown but never superseded.
func (g *registry) begin(parent context.Context, projectID uuid.UUID, cause error) (*Run, context.Context, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, nil, ErrShuttingDown
	}

	ctx, cancel := context.WithCancelCause(parent)
	run := &Run{
		ProjectID: projectID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	if projectID != uuid.Nil {
		p, ok := g.projects[projectID]
		if !ok {
			p = &projectRuns{}
			g.projects[projectID] = p
		}

		p.mu.Lock()
		if p.cancel != nil {
			p.cancel(cause)
		}
		p.version++
		p.cancel = cancel
		run.version = p.version
		p.mu.Unlock()
	}

	g.active[run] = struct{}{}
	return run, ctx, nil
}

func (g *registry) accepting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed
}

// guard runs write while holding the project lock, unless run has been
// superseded, in which case the write is discarded.
func (g *registry) guard(run *Run, write func() error) error {
	if run.ProjectID == uuid.Nil {
		return write()
	}

	g.mu.Lock()
	p := g.projects[run.ProjectID]
	g.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.version != run.version {
		return ErrSuperseded
	}
	return write()
}

// finish records err on run and releases it
func (g *registry) finish(run *Run, err error) {
	g.mu.Lock()
	delete(g.active, run)
	if p, ok := g.projects[run.ProjectID]; ok {
		p.mu.Lock()
		if p.version == run.version {
			p.cancel = nil
		}
		p.mu.Unlock()
	}
	g.mu.Unlock()

	run.err = err
	run.cancel(context.Canceled)
	close(run.done)
}

// shutdown refuses new runs, cancels the active ones and waits for them
func (g *registry) shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	runs := make([]*Run, 0, len(g.active))
	for run := range g.active {
		runs = append(runs, run)
	}
	g.mu.Unlock()

	for _, run := range runs {
		run.cancel(errShutdown)
	}

	for _, run := range runs {
		select {
		case <-run.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
