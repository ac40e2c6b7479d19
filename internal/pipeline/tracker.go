package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Tracker allows one run at a time and remembers the latest report. Both the
// scheduler and the HTTP trigger go through it.
type Tracker struct {
	base     context.Context
	pipeline *Pipeline
	logger   *zap.Logger

	mu      sync.Mutex
	running string
	last    *RunReport
	wg      sync.WaitGroup
}

// NewTracker binds asynchronous runs to base; cancelling base aborts them.
func NewTracker(base context.Context, p *Pipeline, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{base: base, pipeline: p, logger: logger.Named("tracker")}
}

// Start launches a run in the background and returns its ID.
func (t *Tracker) Start() (string, error) {
	rc, err := t.claim()
	if err != nil {
		return "", err
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.execute(t.base, rc)
	}()
	return rc.RunID, nil
}

// RunNow executes a run on the caller's goroutine.
func (t *Tracker) RunNow(ctx context.Context) (RunReport, error) {
	rc, err := t.claim()
	if err != nil {
		return RunReport{}, err
	}
	return t.execute(ctx, rc)
}

// Running returns the active run ID, if any.
func (t *Tracker) Running() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running, t.running != ""
}

// Last returns the most recent finished report.
func (t *Tracker) Last() (RunReport, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return RunReport{}, false
	}
	return *t.last, true
}

// Wait blocks until background runs started with Start have finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) claim() (*RunContext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running != "" {
		return nil, ErrRunInProgress
	}
	rc, err := t.pipeline.NewRun()
	if err != nil {
		return nil, err
	}
	t.running = rc.RunID
	return rc, nil
}

func (t *Tracker) execute(ctx context.Context, rc *RunContext) (RunReport, error) {
	report, err := t.pipeline.Execute(ctx, rc)
	if err != nil {
		t.logger.Warn("run ended early", zap.String("run_id", rc.RunID), zap.Error(err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = ""
	t.last = &report
	return report, err
}
