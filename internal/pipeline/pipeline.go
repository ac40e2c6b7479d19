// Package pipeline runs every source, turns candidates into postings and
// hands them to the synchronizer once per run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/gamejobs-crawler/internal/deadline"
	"github.com/JakeFAU/gamejobs-crawler/internal/filter"
	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
	"github.com/JakeFAU/gamejobs-crawler/internal/linknorm"
	"github.com/JakeFAU/gamejobs-crawler/internal/metrics"
	"github.com/JakeFAU/gamejobs-crawler/internal/syncer"
)

// Synchronizer persists a run's postings.
type Synchronizer interface {
	Sync(ctx context.Context, postings []ingest.Posting) (syncer.Report, error)
}

// RunContext carries the per-run state that used to be global: the run
// identity, the day deadlines are compared against and the per-source results.
type RunContext struct {
	RunID     string
	StartedAt time.Time
	Today     ingest.Date
	Results   []SourceResult
}

// Config tunes a pipeline.
type Config struct {
	// Timeout bounds source collection. Zero means no bound.
	Timeout time.Duration
	// SyncGrace bounds the sync of what was collected before Timeout fired.
	SyncGrace time.Duration
}

const defaultSyncGrace = 2 * time.Minute

// Pipeline wires sources, filter, normalizers and the synchronizer.
type Pipeline struct {
	sources   []ingest.Source
	fetcher   ingest.Fetcher
	filter    *filter.Filter
	deadlines *deadline.Parser
	sync      Synchronizer
	ids       ingest.IDGenerator
	clock     ingest.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Pipeline.
func New(
	sources []ingest.Source,
	fetcher ingest.Fetcher,
	relevance *filter.Filter,
	deadlines *deadline.Parser,
	synchronizer Synchronizer,
	ids ingest.IDGenerator,
	clock ingest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		sources:   sources,
		fetcher:   fetcher,
		filter:    relevance,
		deadlines: deadlines,
		sync:      synchronizer,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("pipeline"),
	}
}

// Sources returns the names of the configured sources in run order.
func (p *Pipeline) Sources() []string {
	names := make([]string, 0, len(p.sources))
	for _, s := range p.sources {
		names = append(names, s.Name())
	}
	return names
}

// NewRun allocates the RunContext for the next run.
func (p *Pipeline) NewRun() (*RunContext, error) {
	id, err := p.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	results := make([]SourceResult, len(p.sources))
	for i, s := range p.sources {
		results[i] = SourceResult{Source: s.Name(), Rejected: map[filter.Reason]int{}}
	}
	return &RunContext{
		RunID:     id,
		StartedAt: p.clock.Now(),
		Today:     p.deadlines.Today(),
		Results:   results,
	}, nil
}

// Run executes a fresh run.
func (p *Pipeline) Run(ctx context.Context) (RunReport, error) {
	rc, err := p.NewRun()
	if err != nil {
		return RunReport{}, err
	}
	return p.Execute(ctx, rc)
}

// Execute runs every source concurrently, filters and normalizes their
// candidates and calls the synchronizer exactly once. A failing source is
// recorded on its result and never cancels its siblings. When the run timeout
// fires, whatever was accepted so far is still synced under SyncGrace. The
// only error returned is the context's.
func (p *Pipeline) Execute(ctx context.Context, rc *RunContext) (RunReport, error) {
	runCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	logger := p.logger.With(zap.String("run_id", rc.RunID))
	logger.Info("run started", zap.Strings("sources", p.Sources()), zap.String("today", rc.Today.String()))

	accepted := make([][]ingest.Posting, len(p.sources))
	g, gctx := errgroup.WithContext(runCtx)
	for i, src := range p.sources {
		g.Go(func() error {
			accepted[i] = p.runSource(gctx, rc, &rc.Results[i], src, logger)
			return nil
		})
	}
	_ = g.Wait()

	var postings []ingest.Posting
	for _, batch := range accepted {
		postings = append(postings, batch...)
	}

	report := RunReport{RunID: rc.RunID, StartedAt: rc.StartedAt, Sources: rc.Results}
	if err := ctx.Err(); err != nil {
		return p.finish(report, logger, err)
	}

	syncCtx := runCtx
	timedOut := runCtx.Err()
	if timedOut != nil {
		grace := p.cfg.SyncGrace
		if grace <= 0 {
			grace = defaultSyncGrace
		}
		logger.Warn("run timeout reached, syncing collected postings",
			zap.Int("postings", len(postings)), zap.Duration("grace", grace))
		var cancel context.CancelFunc
		syncCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
	}

	syncReport, err := p.sync.Sync(syncCtx, postings)
	report.Sync = syncReport
	if err == nil {
		err = timedOut
	}
	return p.finish(report, logger, err)
}

func (p *Pipeline) finish(report RunReport, logger *zap.Logger, err error) (RunReport, error) {
	report.FinishedAt = p.clock.Now()
	status := "success"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "canceled"
	case len(report.FailedSources()) > 0 || len(report.Sync.Errors) > 0:
		status = "partial"
	}
	metrics.ObserveRun(status, report.FinishedAt)

	fields := []zap.Field{
		zap.String("status", status),
		zap.Int("parsed", report.Parsed()),
		zap.Int("accepted", report.Accepted()),
		zap.Int("rejected", report.Rejected()),
		zap.Int("upserted", report.Sync.Upserted),
		zap.Strings("failed_sources", report.FailedSources()),
		zap.Duration("duration", report.Duration()),
	}
	if err != nil {
		logger.Warn("run aborted", append(fields, zap.Error(err))...)
		return report, err
	}
	logger.Info("run finished", fields...)
	return report, nil
}

// runSource collects one source and converts its candidates. Panics are
// contained so a broken parser only fails its own source.
func (p *Pipeline) runSource(
	ctx context.Context,
	rc *RunContext,
	result *SourceResult,
	src ingest.Source,
	logger *zap.Logger,
) (postings []ingest.Posting) {
	logger = logger.With(zap.String("source", src.Name()))
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		if r := recover(); r != nil {
			result.Err = fmt.Sprintf("panic: %v", r)
			postings = nil
			logger.Error("source panicked", zap.Any("panic", r))
		}
	}()

	col := src.Collect(ctx, p.fetcher)
	result.Pages = col.Pages
	result.FailedPages = col.FailedPages
	result.Skipped = col.Skipped
	result.Duplicates = col.Duplicates
	result.Failures = col.Failures
	result.Parsed = len(col.Candidates)
	if col.Pages > 0 && col.FailedPages == col.Pages {
		result.Err = "all pages failed"
		if len(col.Failures) > 0 {
			result.Err += ": " + col.Failures[0].Reason
		}
	}

	for _, c := range col.Candidates {
		decision := p.filter.Evaluate(c)
		metrics.ObserveCandidates(src.Name(), string(decision.Reason), 1)
		if !decision.Keep {
			result.Rejected[decision.Reason]++
			continue
		}
		posting, ok := p.toPosting(rc, c)
		if !ok {
			result.Skipped++
			continue
		}
		postings = append(postings, posting)
	}
	result.Accepted = len(postings)

	logger.Info("source finished",
		zap.Int("pages", result.Pages),
		zap.Int("failed_pages", result.FailedPages),
		zap.Int("parsed", result.Parsed),
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.RejectedTotal()),
		zap.Int("skipped", result.Skipped),
	)
	return postings
}

func (p *Pipeline) toPosting(rc *RunContext, c ingest.RawCandidate) (ingest.Posting, bool) {
	link := linknorm.Normalize(c.RawLink)
	company := strings.TrimSpace(c.Company)
	position := strings.TrimSpace(c.Position)
	if link == "" || company == "" || position == "" {
		return ingest.Posting{}, false
	}
	due := p.deadlines.Parse(c.RawDeadline)
	return ingest.Posting{
		Company:  company,
		Position: position,
		Link:     link,
		Deadline: due,
		JobType:  c.JobType,
		Category: c.Category,
		Tags:     ingest.NormalizeTags(c.Tags),
		IsActive: due == nil || !due.Before(rc.Today),
	}, true
}
