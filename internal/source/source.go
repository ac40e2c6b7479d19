// Package source crawls the job boards. Each board has a pure parser that turns
// one payload into raw candidates and a Paged crawler that builds page URLs,
// paces, fetches and feeds the parser.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
	"github.com/JakeFAU/gamejobs-crawler/internal/linknorm"
)

// maxConsecutiveFailures ends a query pass once the board stops answering.
const maxConsecutiveFailures = 3

// ParseStats counts what a parser saw. Items is the number of list entries on
// the page, including the Skipped ones that lacked a company, position or link.
type ParseStats struct {
	Items   int
	Skipped int
}

// ParseFunc is the signature shared by every board parser.
type ParseFunc func(payload []byte) ([]ingest.RawCandidate, ParseStats, error)

// Profile is the constant metadata a board stamps on every candidate.
type Profile struct {
	Tag      string
	JobType  string
	Category string
	Tags     []string
}

func (p Profile) stamp(c ingest.RawCandidate) ingest.RawCandidate {
	c.SourceTag = p.Tag
	c.JobType = p.JobType
	c.Category = p.Category
	c.Tags = append([]string(nil), p.Tags...)
	return c
}

// Options tunes a single source.
type Options struct {
	Enabled bool
	// Pages is the number of pages per query pass.
	Pages int
	// Pacing is the minimum gap between two page requests to the board.
	Pacing time.Duration
	// Queries run as concurrent passes. An empty list runs one pass with the board default.
	Queries     []string
	StopOnEmpty bool
}

// Paged crawls page 1..Pages of every query sequentially and merges the passes.
type Paged struct {
	name     string
	referer  string
	encoding string
	opts     Options
	pageURL  func(query string, page int) string
	parse    ParseFunc
	pacer    ingest.Pacer
	logger   *zap.Logger
}

var _ ingest.Source = (*Paged)(nil)

// Name returns the source identifier.
func (s *Paged) Name() string {
	return s.name
}

// Options returns the options the source was built with.
func (s *Paged) Options() Options {
	return s.opts
}

// Collect runs every query pass. Passes share one link set, so a posting
// listed under two queries is kept once.
func (s *Paged) Collect(ctx context.Context, fetcher ingest.Fetcher) ingest.Collection {
	queries := s.opts.Queries
	if len(queries) == 0 {
		queries = []string{""}
	}

	passes := make([]ingest.Collection, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, query := range queries {
		g.Go(func() error {
			passes[i] = s.crawlQuery(gctx, fetcher, query)
			// Never fail the group; a broken pass must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	out := ingest.Collection{Source: s.name}
	seen := make(map[string]struct{})
	for _, pass := range passes {
		candidates := pass.Candidates
		pass.Candidates = nil
		out.Merge(pass)
		for _, c := range candidates {
			key := linknorm.Normalize(c.RawLink)
			if _, dup := seen[key]; dup {
				out.Duplicates++
				continue
			}
			seen[key] = struct{}{}
			out.Candidates = append(out.Candidates, c)
		}
	}
	return out
}

func (s *Paged) crawlQuery(ctx context.Context, fetcher ingest.Fetcher, query string) ingest.Collection {
	col := ingest.Collection{Source: s.name}
	logger := s.logger.With(zap.String("query", query))

	failures := 0
	for page := 1; page <= s.opts.Pages; page++ {
		if ctx.Err() != nil {
			break
		}
		pageURL := s.pageURL(query, page)
		col.Pages++

		items, stats, err := s.fetchPage(ctx, fetcher, pageURL)
		if err != nil {
			col.FailedPages++
			col.Failures = append(col.Failures, ingest.PageFailure{URL: pageURL, Reason: err.Error()})
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			logger.Warn("Page failed", zap.Int("page", page), zap.String("url", pageURL), zap.Error(err))
			failures++
			if failures >= maxConsecutiveFailures {
				logger.Warn("Abandoning query pass after repeated failures", zap.Int("page", page))
				break
			}
			continue
		}
		failures = 0

		col.Skipped += stats.Skipped
		col.Candidates = append(col.Candidates, items...)
		logger.Debug("Page parsed",
			zap.Int("page", page),
			zap.Int("items", stats.Items),
			zap.Int("skipped", stats.Skipped),
		)
		if stats.Items == 0 && s.opts.StopOnEmpty {
			break
		}
	}
	return col
}

func (s *Paged) fetchPage(ctx context.Context, fetcher ingest.Fetcher, pageURL string) ([]ingest.RawCandidate, ParseStats, error) {
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx, pageURL); err != nil {
			return nil, ParseStats{}, err
		}
	}
	headers := http.Header{}
	if s.referer != "" {
		headers.Set("Referer", s.referer)
	}
	resp, err := fetcher.Fetch(ctx, ingest.FetchRequest{URL: pageURL, Headers: headers, Encoding: s.encoding})
	if err != nil {
		return nil, ParseStats{}, err
	}
	items, stats, err := s.parse(resp.Body)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return items, stats, nil
}
