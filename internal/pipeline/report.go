package pipeline

import (
	"time"

	"github.com/JakeFAU/gamejobs-crawler/internal/filter"
	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
	"github.com/JakeFAU/gamejobs-crawler/internal/syncer"
)

// SourceResult is the outcome of one source within a run.
type SourceResult struct {
	Source      string                `json:"source"`
	Pages       int                   `json:"pages"`
	FailedPages int                   `json:"failed_pages"`
	Parsed      int                   `json:"parsed"`
	Skipped     int                   `json:"skipped"`
	Duplicates  int                   `json:"duplicates"`
	Accepted    int                   `json:"accepted"`
	Rejected    map[filter.Reason]int `json:"rejected,omitempty"`
	Failures    []ingest.PageFailure  `json:"failures,omitempty"`
	Err         string                `json:"error,omitempty"`
	Duration    time.Duration         `json:"duration_ns"`
}

// RejectedTotal sums the rejections across reasons.
func (r SourceResult) RejectedTotal() int {
	n := 0
	for _, c := range r.Rejected {
		n += c
	}
	return n
}

// RunReport summarizes a finished run.
type RunReport struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceResult `json:"sources"`
	Sync       syncer.Report  `json:"sync"`
}

// Parsed is the number of candidates all sources produced.
func (r RunReport) Parsed() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Parsed
	}
	return n
}

// Accepted is the number of candidates that passed the filter.
func (r RunReport) Accepted() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Accepted
	}
	return n
}

// Rejected is the number of candidates the filter dropped.
func (r RunReport) Rejected() int {
	n := 0
	for _, s := range r.Sources {
		n += s.RejectedTotal()
	}
	return n
}

// FailedSources lists the sources that recorded an error.
func (r RunReport) FailedSources() []string {
	var out []string
	for _, s := range r.Sources {
		if s.Err != "" {
			out = append(out, s.Source)
		}
	}
	return out
}

// Duration is the wall time of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
