package ingest

import (
	"context"
	"time"
)

// Fetcher retrieves a single URL, applying retry and decoding rules.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Pacer blocks until the next request to rawURL's host is allowed.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Store is the remote posting collection the synchronizer writes to.
type Store interface {
	// ExistingLinks returns up to limit stored links.
	ExistingLinks(ctx context.Context, limit int) ([]string, error)
	// Upsert inserts postings or updates them on a conflicting link.
	Upsert(ctx context.Context, postings []Posting) error
	// DeactivateExpired flips is_active to false for active postings whose deadline is before today.
	DeactivateExpired(ctx context.Context, today Date) (int, error)
	// PurgeInactive deletes inactive postings whose deadline is before cutoff.
	PurgeInactive(ctx context.Context, cutoff Date) (int, error)
	// ListPostings returns every stored posting.
	ListPostings(ctx context.Context) ([]Posting, error)
}

// Source crawls one origin and returns what its parsers extracted.
type Source interface {
	Name() string
	Collect(ctx context.Context, fetcher Fetcher) Collection
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
