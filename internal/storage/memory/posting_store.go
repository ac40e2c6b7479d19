// Package memory provides in-process store implementations for dry runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

// PostingStore keeps postings keyed by link in insertion order.
type PostingStore struct {
	mu       sync.RWMutex
	postings map[string]ingest.Posting
	order    []string
}

var _ ingest.Store = (*PostingStore)(nil)

// NewPostingStore constructs an empty PostingStore.
func NewPostingStore() *PostingStore {
	return &PostingStore{postings: make(map[string]ingest.Posting)}
}

// ExistingLinks returns up to limit links. A non-positive limit returns all of them.
func (s *PostingStore) ExistingLinks(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]string(nil), s.order[:n]...), nil
}

// Upsert inserts new links and overwrites known ones. A stored posting that
// is already inactive stays inactive.
func (s *PostingStore) Upsert(_ context.Context, postings []ingest.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range postings {
		p = clonePosting(p)
		if prev, ok := s.postings[p.Link]; ok {
			p.IsActive = prev.IsActive && p.IsActive
		} else {
			s.order = append(s.order, p.Link)
		}
		s.postings[p.Link] = p
	}
	return nil
}

// DeactivateExpired marks active postings with a deadline before today inactive.
func (s *PostingStore) DeactivateExpired(_ context.Context, today ingest.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for link, p := range s.postings {
		if p.IsActive && p.Deadline != nil && p.Deadline.Before(today) {
			p.IsActive = false
			s.postings[link] = p
			n++
		}
	}
	return n, nil
}

// PurgeInactive deletes inactive postings with a deadline before cutoff.
func (s *PostingStore) PurgeInactive(_ context.Context, cutoff ingest.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	n := 0
	for _, link := range s.order {
		p := s.postings[link]
		if !p.IsActive && p.Deadline != nil && p.Deadline.Before(cutoff) {
			delete(s.postings, link)
			n++
			continue
		}
		kept = append(kept, link)
	}
	s.order = kept
	return n, nil
}

// ListPostings returns copies of every posting in insertion order.
func (s *PostingStore) ListPostings(_ context.Context) ([]ingest.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Posting, 0, len(s.order))
	for _, link := range s.order {
		out = append(out, clonePosting(s.postings[link]))
	}
	return out, nil
}

// Len returns the number of stored postings.
func (s *PostingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.postings)
}

func clonePosting(p ingest.Posting) ingest.Posting {
	p.Tags = append([]string(nil), p.Tags...)
	if p.Deadline != nil {
		d := *p.Deadline
		p.Deadline = &d
	}
	return p
}
