// Package ingest defines the core types shared across the ingestion pipeline.
package ingest

import (
	"strings"
	"unicode"
)

// RawCandidate is one list item as a parser found it. Nothing about it is validated yet.
type RawCandidate struct {
	Company     string
	Position    string
	RawLink     string
	RawDeadline string
	SourceTag   string

	// Profile defaults stamped by the source.
	JobType  string
	Category string
	Tags     []string
}

// Posting is the normalized record persisted in the store.
type Posting struct {
	Company  string   `json:"company"`
	Position string   `json:"position"`
	Link     string   `json:"link"`
	Deadline *Date    `json:"deadline"`
	JobType  string   `json:"job_type"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	IsActive bool     `json:"is_active"`
}

// IdentityKey returns the whitespace-stripped, lowercased company|position key used for dedup.
func (p Posting) IdentityKey() string {
	return squash(p.Company) + "|" + squash(p.Position)
}

func squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// NormalizeTags drops blank and repeated tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
