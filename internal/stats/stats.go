// Package stats summarizes the stored postings.
package stats

import (
	"sort"
	"strings"
	"unicode"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

const sampleSize = 10

var legalForms = strings.NewReplacer(
	"(주)", "",
	"주식회사", "",
	"㈜", "",
	"(유)", "",
	"(사)", "",
)

// NormalizeCompany strips Korean legal-entity markers and all whitespace so
// "(주) 넥슨코리아" and "넥슨코리아" compare equal.
func NormalizeCompany(name string) string {
	name = legalForms.Replace(name)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)
}

// TagCount is one tag and how many postings carry it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Summary describes the store contents.
type Summary struct {
	Total                     int        `json:"total"`
	Active                    int        `json:"active"`
	WithDeadline              int        `json:"with_deadline"`
	UniqueCompaniesRaw        int        `json:"unique_companies_raw"`
	UniqueCompaniesNormalized int        `json:"unique_companies_normalized"`
	Tags                      []TagCount `json:"tags"`
	// Suspicious is set when every posting has a different raw company
	// string, which usually means company names were scraped wrong.
	Suspicious bool     `json:"suspicious"`
	Sample     []string `json:"sample,omitempty"`
}

// Summarize counts postings, companies and tags. Tags are sorted by count
// descending, then by name.
func Summarize(postings []ingest.Posting) Summary {
	s := Summary{Total: len(postings)}
	raw := make(map[string]struct{})
	normalized := make(map[string]struct{})
	tags := make(map[string]int)
	companies := make([]string, 0, len(postings))

	for _, p := range postings {
		if p.IsActive {
			s.Active++
		}
		if p.Deadline != nil {
			s.WithDeadline++
		}
		raw[p.Company] = struct{}{}
		normalized[NormalizeCompany(p.Company)] = struct{}{}
		companies = append(companies, p.Company)
		for _, tag := range ingest.NormalizeTags(p.Tags) {
			tags[tag]++
		}
	}
	s.UniqueCompaniesRaw = len(raw)
	s.UniqueCompaniesNormalized = len(normalized)

	s.Tags = make([]TagCount, 0, len(tags))
	for tag, n := range tags {
		s.Tags = append(s.Tags, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(s.Tags, func(i, j int) bool {
		if s.Tags[i].Count != s.Tags[j].Count {
			return s.Tags[i].Count > s.Tags[j].Count
		}
		return s.Tags[i].Tag < s.Tags[j].Tag
	})

	if s.Total > 1 && s.UniqueCompaniesRaw == s.Total {
		s.Suspicious = true
		s.Sample = companies[:min(sampleSize, len(companies))]
	}
	return s
}
