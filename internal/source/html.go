package source

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/korean"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
	"github.com/JakeFAU/gamejobs-crawler/internal/linknorm"
)

func newDocument(payload []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// cleanText collapses runs of whitespace in the selection's text.
func cleanText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// listItem is the selector set for boards that render one row per posting.
type listItem struct {
	row      string
	company  string
	position []string
	link     string
	deadline string
}

// parseList applies the selectors to every row. Rows missing a company,
// position or resolvable link are skipped.
func parseList(payload []byte, base string, sel listItem, profile Profile) ([]ingest.RawCandidate, ParseStats, error) {
	doc, err := newDocument(payload)
	if err != nil {
		return nil, ParseStats{}, err
	}

	var (
		out   []ingest.RawCandidate
		stats ParseStats
	)
	doc.Find(sel.row).Each(func(_ int, row *goquery.Selection) {
		stats.Items++
		company := cleanText(row.Find(sel.company).First())
		position := ""
		for _, s := range sel.position {
			if position = cleanText(row.Find(s).First()); position != "" {
				break
			}
		}
		href, _ := row.Find(sel.link).First().Attr("href")
		link := linknorm.Resolve(base, href)
		if company == "" || position == "" || link == "" {
			stats.Skipped++
			return
		}
		out = append(out, profile.stamp(ingest.RawCandidate{
			Company:     company,
			Position:    position,
			RawLink:     link,
			RawDeadline: cleanText(row.Find(sel.deadline).First()),
		}))
	})
	return out, stats, nil
}

// escapeQuery percent-encodes a search term with %20 for spaces.
func escapeQuery(q string) string {
	return strings.ReplaceAll(url.QueryEscape(q), "+", "%20")
}

// escapeEUCKR percent-encodes q as euc-kr bytes. Characters outside the
// charset fall back to UTF-8 escaping.
func escapeEUCKR(q string) string {
	encoded, err := korean.EUCKR.NewEncoder().String(q)
	if err != nil {
		return escapeQuery(q)
	}
	return escapeQuery(encoded)
}
