package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
	"github.com/JakeFAU/gamejobs-crawler/internal/linknorm"
)

const (
	sogangBase      = "https://sbs.sogang.ac.kr/front/cmsboardlist.do"
	sogangMarker    = "[커리어]"
	sogangViewPath  = "cmsboardview.do"
	sogangNoCompany = "대학교 게시판"
)

var sogangProfile = Profile{Tag: Sogang, JobType: "수시/공채", Category: "기타", Tags: []string{"대학교", "서강대"}}

// [커리어] company title (~deadline)
var sogangTitle = regexp.MustCompile(`\[커리어\]\s*(.+?)\s+(.+?)\s*\((~.*?)\)`)

// ParseSogang reads the career bulletin board. Only posts tagged [커리어] that
// link to a board view are considered.
func ParseSogang(payload []byte) ([]ingest.RawCandidate, ParseStats, error) {
	doc, err := newDocument(payload)
	if err != nil {
		return nil, ParseStats{}, err
	}

	var (
		out   []ingest.RawCandidate
		stats ParseStats
	)
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		text := cleanText(a)
		href, _ := a.Attr("href")
		if !strings.Contains(text, sogangMarker) || !strings.Contains(href, sogangViewPath) {
			return
		}
		stats.Items++

		company, position, deadline := splitSogangTitle(text)
		link := linknorm.Resolve(sogangBase, href)
		if position == "" || link == "" {
			stats.Skipped++
			return
		}
		out = append(out, sogangProfile.stamp(ingest.RawCandidate{
			Company:     company,
			Position:    position,
			RawLink:     link,
			RawDeadline: deadline,
		}))
	})
	return out, stats, nil
}

// splitSogangTitle extracts company, title and deadline text. Titles that do
// not follow the board convention are split on the first space.
func splitSogangTitle(text string) (company, position, deadline string) {
	if m := sogangTitle.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3])
	}
	rest := strings.TrimSpace(strings.Replace(text, sogangMarker, "", 1))
	if rest == "" {
		return "", "", ""
	}
	if company, position, ok := strings.Cut(rest, " "); ok {
		return company, strings.TrimSpace(position), ""
	}
	return sogangNoCompany, rest, ""
}

func sogangPageURL(board string, page int) string {
	if board == "" {
		board = "2020"
	}
	return fmt.Sprintf("%s?currentPage=%d&bbsConfigFK=%s&siteId=sbs", sogangBase, page, url.QueryEscape(board))
}
