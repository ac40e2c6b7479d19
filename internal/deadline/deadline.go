// Package deadline turns free-text closing dates into calendar dates.
package deadline

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

var (
	fullDatePattern  = regexp.MustCompile(`(\d{4})[/.\-](\d{1,2})[/.\-](\d{1,2})`)
	dayOffsetPattern = regexp.MustCompile(`(?i)D-(\d+)`)
	monthDayPattern  = regexp.MustCompile(`(\d{1,2})\s*[/.\-월\s]\s*(\d{1,2})`)

	todayMarkers    = []string{"d-day", "오늘"}
	tomorrowMarkers = []string{"내일"}
	ongoingMarkers  = []string{"채용시", "상시", "수시", "ongoing", "until filled"}
)

// Parser resolves relative expressions against the current day in loc.
type Parser struct {
	clock ingest.Clock
	loc   *time.Location
}

// NewParser builds a Parser. A nil loc means UTC.
func NewParser(clock ingest.Clock, loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{clock: clock, loc: loc}
}

// Today returns the current calendar day in the parser's zone.
func (p *Parser) Today() ingest.Date {
	return ingest.DateOf(p.clock.Now().In(p.loc))
}

// Parse returns the deadline expressed by text, or nil when the posting has no
// fixed deadline or the text is not recognized. When text is a range
// ("03.01 ~ 03.15") the part after the last tilde is tried first.
func (p *Parser) Parse(text string) *ingest.Date {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if idx := strings.LastIndex(text, "~"); idx >= 0 {
		if d, ok := p.parse(text[idx+len("~"):]); ok {
			return d
		}
	}
	d, _ := p.parse(text)
	return d
}

// parse reports ok once a pattern matched, even when the match resolves to no date.
func (p *Parser) parse(text string) (*ingest.Date, bool) {
	today := p.Today()
	lower := strings.ToLower(text)

	if m := fullDatePattern.FindStringSubmatch(text); m != nil {
		return dateFrom(atoi(m[1]), atoi(m[2]), atoi(m[3])), true
	}

	if containsAny(lower, todayMarkers) {
		return &today, true
	}
	if containsAny(lower, tomorrowMarkers) {
		d := today.AddDays(1)
		return &d, true
	}
	if m := dayOffsetPattern.FindStringSubmatch(text); m != nil {
		d := today.AddDays(atoi(m[1]))
		return &d, true
	}

	if m := monthDayPattern.FindStringSubmatch(text); m != nil {
		month := atoi(m[1])
		year := today.Year
		// A January deadline seen in December belongs to next year.
		if today.Month == time.December && month == int(time.January) {
			year++
		}
		return dateFrom(year, month, atoi(m[2])), true
	}

	if containsAny(lower, ongoingMarkers) {
		return nil, true
	}
	return nil, false
}

func dateFrom(year, month, day int) *ingest.Date {
	d, ok := ingest.NewDate(year, time.Month(month), day)
	if !ok {
		return nil
	}
	return &d
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
