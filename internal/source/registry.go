package source

import (
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

// Source names, also used as config keys under sources.<name>.
const (
	Wanted      = "wanted"
	Saramin     = "saramin"
	Gamejob     = "gamejob"
	GamejobDuty = "gamejob_duty"
	JobKorea    = "jobkorea"
	Sogang      = "sogang"
)

type board struct {
	base       string
	referer    string
	encoding   string
	singlePage bool
	pageURL    func(query string, page int) string
	parse      ParseFunc
	defaults   Options
}

var boards = map[string]board{
	Wanted: {
		base:     wantedBase,
		referer:  wantedBase + "/",
		pageURL:  wantedPageURL,
		parse:    ParseWanted,
		defaults: Options{Enabled: true, Pages: 10, Pacing: 500 * time.Millisecond, Queries: []string{"518"}, StopOnEmpty: true},
	},
	Saramin: {
		base:     saraminBase,
		referer:  saraminBase + "/",
		pageURL:  saraminPageURL,
		parse:    ParseSaramin,
		defaults: Options{Enabled: true, Pages: 30, Pacing: time.Second, Queries: []string{"게임 신입"}, StopOnEmpty: true},
	},
	Gamejob: {
		base:     gamejobBase,
		referer:  gamejobBase + "/",
		encoding: gamejobEncoding,
		pageURL:  gamejobPageURL,
		parse:    ParseGamejobList,
		defaults: Options{Enabled: true, Pages: 30, Pacing: time.Second, Queries: []string{"신입"}, StopOnEmpty: true},
	},
	GamejobDuty: {
		base:       gamejobBase,
		referer:    gamejobBase + "/",
		encoding:   gamejobEncoding,
		singlePage: true,
		pageURL:    gamejobDutyPageURL,
		parse:      ParseGamejobDuty,
		defaults:   Options{Enabled: true, Pages: 1, Pacing: time.Second, Queries: []string{"1"}, StopOnEmpty: true},
	},
	JobKorea: {
		base:     jobkoreaBase,
		referer:  jobkoreaBase + "/",
		pageURL:  jobkoreaPageURL,
		parse:    ParseJobKorea,
		defaults: Options{Enabled: true, Pages: 30, Pacing: time.Second, Queries: []string{"게임 신입"}, StopOnEmpty: true},
	},
	Sogang: {
		base:     sogangBase,
		referer:  "https://sbs.sogang.ac.kr/",
		pageURL:  sogangPageURL,
		parse:    ParseSogang,
		defaults: Options{Enabled: true, Pages: 1, Pacing: time.Second, Queries: []string{"2020"}, StopOnEmpty: true},
	},
}

// Names lists every known source in run order.
func Names() []string {
	return []string{Wanted, Saramin, Gamejob, GamejobDuty, JobKorea, Sogang}
}

// Defaults returns the built-in options for name.
func Defaults(name string) (Options, bool) {
	b, ok := boards[name]
	if !ok {
		return Options{}, false
	}
	opts := b.defaults
	opts.Queries = append([]string(nil), b.defaults.Queries...)
	return opts, true
}

type intervalSetter interface {
	SetInterval(host string, interval time.Duration)
}

// Build returns the crawler for name. When pacer supports per-host intervals,
// the source's pacing is registered for its host.
func Build(name string, opts Options, pacer ingest.Pacer, logger *zap.Logger) (*Paged, error) {
	b, ok := boards[name]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Pages <= 0 {
		opts.Pages = b.defaults.Pages
	}
	if b.singlePage {
		opts.Pages = 1
	}
	if setter, ok := pacer.(intervalSetter); ok && opts.Pacing > 0 {
		if u, err := url.Parse(b.base); err == nil {
			setter.SetInterval(u.Hostname(), opts.Pacing)
		}
	}
	return &Paged{
		name:     name,
		referer:  b.referer,
		encoding: b.encoding,
		opts:     opts,
		pageURL:  b.pageURL,
		parse:    b.parse,
		pacer:    pacer,
		logger:   logger.Named("source").With(zap.String("source", name)),
	}, nil
}
