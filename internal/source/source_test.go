package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	errs     map[string]error
	requests []ingest.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req ingest.FetchRequest) (ingest.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err, ok := f.errs[req.URL]; ok {
		return ingest.FetchResponse{}, err
	}
	return ingest.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(f.pages[req.URL])}, nil
}

func (f *fakeFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.URL)
	}
	return out
}

type recordingPacer struct {
	mu        sync.Mutex
	waits     int
	intervals map[string]time.Duration
}

func (p *recordingPacer) Wait(ctx context.Context, _ string) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return ctx.Err()
}

func (p *recordingPacer) SetInterval(host string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.intervals == nil {
		p.intervals = map[string]time.Duration{}
	}
	p.intervals[host] = d
}

func wantedPage(ids ...int) string {
	items := ""
	for i, id := range ids {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"id":%d,"position":"게임 개발 %d","company":{"name":"넥슨"}}`, id, id)
	}
	return `{"data":[` + items + `]}`
}

func TestCollectStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		wantedPageURL("518", 1): wantedPage(1, 2),
		wantedPageURL("518", 2): wantedPage(3),
		wantedPageURL("518", 3): `{"data":[]}`,
		wantedPageURL("518", 4): wantedPage(4),
	}}
	pacer := &recordingPacer{}
	src, err := Build(Wanted, Options{Pages: 10, Queries: []string{"518"}, StopOnEmpty: true, Pacing: time.Second}, pacer, zap.NewNop())
	require.NoError(t, err)

	col := src.Collect(context.Background(), fetcher)
	require.Equal(t, Wanted, col.Source)
	require.Len(t, col.Candidates, 3)
	require.Equal(t, 3, col.Pages)
	require.Equal(t, 3, pacer.waits)
	require.Equal(t, time.Second, pacer.intervals["www.wanted.co.kr"])
}

func TestCollectWithoutStopOnEmptyWalksAllPages(t *testing.T) {
	t.Parallel()

	pages := map[string]string{}
	for page := 1; page <= 4; page++ {
		pages[wantedPageURL("", page)] = `{"data":[]}`
	}
	fetcher := &fakeFetcher{pages: pages}
	src, err := Build(Wanted, Options{Pages: 4}, nil, nil)
	require.NoError(t, err)

	col := src.Collect(context.Background(), fetcher)
	require.Equal(t, 4, col.Pages)
	require.Zero(t, col.FailedPages)
}

func TestCollectRecordsFailedPages(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[string]string{
			wantedPageURL("518", 2): wantedPage(9),
			wantedPageURL("518", 3): `{"data":[]}`,
		},
		errs: map[string]error{
			wantedPageURL("518", 1): &ingest.StatusError{URL: wantedPageURL("518", 1), StatusCode: 503},
		},
	}
	src, err := Build(Wanted, Options{Pages: 5, StopOnEmpty: true}, nil, zap.NewNop())
	require.NoError(t, err)

	col := src.Collect(context.Background(), fetcher)
	require.Len(t, col.Candidates, 1)
	require.Equal(t, 3, col.Pages)
	require.Equal(t, 1, col.FailedPages)
	require.Len(t, col.Failures, 1)
	require.Equal(t, wantedPageURL("518", 1), col.Failures[0].URL)
}

func TestCollectAbandonsAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	errs := map[string]error{}
	for page := 1; page <= 10; page++ {
		errs[saraminPageURL("게임 신입", page)] = errors.New("connection reset")
	}
	fetcher := &fakeFetcher{errs: errs}
	src, err := Build(Saramin, Options{Pages: 10, StopOnEmpty: true}, nil, zap.NewNop())
	require.NoError(t, err)

	col := src.Collect(context.Background(), fetcher)
	require.Equal(t, maxConsecutiveFailures, col.Pages)
	require.Equal(t, maxConsecutiveFailures, col.FailedPages)
	require.Empty(t, col.Candidates)
}

func TestCollectDedupsAcrossQueries(t *testing.T) {
	t.Parallel()

	page := func(idx ...int) string {
		out := `<div>`
		for _, i := range idx {
			out += fmt.Sprintf(`<div class="item_recruit"><div class="corp_name"><a>넷마블</a></div>
				<h2 class="job_tit"><a href="/zf_user/jobs/relay/view?rec_idx=%d">게임 기획 %d</a></h2></div>`, i, i)
		}
		return out + `</div>`
	}
	fetcher := &fakeFetcher{pages: map[string]string{
		saraminPageURL("게임 신입", 1): page(1, 2),
		saraminPageURL("게임 인턴", 1): page(2, 3),
	}}
	src, err := Build(Saramin, Options{Pages: 2, StopOnEmpty: true, Queries: []string{"게임 신입", "게임 인턴"}}, nil, zap.NewNop())
	require.NoError(t, err)

	col := src.Collect(context.Background(), fetcher)
	require.Len(t, col.Candidates, 3)
	require.Equal(t, 1, col.Duplicates)
	require.Equal(t, 4, col.Pages)
}

func TestCollectSendsRefererAndEncoding(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{}}
	src, err := Build(Gamejob, Options{Pages: 1}, nil, zap.NewNop())
	require.NoError(t, err)

	src.Collect(context.Background(), fetcher)
	require.Len(t, fetcher.requests, 1)
	req := fetcher.requests[0]
	require.Equal(t, "euc-kr", req.Encoding)
	require.Equal(t, "https://www.gamejob.co.kr/", req.Headers.Get("Referer"))
}

func TestCollectHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := &fakeFetcher{pages: map[string]string{}}
	src, err := Build(JobKorea, Options{Pages: 30}, &recordingPacer{}, zap.NewNop())
	require.NoError(t, err)

	col := src.Collect(ctx, fetcher)
	require.Empty(t, fetcher.urls())
	require.Empty(t, col.Candidates)
}

func TestBuild(t *testing.T) {
	t.Parallel()

	_, err := Build("monster", Options{}, nil, nil)
	require.Error(t, err)

	src, err := Build(GamejobDuty, Options{Pages: 7}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, src.Options().Pages)

	src, err = Build(Saramin, Options{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 30, src.Options().Pages)

	for _, name := range Names() {
		opts, ok := Defaults(name)
		require.True(t, ok, name)
		require.True(t, opts.Enabled, name)
		require.NotEmpty(t, opts.Queries, name)
		b := boards[name]
		u, err := url.Parse(b.pageURL("", 1))
		require.NoError(t, err)
		require.NotEmpty(t, u.Host)
	}
}
