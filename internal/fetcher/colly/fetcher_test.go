package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

func newTestFetcher(cfg Config) (*Fetcher, *[]time.Duration) {
	f := New(cfg, zap.NewNop())
	var waits []time.Duration
	f.pause = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return f, &waits
}

func TestFetchAppliesBrowserHeaders(t *testing.T) {
	t.Parallel()

	var gotUA, gotLang, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Config{})
	resp, err := f.Fetch(context.Background(), ingest.FetchRequest{
		URL:     srv.URL + "/list",
		Headers: http.Header{"Referer": {"https://www.saramin.co.kr/"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>ok</html>", string(resp.Body))
	require.Equal(t, 1, resp.Attempts)
	require.Equal(t, DefaultUserAgent, gotUA)
	require.Contains(t, gotLang, "ko-KR")
	require.Equal(t, "https://www.saramin.co.kr/", gotReferer)
}

func TestFetchRetriesServerErrorsWithDoublingBackoff(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Config{MaxRetries: 3, BackoffInitial: time.Second})
	resp, err := f.Fetch(context.Background(), ingest.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "recovered", string(resp.Body))
	require.Equal(t, 3, resp.Attempts)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Config{MaxRetries: 3, BackoffInitial: time.Second})
	_, err := f.Fetch(context.Background(), ingest.FetchRequest{URL: srv.URL})
	require.Error(t, err)

	var statusErr *ingest.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Equal(t, int32(1), hits.Load())
	require.Empty(t, *waits)
}

func TestFetchGivesUpAfterRetryBudget(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Config{MaxRetries: 3, BackoffInitial: time.Second})
	_, err := f.Fetch(context.Background(), ingest.FetchRequest{URL: srv.URL})
	require.Error(t, err)
	require.Equal(t, int32(4), hits.Load())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *waits)
}

func TestFetchExtendsTimeoutAfterTimeout(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		_, _ = w.Write([]byte("slow origin"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Config{
		Timeout:          100 * time.Millisecond,
		TimeoutExtension: time.Second,
		MaxRetries:       1,
		BackoffInitial:   time.Millisecond,
	})
	resp, err := f.Fetch(context.Background(), ingest.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Attempts)
	require.Equal(t, "slow origin", string(resp.Body))
}

func TestFetchDecodesLegacyKoreanEncoding(t *testing.T) {
	t.Parallel()

	want := "<td class=\"col-company\"><a>넥슨코리아</a></td>"
	encoded, _, err := transform.String(korean.EUCKR.NewEncoder(), want)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(encoded))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Config{})
	resp, err := f.Fetch(context.Background(), ingest.FetchRequest{URL: srv.URL, Encoding: "euc-kr"})
	require.NoError(t, err)
	require.Equal(t, want, string(resp.Body))
}

func TestFetchStopsWhenContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := New(Config{MaxRetries: 3, BackoffInitial: time.Hour}, zap.NewNop())
	f.pause = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	_, err := f.Fetch(ctx, ingest.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	body, err := decodeBody([]byte("plain"), "")
	require.NoError(t, err)
	require.Equal(t, "plain", string(body))

	// Already valid UTF-8 (colly converted it) is left alone.
	body, err = decodeBody([]byte("게임"), "euc-kr")
	require.NoError(t, err)
	require.Equal(t, "게임", string(body))

	_, err = decodeBody([]byte{0xff, 0xfe, 0xfd}, "no-such-charset")
	require.Error(t, err)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	req := ingest.FetchRequest{
		URL:     "https://www.gamejob.co.kr/List_GI/GIB_List.asp",
		Headers: http.Header{"Referer": {"https://www.gamejob.co.kr/"}},
	}
	var result ingest.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "https://www.gamejob.co.kr/", collyReq.Headers.Get("Referer"))
	require.Equal(t, defaultAcceptLanguage, collyReq.Headers.Get("Accept-Language"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, req.URL)},
	})
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	var statusErr *ingest.StatusError
	require.True(t, errors.As(fetchErr, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
