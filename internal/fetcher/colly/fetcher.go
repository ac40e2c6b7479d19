// Package collyfetcher implements ingest.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
	"github.com/JakeFAU/gamejobs-crawler/internal/metrics"
)

// DefaultUserAgent mimics a desktop Chrome browser; several boards serve empty lists to bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	defaultTimeout        = 10 * time.Second
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7"
	defaultAcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

// Config controls collector and retry behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	// TimeoutExtension is added to the request timeout after every attempt that timed out.
	TimeoutExtension time.Duration
	MaxRetries       int
	BackoffInitial   time.Duration
}

// Fetcher implements ingest.Fetcher using the Colly collector.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	retry     ingest.RetryPolicy
	pause     func(ctx context.Context, d time.Duration) error
	logger    *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = defaultAcceptLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
		retry:     ingest.NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial),
		pause:     pause,
		logger:    logger,
	}
}

// Fetch executes a GET, retrying transient failures with exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, request ingest.FetchRequest) (ingest.FetchResponse, error) {
	start := time.Now()
	timeout := f.cfg.Timeout
	retries := 0
	for {
		result, err := f.attempt(ctx, request, timeout)
		if err == nil {
			result.Attempts = retries + 1
			result.Duration = time.Since(start)
			metrics.ObserveFetch(request.URL, "ok", retries, result.Duration)
			return result, nil
		}
		if ctx.Err() != nil {
			metrics.ObserveFetch(request.URL, "canceled", retries, time.Since(start))
			return ingest.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, ctx.Err())
		}
		if !f.retry.ShouldRetry(err, retries) {
			metrics.ObserveFetch(request.URL, "error", retries, time.Since(start))
			return ingest.FetchResponse{}, fmt.Errorf("fetch %s after %d attempt(s): %w", request.URL, retries+1, err)
		}

		wait := f.retry.Backoff(retries)
		if ingest.IsTimeout(err) {
			timeout += f.cfg.TimeoutExtension
		}
		retries++
		f.logger.Warn("Retrying fetch",
			zap.String("url", request.URL),
			zap.Int("retry", retries),
			zap.Duration("backoff", wait),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		if err := f.pause(ctx, wait); err != nil {
			return ingest.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, err)
		}
	}
}

func (f *Fetcher) attempt(ctx context.Context, request ingest.FetchRequest, timeout time.Duration) (ingest.FetchResponse, error) {
	var (
		result   ingest.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(ctx, request, timeout, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return ingest.FetchResponse{}, err
	}
	if result.StatusCode == 0 {
		return ingest.FetchResponse{}, errNoResponse
	}
	body, err := decodeBody(result.Body, request.Encoding)
	if err != nil {
		return ingest.FetchResponse{}, fmt.Errorf("decode %s body: %w", request.Encoding, err)
	}
	result.Body = body
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	request ingest.FetchRequest,
	timeout time.Duration,
	result *ingest.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	// Clones share one http.Client, and the timeout differs per attempt, so every
	// attempt gets its own collector over the shared transport. Retries revisit
	// the same URL.
	collector := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	collector.UserAgent = f.cfg.UserAgent
	collector.Context = ctx
	collector.SetRequestTimeout(timeout)
	baseTransport := f.transport
	if baseTransport == nil {
		baseTransport = newHTTPTransport()
	}
	collector.WithTransport(baseTransport)

	f.configureCollectorHooks(collector, request, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request ingest.FetchRequest,
	result *ingest.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.applyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = ingest.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			*fetchErr = &ingest.StatusError{URL: request.URL, StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) applyHeaders(request ingest.FetchRequest, r *colly.Request) {
	r.Headers.Set("Accept", defaultAccept)
	r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	for key, values := range request.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// decodeBody converts body from the named charset to UTF-8. Colly already
// converts responses whose Content-Type names a charset, so bodies that are
// valid UTF-8 are returned untouched.
func decodeBody(body []byte, name string) ([]byte, error) {
	if name == "" || len(body) == 0 || utf8.Valid(body) {
		return body, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding: %w", err)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	return decoded, nil
}

func pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ ingest.Fetcher = (*Fetcher)(nil)

var errNoResponse = errors.New("no response captured")
