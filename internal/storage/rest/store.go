// Package rest talks to a PostgREST (Supabase) table endpoint.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

const (
	defaultTimeout  = 30 * time.Second
	listPageSize    = 1000
	maxErrorBodyLen = 512
)

// ErrMissingCredentials is returned when the endpoint or key is empty.
var ErrMissingCredentials = errors.New("rest store requires url and key")

// Config describes the table endpoint. URL is the full table URL, for example
// https://xyz.supabase.co/rest/v1/jobs.
type Config struct {
	URL        string
	Key        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// StatusError reports a non-2xx response from the store.
type StatusError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store %s: status %d: %s", e.Method, e.StatusCode, e.Body)
}

// Store implements ingest.Store over HTTP.
type Store struct {
	endpoint *url.URL
	key      string
	client   *http.Client
}

var _ ingest.Store = (*Store)(nil)

// New validates cfg and returns a Store.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.Key) == "" {
		return nil, ErrMissingCredentials
	}
	endpoint, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid store url %q", cfg.URL)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Store{endpoint: endpoint, key: cfg.Key, client: client}, nil
}

type linkRow struct {
	Link string `json:"link"`
}

// ExistingLinks reads the first limit links.
func (s *Store) ExistingLinks(ctx context.Context, limit int) ([]string, error) {
	body, err := s.do(ctx, http.MethodGet, url.Values{"select": {"link"}}, nil, rangeHeader(0, limit))
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[linkRow](body)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Link != "" {
			links = append(links, r.Link)
		}
	}
	return links, nil
}

// Upsert posts the batch with merge-duplicates resolution on link. Rows that
// are already stored inactive stay inactive.
func (s *Store) Upsert(ctx context.Context, postings []ingest.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	inactive, err := s.inactiveLinks(ctx, postings)
	if err != nil {
		return err
	}
	batch := make([]ingest.Posting, len(postings))
	for i, p := range postings {
		p.Tags = ingest.NormalizeTags(p.Tags)
		if _, ok := inactive[p.Link]; ok {
			p.IsActive = false
		}
		batch[i] = p
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal postings: %w", err)
	}
	headers := http.Header{}
	headers.Set("Prefer", "resolution=merge-duplicates,return=minimal")
	_, err = s.do(ctx, http.MethodPost, url.Values{"on_conflict": {"link"}}, payload, headers)
	return err
}

// inactiveLinks returns the links in postings that would be sent as active
// but are stored inactive.
func (s *Store) inactiveLinks(ctx context.Context, postings []ingest.Posting) (map[string]struct{}, error) {
	quoted := make([]string, 0, len(postings))
	for _, p := range postings {
		if p.IsActive && p.Link != "" {
			quoted = append(quoted, quoteFilterValue(p.Link))
		}
	}
	if len(quoted) == 0 {
		return nil, nil
	}
	query := url.Values{
		"select":    {"link"},
		"is_active": {"eq.false"},
		"link":      {"in.(" + strings.Join(quoted, ",") + ")"},
	}
	body, err := s.do(ctx, http.MethodGet, query, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup inactive links: %w", err)
	}
	rows, err := decodeRows[linkRow](body)
	if err != nil {
		return nil, fmt.Errorf("lookup inactive links: %w", err)
	}
	out := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		out[r.Link] = struct{}{}
	}
	return out, nil
}

// quoteFilterValue wraps v in double quotes so commas and parentheses in
// links survive the in.(...) filter.
func quoteFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// DeactivateExpired patches active postings whose deadline is before today.
func (s *Store) DeactivateExpired(ctx context.Context, today ingest.Date) (int, error) {
	query := url.Values{
		"deadline":  {"lt." + today.String()},
		"is_active": {"eq.true"},
		"select":    {"link"},
	}
	headers := http.Header{}
	headers.Set("Prefer", "return=representation")
	body, err := s.do(ctx, http.MethodPatch, query, []byte(`{"is_active":false}`), headers)
	if err != nil {
		return 0, err
	}
	rows, err := decodeRows[linkRow](body)
	return len(rows), err
}

// PurgeInactive deletes inactive postings whose deadline is before cutoff.
func (s *Store) PurgeInactive(ctx context.Context, cutoff ingest.Date) (int, error) {
	query := url.Values{
		"deadline":  {"lt." + cutoff.String()},
		"is_active": {"eq.false"},
		"select":    {"link"},
	}
	headers := http.Header{}
	headers.Set("Prefer", "return=representation")
	body, err := s.do(ctx, http.MethodDelete, query, nil, headers)
	if err != nil {
		return 0, err
	}
	rows, err := decodeRows[linkRow](body)
	return len(rows), err
}

// ListPostings pages through the whole table.
func (s *Store) ListPostings(ctx context.Context) ([]ingest.Posting, error) {
	var out []ingest.Posting
	for offset := 0; ; offset += listPageSize {
		query := url.Values{"select": {"*"}, "order": {"link.asc"}}
		body, err := s.do(ctx, http.MethodGet, query, nil, rangeHeader(offset, listPageSize))
		if err != nil {
			return nil, err
		}
		rows, err := decodeRows[ingest.Posting](body)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if len(rows) < listPageSize {
			return out, nil
		}
	}
}

func (s *Store) do(ctx context.Context, method string, query url.Values, payload []byte, headers http.Header) ([]byte, error) {
	u := *s.endpoint
	u.RawQuery = query.Encode()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	for k, values := range headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read store response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBodyLen {
			msg = msg[:maxErrorBodyLen]
		}
		return nil, &StatusError{Method: method, StatusCode: resp.StatusCode, Body: msg}
	}
	return body, nil
}

func rangeHeader(offset, limit int) http.Header {
	h := http.Header{}
	if limit <= 0 {
		return h
	}
	h.Set("Range-Unit", "items")
	h.Set("Range", strconv.Itoa(offset)+"-"+strconv.Itoa(offset+limit-1))
	return h
}

// decodeRows is the one place store responses are interpreted. It accepts a
// bare JSON array, an object wrapping the array in "data", or an empty body.
func decodeRows[T any](body []byte) ([]T, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	var rows []T
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode rows: %w", err)
		}
	case '{':
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode rows: %w", err)
		}
		data := bytes.TrimSpace(envelope.Data)
		if len(data) == 0 || bytes.Equal(data, []byte("null")) {
			return nil, nil
		}
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("decode rows: %w", err)
		}
	default:
		return nil, fmt.Errorf("decode rows: unexpected payload %q", truncate(body, 64))
	}
	return rows, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
