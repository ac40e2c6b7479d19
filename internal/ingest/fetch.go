package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// FetchRequest describes one outbound GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// Encoding names the response charset when it is not UTF-8 (for example "euc-kr").
	Encoding string
}

// FetchResponse is the decoded result of a successful fetch.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Attempts   int
	Duration   time.Duration
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
}

// Permanent reports whether the status should not be retried.
func (e *StatusError) Permanent() bool {
	return e.StatusCode > 0 && e.StatusCode < http.StatusInternalServerError
}

// IsTimeout reports whether err was caused by a request timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
