package tmdb

import (
	"errors"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultRetryMax = 2
	defaultBackoff  = 250 * time.Millisecond
)

// Transport retries replayable requests on network errors, 429 and 5xx.
type Transport struct {
	Base http.RoundTripper

	// RetryMax excludes the first attempt: 2 means at most 3 requests.
	RetryMax int
	Backoff  time.Duration
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) &&
		(req.Body == nil || req.Body == http.NoBody)
	maxRetries := max(t.RetryMax, 0)
	if !canRetry {
		maxRetries = 0
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = base.RoundTrip(req.Clone(req.Context()))
		if attempt >= maxRetries || !retryable(resp, err) {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		if !t.wait(req, attempt) {
			if err == nil {
				err = req.Context().Err()
			}
			return nil, err
		}
	}
}

func (t *Transport) wait(req *http.Request, attempt int) bool {
	timer := time.NewTimer(t.Backoff * time.Duration(attempt+1))
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return false
	case <-timer.C:
		return true
	}
}

func retryable(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// NewHTTPClient returns a client with bounded retries and an overall timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &Transport{
			Base:     http.DefaultTransport,
			RetryMax: defaultRetryMax,
			Backoff:  defaultBackoff,
		},
		Timeout: defaultTimeout,
	}
}
