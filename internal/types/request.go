package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Request is one outbound call made while polling a source.
type Request struct {
	URL     *url.URL
	Method  string
	Headers http.Header
	Body    []byte

	// Timeout overrides the fetcher's per-call timeout when set.
	Timeout time.Duration

	// Source names the source the call is made for, for logging.
	Source string

	// WaitFor is a CSS selector a rendering fetcher waits on before
	// snapshotting the page. Plain HTTP fetchers ignore it.
	WaitFor string
}

// NewRequest builds a GET request. Only http and https URLs are accepted.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: unsupported scheme", ErrInvalidURL, rawURL)
	}
	return &Request{URL: u, Method: http.MethodGet, Headers: make(http.Header)}, nil
}

// NewJSONRequest builds a POST carrying a JSON body.
func NewJSONRequest(rawURL string, body []byte) (*Request, error) {
	req, err := NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	req.Method = http.MethodPost
	req.Body = body
	req.Headers.Set("Content-Type", "application/json")
	req.Headers.Set("Accept", "application/json")
	return req, nil
}

// URLString returns the request URL, or "" when unset.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}
