package types

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Response is what a fetcher hands back for a Request.
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string

	// FinalURL is the URL after redirects, used to resolve relative links.
	FinalURL string
	Duration time.Duration

	doc *goquery.Document
}

// NewResponse assembles a Response. finalURL falls back to the request URL.
func NewResponse(req *Request, status int, contentType string, body []byte, finalURL string, d time.Duration) *Response {
	if finalURL == "" {
		finalURL = req.URLString()
	}
	return &Response{
		StatusCode:  status,
		Body:        body,
		ContentType: contentType,
		FinalURL:    finalURL,
		Duration:    d,
	}
}

// Document parses the body as HTML once and caches the result.
func (r *Response) Document() (*goquery.Document, error) {
	if r.doc != nil {
		return r.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return nil, &ParseError{URL: r.FinalURL, Err: err}
	}
	r.doc = doc
	return doc, nil
}

// DecodeJSON unmarshals the body into v. An empty body yields ErrEmptyResponse.
func (r *Response) DecodeJSON(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return &ParseError{URL: r.FinalURL, Err: ErrEmptyResponse}
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &ParseError{URL: r.FinalURL, Err: err}
	}
	return nil
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
