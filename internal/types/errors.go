package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout               = errors.New("request timed out")
	ErrDuplicate             = errors.New("duplicate item")
	ErrEmptyResponse         = errors.New("empty response body")
	ErrInvalidURL            = errors.New("invalid URL")
	ErrNotConfigured         = errors.New("source not configured")
	ErrLockContention        = errors.New("lock held by another process")
	ErrStaleLock             = errors.New("stale lock")
	ErrLiveStream            = errors.New("video is a live stream in progress")
	ErrTranscriptUnavailable = errors.New("transcript unavailable")
	ErrMonitorNotFound       = errors.New("monitor not found")
	ErrMonitorRunning        = errors.New("monitor already running")
	ErrMonitorStopped        = errors.New("monitor not running")
)

// FetchError wraps errors that occur during fetching. It is the transport error of
// the taxonomy: the monitor waits for the next poll cycle instead of retrying.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur while decoding a source response.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("parse error for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur in a persistence backend.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RewriteError wraps failures of the generative rewrite service.
type RewriteError struct {
	Provider string
	Err      error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewrite error (%s): %v", e.Provider, e.Err)
}

func (e *RewriteError) Unwrap() error { return e.Err }

// LockError wraps failures acquiring or releasing a lock file.
type LockError struct {
	Path string
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("lock error for %s: %v", e.Path, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

// PipelineError wraps an error raised by one stage of the item pipeline.
type PipelineError struct {
	Stage string
	URL   string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %s for %s: %v", e.Stage, e.URL, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transport failure that the next poll cycle
// is expected to recover from.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return errors.Is(err, ErrTimeout)
}
