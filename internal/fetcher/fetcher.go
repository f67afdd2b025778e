package fetcher

import (
	"context"
	"fmt"

	"github.com/IshaanNene/NewsHound/internal/types"
)

// Fetcher is the interface for all request fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// Do fetches req and turns any non-2xx status into a *types.FetchError.
func Do(ctx context.Context, f Fetcher, req *types.Request) (*types.Response, error) {
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &types.FetchError{
			URL:        req.URLString(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected HTTP status %d", resp.StatusCode),
			Retryable:  resp.StatusCode >= 500,
		}
	}
	return resp, nil
}

// Get is a convenience wrapper issuing a GET for rawURL on behalf of source.
func Get(ctx context.Context, f Fetcher, source, rawURL string) (*types.Response, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	req.Source = source
	return Do(ctx, f, req)
}
