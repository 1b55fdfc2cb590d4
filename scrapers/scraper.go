// Package scrapers contains the source adapter contract and one adapter per
// supported bug-bounty platform. Each adapter owns its wire protocol and its
// normalization rules; the ingestion engine treats them all uniformly.
package scrapers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonnylitten/bountyping/models"
	"github.com/jonnylitten/bountyping/shared"
)

// Scraper is implemented by each platform integration. FetchPrograms returns
// fully normalized records; a transport or whole-payload parse failure is
// reported as a *SourceFetchError, while individual malformed entries are
// skipped inside the adapter and never abort the fetch.
type Scraper interface {
	PlatformName() string
	FetchPrograms(ctx context.Context) ([]models.Program, error)
}

// SourceFetchError covers a failure of an entire adapter invocation:
// network errors, non-2xx responses, or an unparseable payload.
type SourceFetchError struct {
	Platform string
	Err      error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.Platform, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

// Options configure the shared fetch behavior of all adapters.
type Options struct {
	// BaseURL overrides the adapter's production endpoint, mainly for tests
	// and mirrors.
	BaseURL string
	// RequestDelay is the minimum delay before each outbound request.
	RequestDelay time.Duration
	// Timeout bounds each outbound request.
	Timeout time.Duration
}

// fetcher bundles the HTTP client and rate limiter every adapter uses.
type fetcher struct {
	platform    string
	client      *http.Client
	rateLimiter *shared.RequestRateLimiter
}

func newFetcher(platform string, opts Options) fetcher {
	return fetcher{
		platform:    platform,
		client:      shared.NewScrapingClient(opts.Timeout),
		rateLimiter: shared.NewRequestRateLimiter(opts.RequestDelay),
	}
}

// do executes a request with the politeness delay applied and the response
// body fully read. Any failure, including a non-2xx status, is wrapped as a
// *SourceFetchError for the calling adapter's platform.
func (f *fetcher) do(ctx context.Context, request *http.Request) ([]byte, error) {
	f.rateLimiter.Wait()

	response, err := f.client.Do(request.WithContext(ctx))
	if err != nil {
		return nil, &SourceFetchError{Platform: f.platform, Err: err}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &SourceFetchError{Platform: f.platform, Err: err}
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &SourceFetchError{
			Platform: f.platform,
			Err:      fmt.Errorf("unexpected status %s", response.Status),
		}
	}

	return body, nil
}

// getJSON fetches url with JSON accept headers.
func (f *fetcher) getJSON(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, &SourceFetchError{Platform: f.platform, Err: err}
	}
	shared.SetBrowserLikeHeaders(request, "application/json, text/plain, */*")
	return f.do(ctx, request)
}
