package shared

import (
	"net/http"
	"time"
)

// DefaultUserAgent identifies the aggregator on outbound requests.
const DefaultUserAgent = "BountyPing/1.0 (Bug Bounty Aggregator)"

// NewScrapingClient creates an HTTP client tuned for polling third-party
// program directories: bounded total timeout, connection pooling, and
// keep-alives enabled for paginated fetches against the same host.
func NewScrapingClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,

			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// SetBrowserLikeHeaders configures request headers so directory endpoints
// that gate on browser traffic respond normally.
func SetBrowserLikeHeaders(request *http.Request, acceptHeader string) {
	request.Header.Set("User-Agent", DefaultUserAgent)
	request.Header.Set("Accept", acceptHeader)
	request.Header.Set("Accept-Language", "en-US,en;q=0.9")
	request.Header.Set("Cache-Control", "no-cache")
}
