// Package healthhttp implements the HealthFetcher port over plain HTTP.
package healthhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HealthFetcher = (*Client)(nil)

const (
	userAgent = "Dependencies-Dashboard/1.0"

	// maxBodyBytes caps a health payload read; endpoints reporting more
	// than this are misbehaving.
	maxBodyBytes = 5 << 20
)

// Client fetches health-endpoint payloads. Responses are never cached:
// every poll observes the endpoint fresh. Redirect targets are re-validated
// through the injected URL validator so a redirect cannot escape the SSRF
// policy the caller enforced on the original URL.
type Client struct {
	http *http.Client
}

// NewClient creates a Client with the given per-request timeout ceiling.
// validateURL may be nil to accept all redirect targets.
func NewClient(timeout time.Duration, validateURL func(string) error) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				if validateURL != nil {
					if err := validateURL(req.URL.String()); err != nil {
						return fmt.Errorf("redirect target blocked: %w", err)
					}
				}
				return nil
			},
		},
	}
}

// Fetch GETs the URL and returns the body. Non-2xx responses are errors
// carrying only the status code.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
