package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"social-graph-crawler/internal/models"
	"social-graph-crawler/internal/ratelimit"
)

// DefaultUserAgent identifies the crawler to external sources.
const DefaultUserAgent = "social-graph-crawler/1.0"

// HTTP timeouts so a single hung request doesn't hold a worker slot indefinitely.
const (
	fetchConnectTimeout = 10 * time.Second
	fetchTotalTimeout   = 30 * time.Second
)

// Client is the shared rate-limited HTTP fetcher behind every adapter.
// A 404 maps to ErrEntityNotFound; 429/5xx and network errors are retried
// with doubling delay up to RetryMax attempts, then surface as
// ErrSourceUnavailable.
type Client struct {
	httpClient    *http.Client
	limiter       *ratelimit.Limiter
	userAgent     string
	retryMax      int
	retryBase     time.Duration
	retryMaxDelay time.Duration
}

// ClientConfig tunes the shared fetcher.
type ClientConfig struct {
	HTTPClient    *http.Client
	Limiter       *ratelimit.Limiter
	UserAgent     string
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// NewClient builds a fetcher; zero config fields get defaults.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: fetchTotalTimeout}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(ratelimit.Config{})
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 2 * time.Second
	}
	return &Client{
		httpClient:    cfg.HTTPClient,
		limiter:       cfg.Limiter,
		userAgent:     cfg.UserAgent,
		retryMax:      cfg.RetryMax,
		retryBase:     cfg.RetryBase,
		retryMaxDelay: cfg.RetryMaxDelay,
	}
}

// FetchJSON retrieves the raw JSON body for a source URL, acquiring a
// rate-limit token before each attempt.
func (c *Client) FetchJSON(ctx context.Context, src models.Source, url string, headers map[string]string) ([]byte, error) {
	delay := c.retryBase
	attempts := 0
	for {
		body, retryable, err := c.fetchOnce(ctx, src, url, headers)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}

		attempts++
		if attempts > c.retryMax {
			return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrSourceUnavailable, url, attempts, err)
		}
		if delay > c.retryMaxDelay {
			delay = c.retryMaxDelay
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

// fetchOnce performs one rate-limited GET. The second return value reports
// whether the failure is transient.
func (c *Client) fetchOnce(ctx context.Context, src models.Source, url string, headers map[string]string) ([]byte, bool, error) {
	if err := c.limiter.Acquire(ctx, src); err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	observeFetchLatency(time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: %s", ErrEntityNotFound, url)
	case resp.StatusCode == http.StatusTooManyRequests:
		observeRateLimitHit()
		return nil, true, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, false, fmt.Errorf("%w: unexpected status %d for %s", ErrEntityNotFound, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return body, false, nil
}
