// Package fetcher retrieves the rendered text of race registration pages.
// It probes with a plain HTTP fetch first and escalates to a headless
// browser when the page needs JavaScript to show its registration state.
package fetcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/racealert/race-alert/internal/alert"
)

// PageFetcher retrieves the raw HTML of a URL.
type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) ([]byte, error)
}

// Waiter gates a fetch until the target host may be contacted again.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Client implements alert.Fetcher by combining a static probe, a JS-need
// detector and a headless browser fallback under one per-page deadline.
type Client struct {
	probe    PageFetcher
	headless PageFetcher
	detector *Detector
	limiter  Waiter
	timeout  time.Duration
	logger   *zap.Logger
}

// NewClient builds a Client. probe may be nil to force headless rendering
// for every page; headless is required.
func NewClient(probe, headless PageFetcher, detector *Detector, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		probe:    probe,
		headless: headless,
		detector: detector,
		timeout:  timeout,
		logger:   logger,
	}
}

// WithLimiter makes every fetch wait for the host's rate limit first.
func (c *Client) WithLimiter(limiter Waiter) *Client {
	c.limiter = limiter
	return c
}

// FetchText returns the visible body text of the page. A hung page cannot
// stall the caller: the whole fetch runs under a fixed deadline. All
// failures come back as *alert.FetchError.
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return "", &alert.FetchError{URL: url, Err: err}
		}
	}

	if c.probe != nil {
		html, err := c.probe.FetchHTML(ctx, url)
		switch {
		case err != nil:
			c.logger.Debug("static probe failed, escalating to headless",
				zap.String("url", url), zap.Error(err))
		case c.detector.NeedsJS(html):
			c.logger.Debug("page needs JS rendering", zap.String("url", url))
		default:
			return c.extract(url, html)
		}
	}

	html, err := c.headless.FetchHTML(ctx, url)
	if err != nil {
		return "", &alert.FetchError{URL: url, Err: err}
	}
	return c.extract(url, html)
}

func (c *Client) extract(url string, html []byte) (string, error) {
	text, err := ExtractText(html)
	if err != nil {
		return "", &alert.FetchError{URL: url, Err: err}
	}
	return text, nil
}
