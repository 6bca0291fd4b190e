// Package static implements a plain HTTP page fetcher using Colly. It is the
// cheap probe in front of the headless browser.
package static

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher retrieves raw HTML with a single synchronous GET.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	return &Fetcher{cfg: cfg, base: c}
}

// FetchHTML executes a single GET and returns the response body.
func (f *Fetcher) FetchHTML(ctx context.Context, url string) ([]byte, error) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body       []byte
		statusCode int
		fetchErr   error
	)
	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	if err := runCollector(ctx, collector, url); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("get %s: %w", url, fetchErr)
	}
	if statusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("get %s: status %d", url, statusCode)
	}
	return body, nil
}

// runCollector bounds the Colly visit with the caller's context, since Colly
// itself does not accept one.
func runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		if err := collector.Visit(url); err != nil {
			done <- fmt.Errorf("visit %s: %w", url, err)
			return
		}
		collector.Wait()
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("static fetch canceled: %w", ctx.Err())
	}
}
