// Package ingest forwards scrape observations to the webhook endpoint.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"

	"github.com/racealert/race-alert/internal/alert"
)

// Config for the webhook client.
type Config struct {
	// URL is the full webhook endpoint, e.g. http://localhost:8080/api/webhook.
	URL string
	// Secret is sent as a bearer token.
	Secret string
	// MaxRetries bounds delivery attempts per observation.
	MaxRetries uint
}

// Client submits scrape results over HTTP. Retries with backoff on network
// errors and 5xx; 4xx responses are not retried.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}, nil
}

// Submit posts one observation, retrying transient failures.
func (c *Client) Submit(ctx context.Context, result alert.ScrapeResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal scrape result: %w", err)
	}

	return retry.Do(
		func() error { return c.post(ctx, body) },
		retry.Attempts(c.cfg.MaxRetries),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("webhook submit retry",
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	default:
		return retry.Unrecoverable(fmt.Errorf("webhook rejected request: %d", resp.StatusCode))
	}
}
