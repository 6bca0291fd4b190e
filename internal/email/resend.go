package email

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
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendProvider sends email through the Resend HTTP API.
type ResendProvider struct {
	apiKey   string
	fromAddr string
	fromName string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewResendProvider builds a ResendProvider.
func NewResendProvider(apiKey, fromAddr, fromName string, logger *zap.Logger) *ResendProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResendProvider{
		apiKey:   apiKey,
		fromAddr: fromAddr,
		fromName: fromName,
		endpoint: resendEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

type resendSendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// Send delivers one email, retrying transient API failures.
func (p *ResendProvider) Send(ctx context.Context, to []string, subject, htmlBody, textBody string) error {
	from := p.fromAddr
	if p.fromName != "" {
		from = fmt.Sprintf("%s <%s>", p.fromName, p.fromAddr)
	}

	body, err := json.Marshal(resendSendRequest{
		From:    from,
		To:      to,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	return retry.Do(
		func() error { return p.post(ctx, body) },
		retry.Attempts(4),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("resend API retry",
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
}

func (p *ResendProvider) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("build send request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post resend API: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("resend API returned %d", resp.StatusCode)
	default:
		return retry.Unrecoverable(fmt.Errorf("resend API rejected request: %d", resp.StatusCode))
	}
}
