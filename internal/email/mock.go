package email

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MockProvider logs emails instead of sending them. Used for local
// development and in tests to inspect what would have been sent.
type MockProvider struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []MockMessage
}

// MockMessage is one captured email.
type MockMessage struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// NewMockProvider builds a MockProvider.
func NewMockProvider(logger *zap.Logger) *MockProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockProvider{logger: logger}
}

// Send records the message and logs it.
func (m *MockProvider) Send(_ context.Context, to []string, subject, htmlBody, textBody string) error {
	m.mu.Lock()
	m.sent = append(m.sent, MockMessage{To: to, Subject: subject, HTML: htmlBody, Text: textBody})
	m.mu.Unlock()

	m.logger.Info("mock email",
		zap.Strings("to", to),
		zap.String("subject", subject))
	return nil
}

// Sent returns a copy of all captured messages.
func (m *MockProvider) Sent() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
