// Package email sends registration alerts through a pluggable provider.
package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/racealert/race-alert/internal/alert"
)

// Provider is a transport for outgoing email.
type Provider interface {
	// Send delivers one email to all recipients. Providers accept the
	// recipient list as a single batch.
	Send(ctx context.Context, to []string, subject, htmlBody, textBody string) error
}

// Sender renders notification emails and hands them to a provider.
type Sender struct {
	provider Provider
	baseURL  string
	logger   *zap.Logger
}

// NewSender builds a Sender. baseURL is used for unsubscribe links.
func NewSender(provider Provider, baseURL string, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{provider: provider, baseURL: baseURL, logger: logger}
}

// SendRegistrationOpen emails every recipient of one transition batch.
func (s *Sender) SendRegistrationOpen(ctx context.Context, race alert.Race, recipients []string) error {
	if len(recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("%s registration is OPEN", race.Name)
	html, text, err := renderRegistrationOpen(race, s.baseURL)
	if err != nil {
		return fmt.Errorf("render registration email: %w", err)
	}

	s.logger.Info("sending registration alert",
		zap.String("race", race.Name),
		zap.Int("recipients", len(recipients)))
	return s.provider.Send(ctx, recipients, subject, html, text)
}

// SendWelcome confirms a new subscription.
func (s *Sender) SendWelcome(ctx context.Context, to string, raceCount int) error {
	html, text, err := renderWelcome(raceCount, s.baseURL)
	if err != nil {
		return fmt.Errorf("render welcome email: %w", err)
	}

	s.logger.Info("sending welcome email", zap.String("to", to))
	return s.provider.Send(ctx, []string{to}, "You're subscribed to race alerts", html, text)
}
