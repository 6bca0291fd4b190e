// Package dispatcher turns materialized notification batches into outgoing
// email. Delivery is best effort: the records are already durable, so a send
// failure is logged and never propagated back to ingestion.
package dispatcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/racealert/race-alert/internal/alert"
	"github.com/racealert/race-alert/internal/email"
	"github.com/racealert/race-alert/internal/metrics"
)

// Dispatcher delivers the batch of one transition event.
type Dispatcher struct {
	store  alert.Store
	sender *email.Sender
	clock  alert.Clock
	logger *zap.Logger
}

// New builds a Dispatcher.
func New(store alert.Store, sender *email.Sender, clock alert.Clock, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, sender: sender, clock: clock, logger: logger}
}

// Dispatch emails the recipients recorded for the transition and returns how
// many were sent. Recipients come from the event's records only, never from
// a recipient lookup at send time.
func (d *Dispatcher) Dispatch(ctx context.Context, tr alert.Transition) int {
	if tr.NotificationsCreated == 0 {
		return 0
	}

	race, err := d.store.Race(ctx, tr.RaceID)
	if err != nil {
		d.logger.Error("dispatch: load race",
			zap.String("race_id", tr.RaceID.String()),
			zap.Error(err))
		return 0
	}

	records, err := d.store.NotificationsForTransition(ctx, tr.EventID)
	if err != nil {
		d.logger.Error("dispatch: load batch",
			zap.String("event_id", tr.EventID.String()),
			zap.Error(err))
		return 0
	}
	if len(records) == 0 {
		return 0
	}

	recipients := make([]string, 0, len(records))
	for _, rec := range records {
		recipients = append(recipients, rec.RecipientEmail)
	}

	if err := d.sender.SendRegistrationOpen(ctx, race, recipients); err != nil {
		d.logger.Error("dispatch: send failed",
			zap.String("race", race.Name),
			zap.Int("recipients", len(recipients)),
			zap.Error(err))
		metrics.ObserveEmail(false)
		return 0
	}
	metrics.ObserveEmail(true)

	if err := d.store.MarkDispatched(ctx, tr.EventID, d.clock.Now()); err != nil {
		// Records stay unmarked; delivery already happened.
		d.logger.Warn("dispatch: mark sent failed",
			zap.String("event_id", tr.EventID.String()),
			zap.Error(err))
	}

	d.logger.Info("dispatched registration alerts",
		zap.String("race", race.Name),
		zap.Int("sent", len(recipients)))
	return len(recipients)
}
