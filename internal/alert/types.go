// Package alert defines the core types shared across the race-alert pipeline.
package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents a race's registration state.
type Status string

// Registration status values persisted on the race row.
const (
	StatusUnknown Status = "unknown"
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusFull    Status = "full"
)

// ParseStatus validates a wire-format status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusUnknown, StatusOpen, StatusClosed, StatusFull:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// Race is a monitored registration page plus the keyword lists used to
// classify it.
type Race struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	URL            string     `json:"url"`
	OpenKeywords   []string   `json:"open_keywords"`
	ClosedKeywords []string   `json:"closed_keywords"`
	CurrentStatus  Status     `json:"current_status"`
	LastScrapedAt  *time.Time `json:"last_scraped_at,omitempty"`
}

// SubscriberStatus is the lifecycle state of a subscriber.
type SubscriberStatus string

// Subscriber status values.
const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
)

// Subscriber is a user who asked for registration alerts. Email is stored
// lower-cased and is unique.
type Subscriber struct {
	ID       uuid.UUID        `json:"id"`
	Email    string           `json:"email"`
	Status   SubscriberStatus `json:"status"`
	Timezone string           `json:"timezone"`
}

// Subscription links a subscriber to a race. Deactivated, never deleted.
type Subscription struct {
	ID           uuid.UUID `json:"id"`
	SubscriberID uuid.UUID `json:"subscriber_id"`
	RaceID       uuid.UUID `json:"race_id"`
	IsActive     bool      `json:"is_active"`
}

// NotificationRecord is the durable evidence that a notification was decided
// for one recipient during one transition, independent of delivery outcome.
type NotificationRecord struct {
	ID                uuid.UUID  `json:"id"`
	RaceID            uuid.UUID  `json:"race_id"`
	TransitionEventID uuid.UUID  `json:"transition_event_id"`
	RecipientEmail    string     `json:"recipient_email"`
	CreatedAt         time.Time  `json:"created_at"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
}

// Transition is the outcome of one ingestion call. EventID is set only when
// the transition qualified and records were materialized; the dispatcher uses
// it to find exactly the recipients of this batch.
type Transition struct {
	EventID              uuid.UUID `json:"event_id"`
	RaceID               uuid.UUID `json:"race_id"`
	From                 Status    `json:"from"`
	To                   Status    `json:"to"`
	NotificationsCreated int       `json:"notifications_created"`
	OccurredAt           time.Time `json:"occurred_at"`
}

// ScrapeResult is one race's observation from a scrape run.
type ScrapeResult struct {
	RaceID         uuid.UUID `json:"race_id"`
	Status         Status    `json:"status"`
	ScrapedAt      time.Time `json:"scraped_at"`
	ContentSnippet string    `json:"content_snippet,omitempty"`
	Error          string    `json:"error,omitempty"`
}
