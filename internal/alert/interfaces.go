package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists races, subscribers, subscriptions and notification records.
// IngestTransition is the single synchronization point of the pipeline: it
// must serialize per race so that at most one concurrent call observes a
// qualifying transition.
type Store interface {
	// ListRaces returns every configured race.
	ListRaces(ctx context.Context) ([]Race, error)

	// Race returns a single race by id, or ErrRaceNotFound.
	Race(ctx context.Context, id uuid.UUID) (Race, error)

	// IngestTransition atomically compares newStatus to the persisted status,
	// materializes a notification batch iff the race transitions into open
	// from a non-open status, and updates current_status/last_scraped_at.
	IngestTransition(ctx context.Context, raceID uuid.UUID, newStatus Status, at time.Time) (Transition, error)

	// NotificationsForTransition returns the records created by one
	// transition event. Recipients are never derived from a time window.
	NotificationsForTransition(ctx context.Context, eventID uuid.UUID) ([]NotificationRecord, error)

	// MarkDispatched stamps sent_at on every unsent record of the event.
	MarkDispatched(ctx context.Context, eventID uuid.UUID, at time.Time) error

	// UpsertSubscriber creates or reactivates a subscriber by lower-cased email.
	UpsertSubscriber(ctx context.Context, email, timezone string) (Subscriber, error)

	// SubscribeAll subscribes the subscriber to every race and returns the
	// race count.
	SubscribeAll(ctx context.Context, subscriberID uuid.UUID) (int, error)

	// UnsubscribeAll marks the subscriber unsubscribed and deactivates all
	// of its subscriptions. Returns true when the subscriber was already
	// unsubscribed. Returns ErrSubscriberNotFound for unknown emails.
	UnsubscribeAll(ctx context.Context, email string) (bool, error)

	// Close releases the underlying resources.
	Close()
}

// Fetcher retrieves the rendered, visible text of a URL.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Submitter forwards an open scrape result to the ingestion endpoint.
type Submitter interface {
	Submit(ctx context.Context, result ScrapeResult) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces transition event IDs.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
