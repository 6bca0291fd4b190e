// Package memory provides an in-process alert.Store. It backs local
// development runs without Postgres and gives tests a store with real
// mutual exclusion semantics.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/racealert/race-alert/internal/alert"
)

// Store keeps all state behind one mutex. The mutex plays the role the
// row lock plays in Postgres: concurrent ingestion calls for the same
// race serialize, so at most one observes the qualifying transition.
type Store struct {
	mu  sync.Mutex
	ids alert.IDGenerator

	races         map[uuid.UUID]*alert.Race
	subscribers   map[uuid.UUID]*alert.Subscriber
	subscriptions map[uuid.UUID]*alert.Subscription
	notifications []alert.NotificationRecord
}

// New builds an empty store.
func New(ids alert.IDGenerator) *Store {
	return &Store{
		ids:           ids,
		races:         make(map[uuid.UUID]*alert.Race),
		subscribers:   make(map[uuid.UUID]*alert.Subscriber),
		subscriptions: make(map[uuid.UUID]*alert.Subscription),
	}
}

// SeedRaces loads races into the store, replacing any with the same id.
func (s *Store) SeedRaces(races []alert.Race) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range races {
		r := races[i]
		s.races[r.ID] = &r
	}
}

// Close implements alert.Store. Nothing to release.
func (s *Store) Close() {}

// ListRaces returns all races sorted by name.
func (s *Store) ListRaces(_ context.Context) ([]alert.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	races := make([]alert.Race, 0, len(s.races))
	for _, r := range s.races {
		races = append(races, *r)
	}
	sort.Slice(races, func(i, j int) bool { return races[i].Name < races[j].Name })
	return races, nil
}

// Race returns a race by id.
func (s *Store) Race(_ context.Context, id uuid.UUID) (alert.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.races[id]
	if !ok {
		return alert.Race{}, alert.ErrRaceNotFound
	}
	return *r, nil
}

// IngestTransition applies the transition gate under the store mutex.
func (s *Store) IngestTransition(
	_ context.Context,
	raceID uuid.UUID,
	newStatus alert.Status,
	at time.Time,
) (alert.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	race, ok := s.races[raceID]
	if !ok {
		return alert.Transition{}, alert.ErrRaceNotFound
	}

	tr := alert.Transition{
		RaceID:     raceID,
		From:       race.CurrentStatus,
		To:         newStatus,
		OccurredAt: at,
	}

	if newStatus == alert.StatusOpen && race.CurrentStatus != alert.StatusOpen {
		eventID, err := s.ids.NewRawID()
		if err != nil {
			return alert.Transition{}, &alert.StoreError{Op: "event id", Err: err}
		}
		tr.EventID = eventID
		for _, email := range s.activeRecipientsLocked(raceID) {
			id, err := s.ids.NewRawID()
			if err != nil {
				return alert.Transition{}, &alert.StoreError{Op: "notification id", Err: err}
			}
			s.notifications = append(s.notifications, alert.NotificationRecord{
				ID:                id,
				RaceID:            raceID,
				TransitionEventID: eventID,
				RecipientEmail:    email,
				CreatedAt:         at,
			})
			tr.NotificationsCreated++
		}
	}

	race.CurrentStatus = newStatus
	ts := at
	race.LastScrapedAt = &ts
	return tr, nil
}

func (s *Store) activeRecipientsLocked(raceID uuid.UUID) []string {
	var emails []string
	for _, sub := range s.subscriptions {
		if sub.RaceID != raceID || !sub.IsActive {
			continue
		}
		owner, ok := s.subscribers[sub.SubscriberID]
		if !ok || owner.Status != alert.SubscriberActive {
			continue
		}
		emails = append(emails, owner.Email)
	}
	sort.Strings(emails)
	return emails
}

// NotificationsForTransition returns the batch for one transition event.
func (s *Store) NotificationsForTransition(
	_ context.Context,
	eventID uuid.UUID,
) ([]alert.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []alert.NotificationRecord
	for _, rec := range s.notifications {
		if rec.TransitionEventID == eventID {
			records = append(records, rec)
		}
	}
	return records, nil
}

// MarkDispatched stamps sent_at on unsent records of the event.
func (s *Store) MarkDispatched(_ context.Context, eventID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		rec := &s.notifications[i]
		if rec.TransitionEventID == eventID && rec.SentAt == nil {
			ts := at
			rec.SentAt = &ts
		}
	}
	return nil
}

// UpsertSubscriber creates or reactivates a subscriber keyed by email.
func (s *Store) UpsertSubscriber(_ context.Context, email, timezone string) (alert.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	for _, sub := range s.subscribers {
		if sub.Email == email {
			sub.Status = alert.SubscriberActive
			sub.Timezone = timezone
			return *sub, nil
		}
	}

	id, err := s.ids.NewRawID()
	if err != nil {
		return alert.Subscriber{}, &alert.StoreError{Op: "subscriber id", Err: err}
	}
	sub := &alert.Subscriber{
		ID:       id,
		Email:    email,
		Status:   alert.SubscriberActive,
		Timezone: timezone,
	}
	s.subscribers[id] = sub
	return *sub, nil
}

// SubscribeAll subscribes the subscriber to every race, reactivating
// existing subscriptions.
func (s *Store) SubscribeAll(_ context.Context, subscriberID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[subscriberID]; !ok {
		return 0, alert.ErrSubscriberNotFound
	}

	count := 0
	for raceID := range s.races {
		existing := s.subscriptionLocked(subscriberID, raceID)
		if existing != nil {
			existing.IsActive = true
			count++
			continue
		}
		id, err := s.ids.NewRawID()
		if err != nil {
			return 0, &alert.StoreError{Op: "subscription id", Err: err}
		}
		s.subscriptions[id] = &alert.Subscription{
			ID:           id,
			SubscriberID: subscriberID,
			RaceID:       raceID,
			IsActive:     true,
		}
		count++
	}
	return count, nil
}

func (s *Store) subscriptionLocked(subscriberID, raceID uuid.UUID) *alert.Subscription {
	for _, sub := range s.subscriptions {
		if sub.SubscriberID == subscriberID && sub.RaceID == raceID {
			return sub
		}
	}
	return nil
}

// UnsubscribeAll marks the subscriber unsubscribed and deactivates its
// subscriptions. Records are kept, never deleted.
func (s *Store) UnsubscribeAll(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	var target *alert.Subscriber
	for _, sub := range s.subscribers {
		if sub.Email == email {
			target = sub
			break
		}
	}
	if target == nil {
		return false, alert.ErrSubscriberNotFound
	}
	if target.Status == alert.SubscriberUnsubscribed {
		return true, nil
	}

	target.Status = alert.SubscriberUnsubscribed
	for _, sub := range s.subscriptions {
		if sub.SubscriberID == target.ID {
			sub.IsActive = false
		}
	}
	return false, nil
}
