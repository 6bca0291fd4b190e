package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/racealert/race-alert/internal/alert"
	uuidgen "github.com/racealert/race-alert/internal/id/uuid"
)

func newSeededStore(t *testing.T, status alert.Status) (*Store, uuid.UUID) {
	t.Helper()

	store := New(uuidgen.New())
	raceID := uuid.MustParse("018f3b2a-0000-7000-8000-000000000001")
	store.SeedRaces([]alert.Race{{
		ID:            raceID,
		Name:          "Boston Marathon",
		URL:           "https://example.com/boston",
		CurrentStatus: status,
	}})
	return store, raceID
}

func subscribe(t *testing.T, store *Store, email string) alert.Subscriber {
	t.Helper()

	sub, err := store.UpsertSubscriber(context.Background(), email, "UTC")
	require.NoError(t, err)
	_, err = store.SubscribeAll(context.Background(), sub.ID)
	require.NoError(t, err)
	return sub
}

func TestIngestTransitionCreatesOneBatch(t *testing.T) {
	t.Parallel()

	store, raceID := newSeededStore(t, alert.StatusClosed)
	subscribe(t, store, "a@example.com")
	subscribe(t, store, "b@example.com")

	at := time.Unix(1700000000, 0).UTC()
	tr, err := store.IngestTransition(context.Background(), raceID, alert.StatusOpen, at)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, tr.EventID)
	require.Equal(t, 2, tr.NotificationsCreated)

	records, err := store.NotificationsForTransition(context.Background(), tr.EventID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	race, err := store.Race(context.Background(), raceID)
	require.NoError(t, err)
	require.Equal(t, alert.StatusOpen, race.CurrentStatus)
	require.NotNil(t, race.LastScrapedAt)
}

func TestConcurrentIngestNotifiesExactlyOnce(t *testing.T) {
	t.Parallel()

	store, raceID := newSeededStore(t, alert.StatusClosed)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		subscribe(t, store, email)
	}

	const workers = 16
	var wg sync.WaitGroup
	transitions := make([]alert.Transition, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			transitions[i], errs[i] = store.IngestTransition(
				context.Background(), raceID, alert.StatusOpen, time.Now().UTC())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// Exactly one call crosses the gate; the rest see open already.
	var winners int
	var eventID uuid.UUID
	for _, tr := range transitions {
		if tr.NotificationsCreated > 0 {
			winners++
			eventID = tr.EventID
		}
	}
	require.Equal(t, 1, winners)

	records, err := store.NotificationsForTransition(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestUnknownToOpenQualifies(t *testing.T) {
	t.Parallel()

	store, raceID := newSeededStore(t, alert.StatusUnknown)
	subscribe(t, store, "a@example.com")

	tr, err := store.IngestTransition(
		context.Background(), raceID, alert.StatusOpen, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, tr.NotificationsCreated)
}

func TestClosingReArmsTheGate(t *testing.T) {
	t.Parallel()

	store, raceID := newSeededStore(t, alert.StatusClosed)
	subscribe(t, store, "a@example.com")
	ctx := context.Background()

	first, err := store.IngestTransition(ctx, raceID, alert.StatusOpen, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, first.NotificationsCreated)

	repeat, err := store.IngestTransition(ctx, raceID, alert.StatusOpen, time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, repeat.NotificationsCreated)

	closed, err := store.IngestTransition(ctx, raceID, alert.StatusClosed, time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, closed.NotificationsCreated)

	second, err := store.IngestTransition(ctx, raceID, alert.StatusOpen, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, second.NotificationsCreated)
	require.NotEqual(t, first.EventID, second.EventID)
}

func TestUnsubscribedRecipientsExcluded(t *testing.T) {
	t.Parallel()

	store, raceID := newSeededStore(t, alert.StatusClosed)
	subscribe(t, store, "keep@example.com")
	subscribe(t, store, "gone@example.com")

	ctx := context.Background()
	already, err := store.UnsubscribeAll(ctx, "gone@example.com")
	require.NoError(t, err)
	require.False(t, already)

	tr, err := store.IngestTransition(ctx, raceID, alert.StatusOpen, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, tr.NotificationsCreated)

	records, err := store.NotificationsForTransition(ctx, tr.EventID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "keep@example.com", records[0].RecipientEmail)
}

func TestResubscribeReactivates(t *testing.T) {
	t.Parallel()

	store, raceID := newSeededStore(t, alert.StatusClosed)
	subscribe(t, store, "runner@example.com")
	ctx := context.Background()

	_, err := store.UnsubscribeAll(ctx, "runner@example.com")
	require.NoError(t, err)

	subscribe(t, store, "runner@example.com")

	tr, err := store.IngestTransition(ctx, raceID, alert.StatusOpen, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, tr.NotificationsCreated)
}

func TestMarkDispatchedStampsUnsentOnly(t *testing.T) {
	t.Parallel()

	store, raceID := newSeededStore(t, alert.StatusClosed)
	subscribe(t, store, "a@example.com")
	ctx := context.Background()

	tr, err := store.IngestTransition(ctx, raceID, alert.StatusOpen, time.Now().UTC())
	require.NoError(t, err)

	first := time.Unix(1700000100, 0).UTC()
	require.NoError(t, store.MarkDispatched(ctx, tr.EventID, first))

	later := time.Unix(1700000999, 0).UTC()
	require.NoError(t, store.MarkDispatched(ctx, tr.EventID, later))

	records, err := store.NotificationsForTransition(ctx, tr.EventID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].SentAt)
	require.Equal(t, first, *records[0].SentAt)
}

func TestUnsubscribeUnknownEmail(t *testing.T) {
	t.Parallel()

	store, _ := newSeededStore(t, alert.StatusClosed)
	_, err := store.UnsubscribeAll(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, alert.ErrSubscriberNotFound)
}
