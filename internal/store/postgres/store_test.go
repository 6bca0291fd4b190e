package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/racealert/race-alert/internal/alert"
)

type fixedIDs struct {
	id uuid.UUID
}

func (f fixedIDs) NewRawID() (uuid.UUID, error) {
	return f.id, nil
}

func TestIngestTransitionQualifyingCreatesBatch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	raceID := uuid.MustParse("018f3b2a-0000-7000-8000-000000000001")
	eventID := uuid.MustParse("018f3b2a-0000-7000-8000-0000000000ee")
	at := time.Unix(1700000000, 0).UTC()

	store, err := NewWithPool(mock, fixedIDs{id: eventID})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT current_status FROM races").
		WithArgs(raceID).
		WillReturnRows(pgxmock.NewRows([]string{"current_status"}).AddRow(alert.StatusClosed))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(raceID, eventID, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectExec("UPDATE races").
		WithArgs(raceID, alert.StatusOpen, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tr, err := store.IngestTransition(context.Background(), raceID, alert.StatusOpen, at)
	require.NoError(t, err)
	require.Equal(t, eventID, tr.EventID)
	require.Equal(t, alert.StatusClosed, tr.From)
	require.Equal(t, alert.StatusOpen, tr.To)
	require.Equal(t, 3, tr.NotificationsCreated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestTransitionOpenToOpenSkipsBatch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	raceID := uuid.MustParse("018f3b2a-0000-7000-8000-000000000002")
	at := time.Unix(1700000000, 0).UTC()

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT current_status FROM races").
		WithArgs(raceID).
		WillReturnRows(pgxmock.NewRows([]string{"current_status"}).AddRow(alert.StatusOpen))
	mock.ExpectExec("UPDATE races").
		WithArgs(raceID, alert.StatusOpen, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tr, err := store.IngestTransition(context.Background(), raceID, alert.StatusOpen, at)
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, tr.EventID)
	require.Zero(t, tr.NotificationsCreated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestTransitionCloseIsNotQualifying(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	raceID := uuid.MustParse("018f3b2a-0000-7000-8000-000000000003")
	at := time.Unix(1700000000, 0).UTC()

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT current_status FROM races").
		WithArgs(raceID).
		WillReturnRows(pgxmock.NewRows([]string{"current_status"}).AddRow(alert.StatusOpen))
	mock.ExpectExec("UPDATE races").
		WithArgs(raceID, alert.StatusClosed, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tr, err := store.IngestTransition(context.Background(), raceID, alert.StatusClosed, at)
	require.NoError(t, err)
	require.Zero(t, tr.NotificationsCreated)
	require.Equal(t, alert.StatusOpen, tr.From)
	require.Equal(t, alert.StatusClosed, tr.To)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestTransitionUnknownRace(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	raceID := uuid.MustParse("018f3b2a-0000-7000-8000-0000000000ff")

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT current_status FROM races").
		WithArgs(raceID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err = store.IngestTransition(context.Background(), raceID, alert.StatusOpen, time.Now())
	require.ErrorIs(t, err, alert.ErrRaceNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRacesScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	raceID := uuid.MustParse("018f3b2a-0000-7000-8000-000000000010")
	scraped := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT id, name, url").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "url", "open_keywords", "closed_keywords", "current_status", "last_scraped_at",
		}).AddRow(
			raceID,
			"Boston Marathon",
			"https://example.com/boston",
			[]string{"registration is open"},
			[]string{"registration closed"},
			alert.StatusClosed,
			&scraped,
		))

	races, err := store.ListRaces(context.Background())
	require.NoError(t, err)
	require.Len(t, races, 1)
	require.Equal(t, "Boston Marathon", races[0].Name)
	require.Equal(t, alert.StatusClosed, races[0].CurrentStatus)
	require.NotNil(t, races[0].LastScrapedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationsForTransitionKeyedByEvent(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	eventID := uuid.MustParse("018f3b2a-0000-7000-8000-0000000000ee")
	raceID := uuid.MustParse("018f3b2a-0000-7000-8000-000000000001")
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT id, race_id, transition_event_id").
		WithArgs(eventID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "race_id", "transition_event_id", "recipient_email", "created_at", "sent_at",
		}).
			AddRow(uuid.New(), raceID, eventID, "a@example.com", created, (*time.Time)(nil)).
			AddRow(uuid.New(), raceID, eventID, "b@example.com", created, (*time.Time)(nil)))

	records, err := store.NotificationsForTransition(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "a@example.com", records[0].RecipientEmail)
	require.Nil(t, records[0].SentAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDispatchedOnlyUnsent(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	eventID := uuid.MustParse("018f3b2a-0000-7000-8000-0000000000ee")
	at := time.Unix(1700000500, 0).UTC()

	mock.ExpectExec("UPDATE notifications").
		WithArgs(eventID, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	require.NoError(t, store.MarkDispatched(context.Background(), eventID, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSubscriberReactivates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	subID := uuid.MustParse("018f3b2a-0000-7000-8000-000000000020")

	mock.ExpectQuery("INSERT INTO subscribers").
		WithArgs("runner@example.com", "America/New_York").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "status", "timezone"}).
			AddRow(subID, "runner@example.com", alert.SubscriberActive, "America/New_York"))

	sub, err := store.UpsertSubscriber(context.Background(), "runner@example.com", "America/New_York")
	require.NoError(t, err)
	require.Equal(t, subID, sub.ID)
	require.Equal(t, alert.SubscriberActive, sub.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscribeAllCountsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	subID := uuid.MustParse("018f3b2a-0000-7000-8000-000000000020")

	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(subID).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := store.SubscribeAll(context.Background(), subID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnsubscribeAllDeactivatesSubscriptions(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	subID := uuid.MustParse("018f3b2a-0000-7000-8000-000000000020")

	mock.ExpectQuery("SELECT id, status FROM subscribers").
		WithArgs("runner@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status"}).AddRow(subID, alert.SubscriberActive))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE subscribers").
		WithArgs(subID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE subscriptions").
		WithArgs(subID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	already, err := store.UnsubscribeAll(context.Background(), "runner@example.com")
	require.NoError(t, err)
	require.False(t, already)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnsubscribeAllAlreadyUnsubscribed(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	subID := uuid.MustParse("018f3b2a-0000-7000-8000-000000000020")

	mock.ExpectQuery("SELECT id, status FROM subscribers").
		WithArgs("runner@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status"}).AddRow(subID, alert.SubscriberUnsubscribed))

	already, err := store.UnsubscribeAll(context.Background(), "runner@example.com")
	require.NoError(t, err)
	require.True(t, already)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnsubscribeAllUnknownEmail(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, status FROM subscribers").
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.UnsubscribeAll(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, alert.ErrSubscriberNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestTransitionCommitFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	raceID := uuid.MustParse("018f3b2a-0000-7000-8000-000000000004")
	at := time.Unix(1700000000, 0).UTC()

	store, err := NewWithPool(mock, fixedIDs{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT current_status FROM races").
		WithArgs(raceID).
		WillReturnRows(pgxmock.NewRows([]string{"current_status"}).AddRow(alert.StatusOpen))
	mock.ExpectExec("UPDATE races").
		WithArgs(raceID, alert.StatusClosed, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	_, err = store.IngestTransition(context.Background(), raceID, alert.StatusClosed, at)
	var serr *alert.StoreError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "commit transition", serr.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}
