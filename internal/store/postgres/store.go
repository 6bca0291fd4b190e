// Package postgres provides the pgx-backed durable store. The transition
// gate lives here: read-compare-write-insert runs in one transaction with a
// row lock on the race, so concurrent ingestion calls serialize per race.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/racealert/race-alert/internal/alert"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements alert.Store on Postgres.
type Store struct {
	pool Pool
	ids  alert.IDGenerator
}

// New connects a pool and builds a Store.
func New(ctx context.Context, cfg Config, ids alert.IDGenerator) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, ids: ids}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool Pool, ids alert.IDGenerator) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	return &Store{pool: pool, ids: ids}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const listRacesSQL = `
SELECT id, name, url, open_keywords, closed_keywords, current_status, last_scraped_at
FROM races
ORDER BY name`

// ListRaces returns every configured race.
func (s *Store) ListRaces(ctx context.Context) ([]alert.Race, error) {
	rows, err := s.pool.Query(ctx, listRacesSQL)
	if err != nil {
		return nil, &alert.StoreError{Op: "list races", Err: err}
	}
	defer rows.Close()

	var races []alert.Race
	for rows.Next() {
		var r alert.Race
		if err := rows.Scan(
			&r.ID,
			&r.Name,
			&r.URL,
			&r.OpenKeywords,
			&r.ClosedKeywords,
			&r.CurrentStatus,
			&r.LastScrapedAt,
		); err != nil {
			return nil, &alert.StoreError{Op: "scan race", Err: err}
		}
		races = append(races, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &alert.StoreError{Op: "list races", Err: err}
	}
	return races, nil
}

const raceByIDSQL = `
SELECT id, name, url, open_keywords, closed_keywords, current_status, last_scraped_at
FROM races
WHERE id = $1`

// Race returns a single race by id.
func (s *Store) Race(ctx context.Context, id uuid.UUID) (alert.Race, error) {
	var r alert.Race
	err := s.pool.QueryRow(ctx, raceByIDSQL, id).Scan(
		&r.ID,
		&r.Name,
		&r.URL,
		&r.OpenKeywords,
		&r.ClosedKeywords,
		&r.CurrentStatus,
		&r.LastScrapedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return alert.Race{}, alert.ErrRaceNotFound
		}
		return alert.Race{}, &alert.StoreError{Op: "get race", Err: err}
	}
	return r, nil
}

const lockRaceSQL = `SELECT current_status FROM races WHERE id = $1 FOR UPDATE`

const insertBatchSQL = `
INSERT INTO notifications (id, race_id, transition_event_id, recipient_email, created_at)
SELECT gen_random_uuid(), $1, $2, s.email, $3
FROM subscriptions sub
JOIN subscribers s ON s.id = sub.subscriber_id
WHERE sub.race_id = $1
  AND sub.is_active
  AND s.status = 'active'`

const updateRaceStatusSQL = `
UPDATE races
SET current_status = $2, last_scraped_at = $3, updated_at = now()
WHERE id = $1`

// IngestTransition is the transition gate. The SELECT ... FOR UPDATE on the
// race row serializes concurrent calls per race: only the first can observe
// a non-open status and materialize the batch; the rest see the updated row
// and no-op. Non-qualifying calls still touch last_scraped_at.
func (s *Store) IngestTransition(
	ctx context.Context,
	raceID uuid.UUID,
	newStatus alert.Status,
	at time.Time,
) (alert.Transition, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return alert.Transition{}, &alert.StoreError{Op: "begin transition", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current alert.Status
	if err := tx.QueryRow(ctx, lockRaceSQL, raceID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return alert.Transition{}, alert.ErrRaceNotFound
		}
		return alert.Transition{}, &alert.StoreError{Op: "lock race", Err: err}
	}

	tr := alert.Transition{
		RaceID:     raceID,
		From:       current,
		To:         newStatus,
		OccurredAt: at,
	}

	if newStatus == alert.StatusOpen && current != alert.StatusOpen {
		eventID, idErr := s.ids.NewRawID()
		if idErr != nil {
			return alert.Transition{}, &alert.StoreError{Op: "event id", Err: idErr}
		}
		tag, execErr := tx.Exec(ctx, insertBatchSQL, raceID, eventID, at)
		if execErr != nil {
			return alert.Transition{}, &alert.StoreError{Op: "insert notifications", Err: execErr}
		}
		tr.EventID = eventID
		tr.NotificationsCreated = int(tag.RowsAffected())
	}

	if _, err := tx.Exec(ctx, updateRaceStatusSQL, raceID, newStatus, at); err != nil {
		return alert.Transition{}, &alert.StoreError{Op: "update race status", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return alert.Transition{}, &alert.StoreError{Op: "commit transition", Err: err}
	}
	return tr, nil
}

const notificationsForTransitionSQL = `
SELECT id, race_id, transition_event_id, recipient_email, created_at, sent_at
FROM notifications
WHERE transition_event_id = $1
ORDER BY recipient_email`

// NotificationsForTransition returns the batch created by one transition
// event. Keyed by event id, never by insertion time.
func (s *Store) NotificationsForTransition(
	ctx context.Context,
	eventID uuid.UUID,
) ([]alert.NotificationRecord, error) {
	rows, err := s.pool.Query(ctx, notificationsForTransitionSQL, eventID)
	if err != nil {
		return nil, &alert.StoreError{Op: "list notifications", Err: err}
	}
	defer rows.Close()

	var records []alert.NotificationRecord
	for rows.Next() {
		var rec alert.NotificationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.RaceID,
			&rec.TransitionEventID,
			&rec.RecipientEmail,
			&rec.CreatedAt,
			&rec.SentAt,
		); err != nil {
			return nil, &alert.StoreError{Op: "scan notification", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &alert.StoreError{Op: "list notifications", Err: err}
	}
	return records, nil
}

const markDispatchedSQL = `
UPDATE notifications
SET sent_at = $2
WHERE transition_event_id = $1 AND sent_at IS NULL`

// MarkDispatched stamps sent_at on every unsent record of the event.
func (s *Store) MarkDispatched(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	if _, err := s.pool.Exec(ctx, markDispatchedSQL, eventID, at); err != nil {
		return &alert.StoreError{Op: "mark dispatched", Err: err}
	}
	return nil
}

const upsertSubscriberSQL = `
INSERT INTO subscribers (id, email, status, timezone)
VALUES (gen_random_uuid(), $1, 'active', $2)
ON CONFLICT (email) DO UPDATE
SET status = 'active', timezone = EXCLUDED.timezone, updated_at = now()
RETURNING id, email, status, timezone`

// UpsertSubscriber creates or reactivates a subscriber keyed by email.
// Callers pass the email already lower-cased.
func (s *Store) UpsertSubscriber(ctx context.Context, email, timezone string) (alert.Subscriber, error) {
	var sub alert.Subscriber
	err := s.pool.QueryRow(ctx, upsertSubscriberSQL, email, timezone).Scan(
		&sub.ID,
		&sub.Email,
		&sub.Status,
		&sub.Timezone,
	)
	if err != nil {
		return alert.Subscriber{}, &alert.StoreError{Op: "upsert subscriber", Err: err}
	}
	return sub, nil
}

const subscribeAllSQL = `
INSERT INTO subscriptions (id, subscriber_id, race_id, is_active)
SELECT gen_random_uuid(), $1, r.id, true
FROM races r
ON CONFLICT (subscriber_id, race_id) DO UPDATE SET is_active = true`

// SubscribeAll subscribes the subscriber to every race.
func (s *Store) SubscribeAll(ctx context.Context, subscriberID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, subscribeAllSQL, subscriberID)
	if err != nil {
		return 0, &alert.StoreError{Op: "subscribe all", Err: err}
	}
	return int(tag.RowsAffected()), nil
}

const findSubscriberSQL = `SELECT id, status FROM subscribers WHERE email = $1`

const unsubscribeSubscriberSQL = `
UPDATE subscribers SET status = 'unsubscribed', updated_at = now() WHERE id = $1`

const deactivateSubscriptionsSQL = `
UPDATE subscriptions SET is_active = false WHERE subscriber_id = $1`

// UnsubscribeAll marks the subscriber unsubscribed and deactivates all of
// its subscriptions. Subscriptions are never deleted.
func (s *Store) UnsubscribeAll(ctx context.Context, email string) (bool, error) {
	var (
		id     uuid.UUID
		status alert.SubscriberStatus
	)
	err := s.pool.QueryRow(ctx, findSubscriberSQL, email).Scan(&id, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, alert.ErrSubscriberNotFound
		}
		return false, &alert.StoreError{Op: "find subscriber", Err: err}
	}
	if status == alert.SubscriberUnsubscribed {
		return true, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, &alert.StoreError{Op: "begin unsubscribe", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, unsubscribeSubscriberSQL, id); err != nil {
		return false, &alert.StoreError{Op: "unsubscribe subscriber", Err: err}
	}
	if _, err := tx.Exec(ctx, deactivateSubscriptionsSQL, id); err != nil {
		return false, &alert.StoreError{Op: "deactivate subscriptions", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, &alert.StoreError{Op: "commit unsubscribe", Err: err}
	}
	return false, nil
}
