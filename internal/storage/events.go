package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/claude/reptrack/internal/models"
)

// NewEvent wraps payload in the bus envelope.
func NewEvent(eventType string, payload any, key string, at time.Time) (models.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.Event{}, fmt.Errorf("encoding %s payload: %w", eventType, err)
	}
	return models.Event{
		EventType:   eventType,
		Key:         key,
		Data:        data,
		PublishedAt: at.UTC(),
	}, nil
}

// Publish sends an event on the configured NOTIFY channel. Delivery is
// at-most-once to whoever is listening at the time.
func (db *DB) Publish(ctx context.Context, eventType string, payload any, key string) error {
	ev, err := NewEvent(eventType, payload, key, time.Now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, `SELECT pg_notify($1, $2)`, db.EventChannel, string(body)); err != nil {
		return fmt.Errorf("publishing %s: %w", eventType, err)
	}
	return nil
}

// Listen holds one pooled connection subscribed to the event channel and
// calls handle for each notification until ctx is cancelled.
func (db *DB) Listen(ctx context.Context, handle func(context.Context, models.Event)) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring listen connection: %w", err)
	}
	defer conn.Release()

	channel := pgx.Identifier{db.EventChannel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("listening on %s: %w", db.EventChannel, err)
	}
	defer func() {
		unlistenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.Exec(unlistenCtx, "UNLISTEN "+channel)
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("waiting for notification: %w", err)
		}

		var ev models.Event
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			continue // not an envelope we wrote
		}
		handle(ctx, ev)
	}
}
