package db

import (
	"context"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
)

const createEventSQL = `
INSERT INTO notify_events
	(id, event_type, channel, actor_id, entity_id, idempotency_key,
	 title, body, subject, html_body, text_body, link_path, payload, recipient_ids)
VALUES
	($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func (s *DB) CreateEvent(ctx context.Context, data entity.CreateEvent) (err error) {
	ctx, span := s.startSpan(ctx, "CreateEvent")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, createEventSQL,
		data.ID,
		data.Type.String(),
		int16(data.Channel),
		data.ActorID,
		data.EntityID,
		data.IdempotencyKey,
		data.Content.Title,
		data.Content.Body,
		data.Content.Subject,
		data.Content.HTMLBody,
		data.Content.TextBody,
		data.Content.LinkPath,
		data.Payload,
		data.RecipientIDs,
	)
	return s.mapError(err)
}

const getEventSQL = `
SELECT id, event_type, channel, actor_id, entity_id, idempotency_key,
	title, body, subject, html_body, text_body, link_path, payload,
	recipient_ids, processed_at, created_at
FROM notify_events
WHERE id = $1`

func (s *DB) GetEvent(ctx context.Context, id int64) (_ *entity.Event, err error) {
	ctx, span := s.startSpan(ctx, "GetEvent")
	defer func() { s.endSpan(span, err) }()

	var (
		event   entity.Event
		channel int16
		etype   string
	)
	err = s.conn.QueryRow(ctx, getEventSQL, id).Scan(
		&event.ID,
		&etype,
		&channel,
		&event.ActorID,
		&event.EntityID,
		&event.IdempotencyKey,
		&event.Content.Title,
		&event.Content.Body,
		&event.Content.Subject,
		&event.Content.HTMLBody,
		&event.Content.TextBody,
		&event.Content.LinkPath,
		&event.Payload,
		&event.RecipientIDs,
		&event.ProcessedAt,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	event.Type = entity.EventType(etype)
	event.Channel = entity.Channel(channel)

	return &event, nil
}

// finalizeEventSQL stamps processed_at only when no pending or processing
// Delivery remains, so the transition is race-free against concurrent workers.
const finalizeEventSQL = `
UPDATE notify_events e
SET processed_at = $2
WHERE e.id = $1
  AND e.processed_at IS NULL
  AND NOT EXISTS (
	SELECT 1 FROM notify_deliveries d
	WHERE d.event_id = e.id AND d.status IN ($3, $4)
  )`

func (s *DB) FinalizeEvent(ctx context.Context, id int64, now time.Time) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "FinalizeEvent")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, finalizeEventSQL, id, now,
		int16(entity.DeliveryStatusPending), int16(entity.DeliveryStatusProcessing))
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() > 0, nil
}

const countEventDeliveriesSQL = `
SELECT status, COUNT(*)
FROM notify_deliveries
WHERE event_id = $1
GROUP BY status`

func (s *DB) CountEventDeliveries(ctx context.Context, eventID int64) (_ map[entity.DeliveryStatus]int64, err error) {
	ctx, span := s.startSpan(ctx, "CountEventDeliveries")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, countEventDeliveriesSQL, eventID)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	counts := make(map[entity.DeliveryStatus]int64)
	for rows.Next() {
		var (
			status int16
			count  int64
		)
		if err = rows.Scan(&status, &count); err != nil {
			return nil, s.mapError(err)
		}
		counts[entity.DeliveryStatus(status)] = count
	}

	return counts, s.mapError(rows.Err())
}
