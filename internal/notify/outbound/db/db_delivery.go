package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/jackc/pgx/v5"
)

// upsertDeliverySQL relies on the unique (event_id, user_id, endpoint) key:
// re-expanding an Event never duplicates or resets an existing Delivery.
const upsertDeliverySQL = `
INSERT INTO notify_deliveries
	(id, event_id, user_id, endpoint, channel, status, next_attempt_at)
VALUES
	($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (event_id, user_id, endpoint) DO NOTHING`

func (s *DB) UpsertDeliveries(ctx context.Context, deliveries []entity.CreateDelivery) (err error) {
	ctx, span := s.startSpan(ctx, "UpsertDeliveries")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rolback", "error", rErr)
		}
	}()

	for _, d := range deliveries {
		if _, err = tx.Exec(ctx, upsertDeliverySQL,
			d.ID, d.EventID, d.UserID, d.Endpoint,
			int16(d.Channel), int16(entity.DeliveryStatusPending), d.NextAttemptAt,
		); err != nil {
			return s.mapError(err)
		}
	}

	return tx.Commit(ctx)
}

const listDueDeliveriesSQL = `
SELECT id, event_id, user_id, endpoint, channel, status,
	attempt_count, next_attempt_at, last_error, sent_at, created_at
FROM notify_deliveries
WHERE status = $1
  AND next_attempt_at <= $2
  AND ($3::bigint IS NULL OR event_id = $3)
ORDER BY next_attempt_at ASC
LIMIT $4`

func (s *DB) ListDueDeliveries(ctx context.Context, limit int32, eventID *int64, now time.Time) (_ []entity.Delivery, err error) {
	ctx, span := s.startSpan(ctx, "ListDueDeliveries")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, listDueDeliveriesSQL,
		int16(entity.DeliveryStatusPending), now, eventID, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var items []entity.Delivery
	for rows.Next() {
		var (
			d       entity.Delivery
			channel int16
			status  int16
		)
		if err = rows.Scan(
			&d.ID, &d.EventID, &d.UserID, &d.Endpoint, &channel, &status,
			&d.AttemptCount, &d.NextAttemptAt, &d.LastError, &d.SentAt, &d.CreatedAt,
		); err != nil {
			return nil, s.mapError(err)
		}
		d.Channel = entity.Channel(channel)
		d.Status = entity.DeliveryStatus(status)
		items = append(items, d)
	}

	return items, s.mapError(rows.Err())
}

// claimDeliverySQL is the worker mutual exclusion: only the transition
// pending→processing succeeds, so two overlapping drains cannot both win
// the same row.
const claimDeliverySQL = `
UPDATE notify_deliveries
SET status = $2
WHERE id = $1 AND status = $3`

func (s *DB) ClaimDelivery(ctx context.Context, id int64) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "ClaimDelivery")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, claimDeliverySQL, id,
		int16(entity.DeliveryStatusProcessing), int16(entity.DeliveryStatusPending))
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() > 0, nil
}

const markDeliverySentSQL = `
UPDATE notify_deliveries
SET status = $2, attempt_count = $3, sent_at = $4, last_error = ''
WHERE id = $1 AND status = $5`

func (s *DB) MarkDeliverySent(ctx context.Context, id int64, attemptCount int32, sentAt time.Time) (err error) {
	ctx, span := s.startSpan(ctx, "MarkDeliverySent")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, markDeliverySentSQL, id,
		int16(entity.DeliveryStatusSent), attemptCount, sentAt,
		int16(entity.DeliveryStatusProcessing))
	return s.mapError(err)
}

const markDeliveryRetrySQL = `
UPDATE notify_deliveries
SET status = $2, attempt_count = $3, next_attempt_at = $4, last_error = $5
WHERE id = $1 AND status = $6`

func (s *DB) MarkDeliveryRetry(ctx context.Context, id int64, attemptCount int32, nextAttemptAt time.Time, lastError string) (err error) {
	ctx, span := s.startSpan(ctx, "MarkDeliveryRetry")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, markDeliveryRetrySQL, id,
		int16(entity.DeliveryStatusPending), attemptCount, nextAttemptAt, lastError,
		int16(entity.DeliveryStatusProcessing))
	return s.mapError(err)
}

const markDeliveryFailedSQL = `
UPDATE notify_deliveries
SET status = $2, attempt_count = $3, last_error = $4
WHERE id = $1 AND status = $5`

func (s *DB) MarkDeliveryFailed(ctx context.Context, id int64, status entity.DeliveryStatus, attemptCount int32, lastError string) (err error) {
	ctx, span := s.startSpan(ctx, "MarkDeliveryFailed")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, markDeliveryFailedSQL, id,
		int16(status), attemptCount, lastError,
		int16(entity.DeliveryStatusProcessing))
	return s.mapError(err)
}
