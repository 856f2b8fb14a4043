package db

import (
	"context"

	"github.com/fundward/fundward/internal/notify/entity"
)

const listActivePushSubscriptionsSQL = `
SELECT id, user_id, endpoint, p256dh, auth, user_agent, created_at
FROM notify_push_subscriptions
WHERE user_id = ANY($1) AND active`

func (s *DB) ListActivePushSubscriptions(ctx context.Context, userIDs []int64) (_ map[int64][]entity.PushSubscription, err error) {
	ctx, span := s.startSpan(ctx, "ListActivePushSubscriptions")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, listActivePushSubscriptionsSQL, userIDs)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	subs := make(map[int64][]entity.PushSubscription)
	for rows.Next() {
		sub := entity.PushSubscription{Active: true}
		if err = rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.UserAgent, &sub.CreatedAt); err != nil {
			return nil, s.mapError(err)
		}
		subs[sub.UserID] = append(subs[sub.UserID], sub)
	}

	return subs, s.mapError(rows.Err())
}

const getActivePushSubscriptionSQL = `
SELECT id, user_id, endpoint, p256dh, auth, user_agent, created_at
FROM notify_push_subscriptions
WHERE endpoint = $1 AND active`

func (s *DB) GetActivePushSubscription(ctx context.Context, endpoint string) (_ *entity.PushSubscription, err error) {
	ctx, span := s.startSpan(ctx, "GetActivePushSubscription")
	defer func() { s.endSpan(span, err) }()

	sub := entity.PushSubscription{Active: true}
	err = s.conn.QueryRow(ctx, getActivePushSubscriptionSQL, endpoint).Scan(
		&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.UserAgent, &sub.CreatedAt)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &sub, nil
}

// registerPushSubscriptionSQL reactivates and re-keys on endpoint collision:
// browsers resubmit the same endpoint after a key rotation, and the endpoint
// may have changed hands after an unsubscribe.
const registerPushSubscriptionSQL = `
INSERT INTO notify_push_subscriptions
	(id, user_id, endpoint, p256dh, auth, user_agent, active)
VALUES
	($1, $2, $3, $4, $5, $6, TRUE)
ON CONFLICT (endpoint) DO UPDATE
SET user_id = EXCLUDED.user_id,
	p256dh = EXCLUDED.p256dh,
	auth = EXCLUDED.auth,
	user_agent = EXCLUDED.user_agent,
	active = TRUE,
	updated_at = NOW()`

func (s *DB) RegisterPushSubscription(ctx context.Context, sub entity.PushSubscription) (err error) {
	ctx, span := s.startSpan(ctx, "RegisterPushSubscription")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, registerPushSubscriptionSQL,
		sub.ID, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, sub.UserAgent)
	return s.mapError(err)
}

const deactivatePushSubscriptionSQL = `
UPDATE notify_push_subscriptions
SET active = FALSE, updated_at = NOW()
WHERE endpoint = $1 AND active`

func (s *DB) DeactivatePushSubscription(ctx context.Context, endpoint string) (err error) {
	ctx, span := s.startSpan(ctx, "DeactivatePushSubscription")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, deactivatePushSubscriptionSQL, endpoint)
	return s.mapError(err)
}
