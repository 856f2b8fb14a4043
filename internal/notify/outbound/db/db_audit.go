package db

import (
	"context"
)

const listRemindedUsersSQL = `
SELECT user_id
FROM notify_reminder_audits
WHERE week_key = $1 AND user_id = ANY($2)`

func (s *DB) ListRemindedUsers(ctx context.Context, weekKey string, userIDs []int64) (_ map[int64]struct{}, err error) {
	ctx, span := s.startSpan(ctx, "ListRemindedUsers")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, listRemindedUsersSQL, weekKey, userIDs)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	reminded := make(map[int64]struct{})
	for rows.Next() {
		var userID int64
		if err = rows.Scan(&userID); err != nil {
			return nil, s.mapError(err)
		}
		reminded[userID] = struct{}{}
	}

	return reminded, s.mapError(rows.Err())
}

const createReminderAuditSQL = `
INSERT INTO notify_reminder_audits (user_id, week_key)
VALUES ($1, $2)`

func (s *DB) CreateReminderAudit(ctx context.Context, userID int64, weekKey string) (err error) {
	ctx, span := s.startSpan(ctx, "CreateReminderAudit")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, createReminderAuditSQL, userID, weekKey)
	return s.mapError(err)
}

const hasDigestAuditSQL = `
SELECT EXISTS (SELECT 1 FROM notify_digest_audits WHERE day_key = $1)`

func (s *DB) HasDigestAudit(ctx context.Context, dayKey string) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "HasDigestAudit")
	defer func() { s.endSpan(span, err) }()

	var exists bool
	err = s.conn.QueryRow(ctx, hasDigestAuditSQL, dayKey).Scan(&exists)
	return exists, s.mapError(err)
}

const createDigestAuditSQL = `
INSERT INTO notify_digest_audits (day_key)
VALUES ($1)`

func (s *DB) CreateDigestAudit(ctx context.Context, dayKey string) (err error) {
	ctx, span := s.startSpan(ctx, "CreateDigestAudit")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, createDigestAuditSQL, dayKey)
	return s.mapError(err)
}
