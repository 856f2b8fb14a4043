package db

import (
	"context"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
)

// Read-only queries against the committee domain tables. The notify module
// never writes them.

const getVerifiedEmailsSQL = `
SELECT id, email
FROM users
WHERE id = ANY($1) AND email_verified_at IS NOT NULL`

func (s *DB) GetVerifiedEmails(ctx context.Context, userIDs []int64) (_ map[int64]string, err error) {
	ctx, span := s.startSpan(ctx, "GetVerifiedEmails")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, getVerifiedEmailsSQL, userIDs)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	emails := make(map[int64]string, len(userIDs))
	for rows.Next() {
		var (
			userID  int64
			address string
		)
		if err = rows.Scan(&userID, &address); err != nil {
			return nil, s.mapError(err)
		}
		emails[userID] = address
	}

	return emails, s.mapError(rows.Err())
}

// listReminderCandidatesSQL finds every active member with outstanding work:
// proposals awaiting their vote, or proposals they authored still awaiting
// votes from others.
const listReminderCandidatesSQL = `
WITH awaiting AS (
	SELECT id, author_id FROM proposals WHERE status = 'awaiting_vote'
)
SELECT c.id, c.open_votes, c.authored_awaiting
FROM (
	SELECT u.id,
		(SELECT COUNT(*) FROM awaiting a
		 WHERE a.author_id <> u.id
		   AND NOT EXISTS (
			SELECT 1 FROM proposal_votes v
			WHERE v.proposal_id = a.id AND v.user_id = u.id
		   )) AS open_votes,
		(SELECT COUNT(*) FROM awaiting a WHERE a.author_id = u.id) AS authored_awaiting
	FROM users u
	WHERE u.active
) c
WHERE c.open_votes > 0 OR c.authored_awaiting > 0
ORDER BY c.id`

func (s *DB) ListReminderCandidates(ctx context.Context) (_ []entity.ReminderCandidate, err error) {
	ctx, span := s.startSpan(ctx, "ListReminderCandidates")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, listReminderCandidatesSQL)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var items []entity.ReminderCandidate
	for rows.Next() {
		var c entity.ReminderCandidate
		if err = rows.Scan(&c.UserID, &c.OpenVotes, &c.AuthoredAwaiting); err != nil {
			return nil, s.mapError(err)
		}
		items = append(items, c)
	}

	return items, s.mapError(rows.Err())
}

const listGrantsMarkedSentSinceSQL = `
SELECT g.id, g.title, g.amount_cents, l.created_at
FROM grant_activity_logs l
JOIN grants g ON g.id = l.grant_id
WHERE l.action = 'marked_sent' AND l.created_at >= $1
ORDER BY l.created_at ASC`

func (s *DB) ListGrantsMarkedSentSince(ctx context.Context, since time.Time) (_ []entity.SentGrant, err error) {
	ctx, span := s.startSpan(ctx, "ListGrantsMarkedSentSince")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, listGrantsMarkedSentSinceSQL, since)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var items []entity.SentGrant
	for rows.Next() {
		var g entity.SentGrant
		if err = rows.Scan(&g.GrantID, &g.Title, &g.AmountCents, &g.MarkedSentAt); err != nil {
			return nil, s.mapError(err)
		}
		items = append(items, g)
	}

	return items, s.mapError(rows.Err())
}

const listApprovedUnsentGrantsSQL = `
SELECT id, title, amount_cents, approved_at
FROM grants
WHERE status = 'approved'
ORDER BY approved_at ASC`

func (s *DB) ListApprovedUnsentGrants(ctx context.Context) (_ []entity.OutstandingGrant, err error) {
	ctx, span := s.startSpan(ctx, "ListApprovedUnsentGrants")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, listApprovedUnsentGrantsSQL)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var items []entity.OutstandingGrant
	for rows.Next() {
		var g entity.OutstandingGrant
		if err = rows.Scan(&g.GrantID, &g.Title, &g.AmountCents, &g.ApprovedAt); err != nil {
			return nil, s.mapError(err)
		}
		items = append(items, g)
	}

	return items, s.mapError(rows.Err())
}

const listDigestRecipientsSQL = `
SELECT id
FROM users
WHERE active AND role = 'board'
ORDER BY id`

func (s *DB) ListDigestRecipients(ctx context.Context) (_ []int64, err error) {
	ctx, span := s.startSpan(ctx, "ListDigestRecipients")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, listDigestRecipientsSQL)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, s.mapError(err)
		}
		ids = append(ids, id)
	}

	return ids, s.mapError(rows.Err())
}
