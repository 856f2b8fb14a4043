package db

import (
	"context"

	"github.com/fundward/fundward/internal/notify/entity"
)

const listPreferencesSQL = `
SELECT user_id, push_enabled, events
FROM notify_preferences
WHERE user_id = ANY($1)`

func (s *DB) ListPreferences(ctx context.Context, userIDs []int64) (_ map[int64]entity.Preferences, err error) {
	ctx, span := s.startSpan(ctx, "ListPreferences")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, listPreferencesSQL, userIDs)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	prefs := make(map[int64]entity.Preferences, len(userIDs))
	for rows.Next() {
		var (
			userID int64
			pref   entity.Preferences
			events map[string]bool
		)
		if err = rows.Scan(&userID, &pref.PushEnabled, &events); err != nil {
			return nil, s.mapError(err)
		}

		pref.Events = make(map[entity.EventType]bool, len(events))
		for name, enabled := range events {
			pref.Events[entity.EventType(name)] = enabled
		}
		prefs[userID] = pref
	}

	return prefs, s.mapError(rows.Err())
}

const upsertPreferencesSQL = `
INSERT INTO notify_preferences (user_id, push_enabled, events)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE
SET push_enabled = EXCLUDED.push_enabled,
	events = EXCLUDED.events,
	updated_at = NOW()`

func (s *DB) UpsertPreferences(ctx context.Context, userID int64, pushEnabled bool, settings []entity.PreferenceSetting) (err error) {
	ctx, span := s.startSpan(ctx, "UpsertPreferences")
	defer func() { s.endSpan(span, err) }()

	events := make(map[string]bool, len(settings))
	for _, setting := range settings {
		events[setting.EventType.String()] = setting.IsEnabled
	}

	_, err = s.conn.Exec(ctx, upsertPreferencesSQL, userID, pushEnabled, events)
	return s.mapError(err)
}
