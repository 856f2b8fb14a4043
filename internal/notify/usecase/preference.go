package usecase

import (
	"context"
	"log/slog"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/goerror"
)

// GetPreferences returns the caller's notification preferences, materialized
// over the fail-open defaults so every known event type appears in the view.
func (s *Usecase) GetPreferences(ctx context.Context) (entity.Preferences, error) {
	ctx, span := s.startSpan(ctx, "GetPreferences")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return entity.Preferences{}, err
	}

	prefs, err := s.repoDB.ListPreferences(ctx, []int64{clm.UserID})
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list preferences", "user_id", clm.UserID, "error", err)
		return entity.Preferences{}, goerror.NewServer(err)
	}

	pref, ok := prefs[clm.UserID]
	if !ok {
		pref = entity.DefaultPreferences()
	}

	for _, et := range entity.KnownEventTypes {
		if _, ok := pref.Events[et]; !ok {
			pref.Events[et] = true
		}
	}

	return pref, nil
}

type UpdatePreferencesInput struct {
	PushEnabled bool
	Settings    []entity.PreferenceSetting
}

// UpdatePreferences overwrites the caller's per-event-type flags and the
// global push switch. Unknown event types are rejected rather than stored.
func (s *Usecase) UpdatePreferences(ctx context.Context, in UpdatePreferencesInput) error {
	ctx, span := s.startSpan(ctx, "UpdatePreferences")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return err
	}

	for _, setting := range in.Settings {
		if !setting.EventType.Known() {
			return goerror.NewBusiness("unknown event type "+setting.EventType.String(), goerror.CodeInvalidFormat)
		}
	}

	if err := s.repoDB.UpsertPreferences(ctx, clm.UserID, in.PushEnabled, in.Settings); err != nil {
		slog.ErrorContext(ctx, "failed to repo upsert preferences", "user_id", clm.UserID, "error", err)
		return goerror.NewServer(err)
	}

	return nil
}
