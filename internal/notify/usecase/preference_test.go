package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
)

func TestGetPreferences(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	t.Run("requires authentication", func(t *testing.T) {
		uc := newTestUsecase(t, newFakeRepo(), &fakeAdapter{}, &fakeAdapter{}, now)

		if _, err := uc.GetPreferences(context.Background()); err == nil {
			t.Fatal("expected unauthorized error")
		}
	})

	t.Run("user without rows gets fail-open defaults", func(t *testing.T) {
		uc := newTestUsecase(t, newFakeRepo(), &fakeAdapter{}, &fakeAdapter{}, now)

		pref, err := uc.GetPreferences(authCtx(7))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !pref.PushEnabled {
			t.Fatal("default push switch should be on")
		}
		if len(pref.Events) != len(entity.KnownEventTypes) {
			t.Fatalf("expected all %d event types materialized, got %d", len(entity.KnownEventTypes), len(pref.Events))
		}
		for et, enabled := range pref.Events {
			if !enabled {
				t.Fatalf("default for %s should be enabled", et)
			}
		}
	})

	t.Run("stored opt-outs survive materialization", func(t *testing.T) {
		repo := newFakeRepo()
		repo.prefs[7] = entity.Preferences{
			PushEnabled: false,
			Events:      map[entity.EventType]bool{entity.EventTypeDailyDigest: false},
		}
		uc := newTestUsecase(t, repo, &fakeAdapter{}, &fakeAdapter{}, now)

		pref, err := uc.GetPreferences(authCtx(7))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if pref.PushEnabled {
			t.Fatal("stored push opt-out lost")
		}
		if pref.Events[entity.EventTypeDailyDigest] {
			t.Fatal("stored event opt-out lost")
		}
		if !pref.Events[entity.EventTypeProposalDecided] {
			t.Fatal("untouched event types should stay enabled")
		}
	})
}

func TestUpdatePreferences(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	t.Run("stores the new flags", func(t *testing.T) {
		repo := newFakeRepo()
		uc := newTestUsecase(t, repo, &fakeAdapter{}, &fakeAdapter{}, now)

		err := uc.UpdatePreferences(authCtx(7), UpdatePreferencesInput{
			PushEnabled: false,
			Settings: []entity.PreferenceSetting{
				{EventType: entity.EventTypeWeeklyReminder, IsEnabled: false},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		stored := repo.prefs[7]
		if stored.PushEnabled || stored.Events[entity.EventTypeWeeklyReminder] {
			t.Fatalf("preferences not stored: %+v", stored)
		}
	})

	t.Run("rejects unknown event types", func(t *testing.T) {
		repo := newFakeRepo()
		uc := newTestUsecase(t, repo, &fakeAdapter{}, &fakeAdapter{}, now)

		err := uc.UpdatePreferences(authCtx(7), UpdatePreferencesInput{
			Settings: []entity.PreferenceSetting{{EventType: "mystery_event"}},
		})
		if err == nil {
			t.Fatal("expected error for unknown event type")
		}
		if len(repo.prefs) != 0 {
			t.Fatal("nothing should be stored on rejection")
		}
	})

	t.Run("requires authentication", func(t *testing.T) {
		uc := newTestUsecase(t, newFakeRepo(), &fakeAdapter{}, &fakeAdapter{}, now)

		if err := uc.UpdatePreferences(context.Background(), UpdatePreferencesInput{}); err == nil {
			t.Fatal("expected unauthorized error")
		}
	})
}
