package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
)

func TestRunWeeklyReminder(t *testing.T) {
	// 2026-08-25 is a Tuesday; 12:00 UTC is well past 10:00 in Berlin.
	tuesday := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	run := func(t *testing.T, repo *fakeRepo, at time.Time) entity.ReminderRunResult {
		t.Helper()
		uc := newTestUsecase(t, repo, &fakeAdapter{configured: true}, &fakeAdapter{configured: true}, at)
		res, err := uc.RunWeeklyReminder(context.Background(), WeeklyReminderInput{Now: &at})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return res
	}

	t.Run("wrong weekday is not due", func(t *testing.T) {
		repo := newFakeRepo()
		repo.candidates = []entity.ReminderCandidate{{UserID: 7, OpenVotes: 2}}

		res := run(t, repo, tuesday.AddDate(0, 0, 1))

		if res.Due || res.Enqueued != 0 {
			t.Fatalf("expected not-due result, got %+v", res)
		}
		if len(repo.events) != 0 {
			t.Fatalf("expected no events outside the window, got %d", len(repo.events))
		}
	})

	t.Run("before the local hour is not due", func(t *testing.T) {
		repo := newFakeRepo()
		repo.candidates = []entity.ReminderCandidate{{UserID: 7, OpenVotes: 2}}

		// 07:00 UTC is 09:00 in Berlin during summer time.
		res := run(t, repo, time.Date(2026, 8, 25, 7, 0, 0, 0, time.UTC))

		if res.Due {
			t.Fatalf("expected not-due result, got %+v", res)
		}
	})

	t.Run("enqueues push and email per candidate and audits", func(t *testing.T) {
		// Arrange
		repo := newFakeRepo()
		repo.candidates = []entity.ReminderCandidate{
			{UserID: 7, OpenVotes: 2, AuthoredAwaiting: 1},
			{UserID: 8, AuthoredAwaiting: 3},
		}

		// Act
		res := run(t, repo, tuesday)

		// Assert
		if !res.Due || res.Candidates != 2 || res.Enqueued != 2 {
			t.Fatalf("expected both candidates enqueued, got %+v", res)
		}
		if len(repo.events) != 4 {
			t.Fatalf("expected push+email event per candidate, got %d events", len(repo.events))
		}
		for _, key := range []string{
			"weekly_reminder:2026-W35:u7:push",
			"weekly_reminder:2026-W35:u7:email",
			"weekly_reminder:2026-W35:u8:push",
			"weekly_reminder:2026-W35:u8:email",
		} {
			if _, ok := repo.eventByKey[key]; !ok {
				t.Fatalf("missing event for key %q", key)
			}
		}
		if len(repo.reminded["2026-W35"]) != 2 {
			t.Fatalf("expected audit rows for both users, got %v", repo.reminded)
		}
	})

	t.Run("second run in the same week skips audited users", func(t *testing.T) {
		// Arrange
		repo := newFakeRepo()
		repo.candidates = []entity.ReminderCandidate{{UserID: 7, OpenVotes: 1}}
		if first := run(t, repo, tuesday); first.Enqueued != 1 {
			t.Fatalf("seed run failed: %+v", first)
		}

		// Act
		res := run(t, repo, tuesday.Add(2*time.Hour))

		// Assert
		if res.Skipped != 1 || res.Enqueued != 0 {
			t.Fatalf("expected the audited user skipped, got %+v", res)
		}
		if len(repo.events) != 2 {
			t.Fatalf("expected no additional events, got %d", len(repo.events))
		}
	})

	t.Run("existing events without an audit count as duplicates", func(t *testing.T) {
		// The audit write crashed last run; the idempotency keys absorb the
		// replay and the audit row lands this time.
		repo := newFakeRepo()
		repo.candidates = []entity.ReminderCandidate{{UserID: 7, OpenVotes: 1}}
		if first := run(t, repo, tuesday); first.Enqueued != 1 {
			t.Fatalf("seed run failed: %+v", first)
		}
		delete(repo.reminded, "2026-W35")

		res := run(t, repo, tuesday.Add(time.Hour))

		if res.Duplicates != 1 || res.Enqueued != 0 {
			t.Fatalf("expected duplicate result, got %+v", res)
		}
		if _, ok := repo.reminded["2026-W35"][7]; !ok {
			t.Fatal("audit row should land on the replay")
		}
	})

	t.Run("no candidates is an empty due run", func(t *testing.T) {
		repo := newFakeRepo()

		res := run(t, repo, tuesday)

		if !res.Due || res.Candidates != 0 || res.Enqueued != 0 {
			t.Fatalf("expected empty due run, got %+v", res)
		}
	})
}

func TestReminderBody(t *testing.T) {
	cases := []struct {
		name      string
		candidate entity.ReminderCandidate
		want      string
	}{
		{
			name:      "votes and authored",
			candidate: entity.ReminderCandidate{OpenVotes: 2, AuthoredAwaiting: 1},
			want:      "2 proposals awaiting your vote, and 1 proposal you authored still awaiting others.",
		},
		{
			name:      "votes only singular",
			candidate: entity.ReminderCandidate{OpenVotes: 1},
			want:      "1 proposal awaiting your vote.",
		},
		{
			name:      "authored only",
			candidate: entity.ReminderCandidate{AuthoredAwaiting: 4},
			want:      "4 proposals you authored still awaiting votes from others.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := reminderBody(tc.candidate); got != tc.want {
				t.Fatalf("reminderBody() = %q, want %q", got, tc.want)
			}
		})
	}
}
