package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
)

func TestRunDailyDigest(t *testing.T) {
	// 12:00 UTC is 14:00 in Berlin during summer time.
	noon := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	seedGrants := func(repo *fakeRepo) {
		repo.sentGrants = []entity.SentGrant{
			{GrantID: 1, Title: "Community garden", AmountCents: 250000, MarkedSentAt: noon.Add(-2 * time.Hour)},
			{GrantID: 2, Title: "Youth orchestra", AmountCents: 120050, MarkedSentAt: noon.Add(-3 * time.Hour)},
		}
		repo.outstanding = []entity.OutstandingGrant{
			{GrantID: 3, Title: "River cleanup", AmountCents: 80000, ApprovedAt: noon.AddDate(0, 0, -10)},
			{GrantID: 4, Title: "School library", AmountCents: 430000, ApprovedAt: noon.AddDate(0, 0, -6)},
			{GrantID: 5, Title: "Bike workshop", AmountCents: 15500, ApprovedAt: noon.AddDate(0, 0, -2)},
		}
		repo.recipients = []int64{7, 8}
	}

	run := func(t *testing.T, repo *fakeRepo, in DailyDigestInput) entity.DigestRunResult {
		t.Helper()
		at := noon
		if in.Now == nil {
			in.Now = &at
		}
		uc := newTestUsecase(t, repo, &fakeAdapter{}, &fakeAdapter{configured: true}, *in.Now)
		res, err := uc.RunDailyDigest(context.Background(), in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return res
	}

	t.Run("before the local hour is not due", func(t *testing.T) {
		repo := newFakeRepo()
		seedGrants(repo)
		early := time.Date(2026, 8, 25, 7, 0, 0, 0, time.UTC)

		res := run(t, repo, DailyDigestInput{Now: &early})

		if res.Due || len(repo.events) != 0 {
			t.Fatalf("expected not-due result, got %+v", res)
		}
	})

	t.Run("ignore time window overrides the gate", func(t *testing.T) {
		repo := newFakeRepo()
		seedGrants(repo)
		early := time.Date(2026, 8, 25, 7, 0, 0, 0, time.UTC)

		res := run(t, repo, DailyDigestInput{Now: &early, IgnoreTimeWindow: true})

		if !res.Due || res.EventID == 0 {
			t.Fatalf("expected digest enqueued, got %+v", res)
		}
	})

	t.Run("enqueues one digest to all board members", func(t *testing.T) {
		// Arrange
		repo := newFakeRepo()
		seedGrants(repo)

		// Act
		res := run(t, repo, DailyDigestInput{})

		// Assert
		if !res.Due || res.EventID == 0 {
			t.Fatalf("expected digest enqueued, got %+v", res)
		}
		event := repo.events[res.EventID]
		if event == nil {
			t.Fatalf("digest event %d not stored", res.EventID)
		}
		if event.IdempotencyKey != "daily_digest:2026-08-25:email" {
			t.Fatalf("unexpected idempotency key %q", event.IdempotencyKey)
		}
		if event.Channel != entity.ChannelEmail {
			t.Fatalf("digest must go out by email, got %v", event.Channel)
		}
		if len(event.RecipientIDs) != 2 {
			t.Fatalf("expected both board members, got %v", event.RecipientIDs)
		}
		if event.Payload["sent_count"] != 2 || event.Payload["outstanding_count"] != 3 {
			t.Fatalf("unexpected payload %v", event.Payload)
		}
		if !repo.digestSent["2026-08-25"] {
			t.Fatal("digest audit row should be created")
		}
	})

	t.Run("second run the same day is a duplicate", func(t *testing.T) {
		repo := newFakeRepo()
		seedGrants(repo)
		if first := run(t, repo, DailyDigestInput{}); first.EventID == 0 {
			t.Fatalf("seed run failed: %+v", first)
		}

		res := run(t, repo, DailyDigestInput{})

		if res.Reason != DigestReasonDuplicate || res.EventID != 0 {
			t.Fatalf("expected duplicate result, got %+v", res)
		}
		if len(repo.events) != 1 {
			t.Fatalf("expected a single digest event, got %d", len(repo.events))
		}
	})

	t.Run("nothing marked sent today skips the digest", func(t *testing.T) {
		repo := newFakeRepo()
		seedGrants(repo)
		// Yesterday's entry is inside the lookback but outside the local day.
		repo.sentGrants = []entity.SentGrant{
			{GrantID: 1, Title: "Community garden", AmountCents: 250000, MarkedSentAt: noon.AddDate(0, 0, -1)},
		}

		res := run(t, repo, DailyDigestInput{})

		if res.Reason != DigestReasonNothing || len(repo.events) != 0 {
			t.Fatalf("expected nothing_to_report, got %+v", res)
		}
		if repo.digestSent["2026-08-25"] {
			t.Fatal("no audit row should be created for an empty day")
		}
	})

	t.Run("force send bypasses audit and empty-day checks", func(t *testing.T) {
		// Arrange
		repo := newFakeRepo()
		seedGrants(repo)
		repo.sentGrants = nil
		repo.digestSent["2026-08-25"] = true

		// Act
		res := run(t, repo, DailyDigestInput{ForceSend: true})

		// Assert
		if res.EventID == 0 {
			t.Fatalf("expected forced digest enqueued, got %+v", res)
		}
		event := repo.events[res.EventID]
		if !strings.HasPrefix(event.IdempotencyKey, "daily_digest:preview:") {
			t.Fatalf("forced run must use a one-off key, got %q", event.IdempotencyKey)
		}
	})
}

func TestDigestContent(t *testing.T) {
	local := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)
	sent := []entity.SentGrant{{GrantID: 1, Title: "Community garden", AmountCents: 250000}}
	outstanding := []entity.OutstandingGrant{{GrantID: 3, Title: "River cleanup", AmountCents: 80000}}

	content := digestContent(local, sent, outstanding)

	if content.Subject != "Grant digest for 25 August 2026" {
		t.Fatalf("unexpected subject %q", content.Subject)
	}
	if !strings.Contains(content.TextBody, "Community garden (EUR 2500.00)") {
		t.Fatalf("sent grant missing from text body:\n%s", content.TextBody)
	}
	if !strings.Contains(content.TextBody, "River cleanup (EUR 800.00)") {
		t.Fatalf("outstanding grant missing from text body:\n%s", content.TextBody)
	}
	if !strings.Contains(content.HTMLBody, "<li>Community garden (EUR 2500.00)</li>") {
		t.Fatalf("sent grant missing from html body:\n%s", content.HTMLBody)
	}

	empty := digestContent(local, nil, nil)
	if !strings.Contains(empty.TextBody, "No grants were marked as sent today.") {
		t.Fatalf("empty digest should say so:\n%s", empty.TextBody)
	}

	hostile := digestContent(local, []entity.SentGrant{
		{GrantID: 9, Title: `<script>alert(1)</script>`, AmountCents: 100},
	}, nil)
	if strings.Contains(hostile.HTMLBody, "<script>") {
		t.Fatalf("grant title rendered unescaped in html body:\n%s", hostile.HTMLBody)
	}
	if !strings.Contains(hostile.HTMLBody, "&lt;script&gt;alert(1)&lt;/script&gt;") {
		t.Fatalf("escaped grant title missing from html body:\n%s", hostile.HTMLBody)
	}
}

func TestFormatCents(t *testing.T) {
	cases := map[int64]string{
		0:      "EUR 0.00",
		5:      "EUR 0.05",
		100:    "EUR 1.00",
		120050: "EUR 1200.50",
	}
	for cents, want := range cases {
		if got := formatCents(cents); got != want {
			t.Errorf("formatCents(%d) = %q, want %q", cents, got, want)
		}
	}
}
