package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
)

func TestDrain(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	seed := func(repo *fakeRepo, ch entity.Channel, attemptCount int32) *entity.Delivery {
		repo.events[10] = &entity.Event{
			ID:           10,
			Type:         entity.EventTypeProposalDecided,
			Channel:      ch,
			Content:      entity.Content{Title: "t", Body: "b", Subject: "s", TextBody: "tb"},
			RecipientIDs: []int64{7},
		}
		endpoint := "seven@fundward.app"
		if ch == entity.ChannelPush {
			endpoint = "https://push.example/a"
			repo.subs[endpoint] = &entity.PushSubscription{ID: 1, UserID: 7, Endpoint: endpoint, Active: true}
		}
		d := &entity.Delivery{
			ID:            100,
			EventID:       10,
			UserID:        7,
			Endpoint:      endpoint,
			Channel:       ch,
			Status:        entity.DeliveryStatusPending,
			AttemptCount:  attemptCount,
			NextAttemptAt: now.Add(-time.Minute),
		}
		repo.deliveries[d.ID] = d
		return d
	}

	t.Run("no adapter configured reports config missing", func(t *testing.T) {
		repo := newFakeRepo()
		seed(repo, entity.ChannelPush, 0)
		uc := newTestUsecase(t, repo, &fakeAdapter{}, &fakeAdapter{}, now)

		res, err := uc.Drain(context.Background(), DrainInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.ConfigMissing || res.Processed != 0 {
			t.Fatalf("expected config-missing result, got %+v", res)
		}
		if repo.deliveries[100].Status != entity.DeliveryStatusPending {
			t.Fatal("delivery must stay pending when no adapter is configured")
		}
	})

	t.Run("unconfigured channel leaves its deliveries pending", func(t *testing.T) {
		// Push-only deployment: email rows must survive untouched for a
		// future pass instead of being claimed into limbo.
		repo := newFakeRepo()
		seed(repo, entity.ChannelEmail, 0)
		uc := newTestUsecase(t, repo, &fakeAdapter{configured: true}, &fakeAdapter{}, now)

		res, err := uc.Drain(context.Background(), DrainInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Skipped != 1 || res.Processed != 0 || res.ConfigMissing {
			t.Fatalf("expected one skipped delivery, got %+v", res)
		}
		d := repo.deliveries[100]
		if d.Status != entity.DeliveryStatusPending || d.AttemptCount != 0 {
			t.Fatalf("delivery must stay pending with its budget intact, got %+v", d)
		}
		if repo.events[10].ProcessedAt != nil {
			t.Fatal("event with an unsendable delivery must not be finalized")
		}

		// Once email comes up the same row goes out normally.
		email := &fakeAdapter{configured: true}
		uc = newTestUsecase(t, repo, &fakeAdapter{configured: true}, email, now)
		res, err = uc.Drain(context.Background(), DrainInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Sent != 1 || len(email.calls) != 1 {
			t.Fatalf("expected the delivery sent on the next pass, got %+v", res)
		}
	})

	t.Run("successful send marks delivery sent and finalizes", func(t *testing.T) {
		// Arrange
		repo := newFakeRepo()
		seed(repo, entity.ChannelPush, 0)
		push := &fakeAdapter{configured: true, results: []entity.SendResult{{OK: true, ProviderMessageID: "m-1"}}}
		uc := newTestUsecase(t, repo, push, &fakeAdapter{}, now)

		// Act
		res, err := uc.Drain(context.Background(), DrainInput{})

		// Assert
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Processed != 1 || res.Sent != 1 {
			t.Fatalf("expected one sent delivery, got %+v", res)
		}
		d := repo.deliveries[100]
		if d.Status != entity.DeliveryStatusSent || d.AttemptCount != 1 || d.SentAt == nil {
			t.Fatalf("delivery not marked sent: %+v", d)
		}
		if repo.events[10].ProcessedAt == nil {
			t.Fatal("event with all deliveries terminal should be finalized")
		}
		if len(push.calls) != 1 || push.calls[0].Push == nil {
			t.Fatalf("adapter should receive the resolved subscription, got %+v", push.calls)
		}
	})

	t.Run("transient failure schedules a backed-off retry", func(t *testing.T) {
		// Arrange
		repo := newFakeRepo()
		seed(repo, entity.ChannelPush, 2)
		push := &fakeAdapter{configured: true, results: []entity.SendResult{{ErrorMessage: "relay returned 503"}}}
		uc := newTestUsecase(t, repo, push, &fakeAdapter{}, now)

		// Act
		res, err := uc.Drain(context.Background(), DrainInput{})

		// Assert
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.PendingRetries != 1 {
			t.Fatalf("expected one pending retry, got %+v", res)
		}
		if len(repo.retryMarks) != 1 {
			t.Fatalf("expected one retry mark, got %d", len(repo.retryMarks))
		}
		mark := repo.retryMarks[0]
		if mark.attemptCount != 3 {
			t.Fatalf("expected attempt count 3, got %d", mark.attemptCount)
		}
		// Third attempt failed, so the next one waits 2^(3-1) = 4 minutes.
		if want := now.Add(4 * time.Minute); !mark.nextAttemptAt.Equal(want) {
			t.Fatalf("expected next attempt at %v, got %v", want, mark.nextAttemptAt)
		}
		if mark.lastError != "relay returned 503" {
			t.Fatalf("expected last error recorded, got %q", mark.lastError)
		}
		if repo.events[10].ProcessedAt != nil {
			t.Fatal("event with a pending retry must not be finalized")
		}
	})

	t.Run("exhausted retry budget marks delivery failed", func(t *testing.T) {
		repo := newFakeRepo()
		seed(repo, entity.ChannelPush, 4)
		push := &fakeAdapter{configured: true, results: []entity.SendResult{{ErrorMessage: "still down"}}}
		uc := newTestUsecase(t, repo, push, &fakeAdapter{}, now)

		res, err := uc.Drain(context.Background(), DrainInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Failed != 1 {
			t.Fatalf("expected one failed delivery, got %+v", res)
		}
		d := repo.deliveries[100]
		if d.Status != entity.DeliveryStatusFailed || d.AttemptCount != 5 {
			t.Fatalf("expected terminal failed at attempt 5, got %+v", d)
		}
		if repo.events[10].ProcessedAt == nil {
			t.Fatal("event should be finalized once the last delivery is terminal")
		}
	})

	t.Run("permanent push failure deactivates the subscription", func(t *testing.T) {
		// Arrange
		repo := newFakeRepo()
		seed(repo, entity.ChannelPush, 0)
		push := &fakeAdapter{configured: true, results: []entity.SendResult{{Permanent: true, ErrorMessage: "push relay returned Gone"}}}
		uc := newTestUsecase(t, repo, push, &fakeAdapter{}, now)

		// Act
		res, err := uc.Drain(context.Background(), DrainInput{})

		// Assert
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.PermanentFailures != 1 {
			t.Fatalf("expected one permanent failure, got %+v", res)
		}
		if repo.deliveries[100].Status != entity.DeliveryStatusPermanentlyFailed {
			t.Fatalf("expected permanently failed status, got %v", repo.deliveries[100].Status)
		}
		if len(repo.deactivated) != 1 || repo.deactivated[0] != "https://push.example/a" {
			t.Fatalf("expected dead endpoint deactivated, got %v", repo.deactivated)
		}
	})

	t.Run("permanent email failure keeps nothing to deactivate", func(t *testing.T) {
		repo := newFakeRepo()
		seed(repo, entity.ChannelEmail, 0)
		email := &fakeAdapter{configured: true, results: []entity.SendResult{{Permanent: true, ErrorMessage: "550 no such user"}}}
		uc := newTestUsecase(t, repo, &fakeAdapter{}, email, now)

		res, err := uc.Drain(context.Background(), DrainInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.PermanentFailures != 1 || len(repo.deactivated) != 0 {
			t.Fatalf("expected permanent failure without deactivation, got %+v %v", res, repo.deactivated)
		}
	})

	t.Run("vanished push subscription fails permanently without a send", func(t *testing.T) {
		repo := newFakeRepo()
		d := seed(repo, entity.ChannelPush, 0)
		delete(repo.subs, d.Endpoint)
		push := &fakeAdapter{configured: true}
		uc := newTestUsecase(t, repo, push, &fakeAdapter{}, now)

		res, err := uc.Drain(context.Background(), DrainInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.PermanentFailures != 1 {
			t.Fatalf("expected one permanent failure, got %+v", res)
		}
		if len(push.calls) != 0 {
			t.Fatal("adapter must not be called when the subscription is gone")
		}
		if repo.deliveries[100].LastError != "push subscription no longer active" {
			t.Fatalf("unexpected last error %q", repo.deliveries[100].LastError)
		}
	})

	t.Run("vanished event fails permanently", func(t *testing.T) {
		repo := newFakeRepo()
		seed(repo, entity.ChannelPush, 0)
		delete(repo.events, 10)
		uc := newTestUsecase(t, repo, &fakeAdapter{configured: true}, &fakeAdapter{}, now)

		res, err := uc.Drain(context.Background(), DrainInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.PermanentFailures != 1 {
			t.Fatalf("expected one permanent failure, got %+v", res)
		}
	})

	t.Run("lost claim race counts as skipped", func(t *testing.T) {
		repo := newFakeRepo()
		seed(repo, entity.ChannelPush, 0)
		// Another worker grabs the row between listing and claiming.
		repo.failClaims = 1
		push := &fakeAdapter{configured: true}
		uc := newTestUsecase(t, repo, push, &fakeAdapter{}, now)

		res, err := uc.Drain(context.Background(), DrainInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Skipped != 1 || res.Processed != 0 {
			t.Fatalf("expected one skipped delivery, got %+v", res)
		}
		if len(push.calls) != 0 {
			t.Fatal("no send should happen for a row claimed elsewhere")
		}
	})

	t.Run("future deliveries are not picked up", func(t *testing.T) {
		repo := newFakeRepo()
		d := seed(repo, entity.ChannelPush, 1)
		d.NextAttemptAt = now.Add(10 * time.Minute)
		push := &fakeAdapter{configured: true}
		uc := newTestUsecase(t, repo, push, &fakeAdapter{}, now)

		res, err := uc.Drain(context.Background(), DrainInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Processed != 0 || len(push.calls) != 0 {
			t.Fatalf("expected nothing due, got %+v", res)
		}
	})

	t.Run("event filter limits the pass", func(t *testing.T) {
		// Arrange
		repo := newFakeRepo()
		seed(repo, entity.ChannelPush, 0)
		repo.events[20] = &entity.Event{
			ID: 20, Type: entity.EventTypeProposalDecided, Channel: entity.ChannelPush,
			Content: entity.Content{Title: "t", Body: "b"}, RecipientIDs: []int64{7},
		}
		repo.deliveries[200] = &entity.Delivery{
			ID: 200, EventID: 20, UserID: 7, Endpoint: "https://push.example/a",
			Channel: entity.ChannelPush, Status: entity.DeliveryStatusPending, NextAttemptAt: now.Add(-time.Minute),
		}
		push := &fakeAdapter{configured: true}
		uc := newTestUsecase(t, repo, push, &fakeAdapter{}, now)

		// Act
		eventID := int64(20)
		res, err := uc.Drain(context.Background(), DrainInput{EventID: &eventID})

		// Assert
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Processed != 1 {
			t.Fatalf("expected exactly the filtered delivery, got %+v", res)
		}
		if repo.deliveries[100].Status != entity.DeliveryStatusPending {
			t.Fatal("delivery outside the filter must stay untouched")
		}
	})
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int32
		want    time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 16 * time.Minute},
		{6, 32 * time.Minute},
		{7, 60 * time.Minute},
		{40, 60 * time.Minute},
	}

	for _, tc := range cases {
		if got := backoffDelay(tc.attempt, 60); got != tc.want {
			t.Errorf("backoffDelay(%d, 60) = %v, want %v", tc.attempt, got, tc.want)
		}
	}

	if got := backoffDelay(4, 5); got != 5*time.Minute {
		t.Errorf("backoffDelay(4, 5) = %v, want 5m", got)
	}
}
