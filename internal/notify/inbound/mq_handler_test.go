package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/notify/usecase"
	"github.com/fundward/fundward/internal/pkg/instrument"
	"github.com/fundward/fundward/internal/pkg/messaging"
	"github.com/fundward/fundward/internal/shared/event"
)

// fakeUC records enqueue calls; the trigger and preference methods are never
// reached from the MQ handlers.
type fakeUC struct {
	enqueued   []usecase.EnqueueInput
	enqueueErr error
}

func (f *fakeUC) Enqueue(_ context.Context, in usecase.EnqueueInput) (entity.EnqueueResult, error) {
	if f.enqueueErr != nil {
		return entity.EnqueueResult{}, f.enqueueErr
	}
	f.enqueued = append(f.enqueued, in)
	return entity.EnqueueResult{Enqueued: true, EventID: int64(len(f.enqueued))}, nil
}

func (f *fakeUC) Drain(context.Context, usecase.DrainInput) (entity.DrainResult, error) {
	return entity.DrainResult{}, nil
}

func (f *fakeUC) RunWeeklyReminder(context.Context, usecase.WeeklyReminderInput) (entity.ReminderRunResult, error) {
	return entity.ReminderRunResult{}, nil
}

func (f *fakeUC) RunDailyDigest(context.Context, usecase.DailyDigestInput) (entity.DigestRunResult, error) {
	return entity.DigestRunResult{}, nil
}

func (f *fakeUC) GetPreferences(context.Context) (entity.Preferences, error) {
	return entity.Preferences{}, nil
}

func (f *fakeUC) UpdatePreferences(context.Context, usecase.UpdatePreferencesInput) error {
	return nil
}

func (f *fakeUC) RegisterSubscription(context.Context, usecase.RegisterSubscriptionInput) error {
	return nil
}

func (f *fakeUC) RemoveSubscription(context.Context, usecase.RemoveSubscriptionInput) error {
	return nil
}

func (f *fakeUC) GetEventStatus(context.Context, int64) (*entity.EventStatus, error) {
	return nil, nil
}

type fakeMessage struct {
	body    []byte
	headers []messaging.Header
}

func (m *fakeMessage) Body() []byte                  { return m.body }
func (m *fakeMessage) Key() []byte                   { return nil }
func (m *fakeMessage) Headers() []messaging.Header   { return m.headers }
func (m *fakeMessage) Attributes() map[string]string { return nil }
func (m *fakeMessage) ID() string                    { return "msg-1" }
func (m *fakeMessage) Topic() string                 { return "" }
func (m *fakeMessage) Subject() string               { return "" }
func (m *fakeMessage) Timestamp() time.Time          { return time.Time{} }
func (m *fakeMessage) Ack(context.Context) error     { return nil }

type fixedUUID struct{}

func (fixedUUID) Generate() string { return "uuid-fixed" }

func newHandler(uc *fakeUC) *MQHandler {
	return &MQHandler{uc: uc, uuid: fixedUUID{}, ins: instrument.NewNoop()}
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func TestProposalAwaitingVote(t *testing.T) {
	payload := event.ProposalAwaitingVoteMessage{
		ProposalID:    42,
		AuthorID:      7,
		Title:         "Solar roof",
		AmountCents:   250000,
		VoterIDs:      []int64{8, 9},
		OccurrenceKey: "proposal_awaiting_vote:p42",
	}

	t.Run("enqueues a push and email pair", func(t *testing.T) {
		// Arrange
		uc := &fakeUC{}
		h := newHandler(uc)

		// Act
		err := h.ProposalAwaitingVote(context.Background(), &fakeMessage{body: marshal(t, payload)})

		// Assert
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(uc.enqueued) != 2 {
			t.Fatalf("expected push and email enqueue, got %d", len(uc.enqueued))
		}
		push, email := uc.enqueued[0], uc.enqueued[1]
		if push.Channel != entity.ChannelPush || push.IdempotencyKey != "proposal_awaiting_vote:p42:push" {
			t.Fatalf("unexpected push input %+v", push)
		}
		if email.Channel != entity.ChannelEmail || email.IdempotencyKey != "proposal_awaiting_vote:p42:email" {
			t.Fatalf("unexpected email input %+v", email)
		}
		if push.Type != entity.EventTypeProposalAwaitingVote {
			t.Fatalf("unexpected event type %v", push.Type)
		}
		if len(push.RecipientIDs) != 2 {
			t.Fatalf("expected voters as recipients, got %v", push.RecipientIDs)
		}
		if email.Content.Subject == "" || email.Content.HTMLBody == "" {
			t.Fatalf("email content incomplete: %+v", email.Content)
		}
	})

	t.Run("escapes markup in the email html body", func(t *testing.T) {
		uc := &fakeUC{}
		h := newHandler(uc)
		hostile := payload
		hostile.Title = `<script>alert(1)</script>`

		if err := h.ProposalAwaitingVote(context.Background(), &fakeMessage{body: marshal(t, hostile)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		html := uc.enqueued[1].Content.HTMLBody
		if strings.Contains(html, "<script>") {
			t.Fatalf("title rendered unescaped in html body:\n%s", html)
		}
		if !strings.Contains(html, "&lt;script&gt;alert(1)&lt;/script&gt;") {
			t.Fatalf("escaped title missing from html body:\n%s", html)
		}
	})

	t.Run("falls back to a derived occurrence key", func(t *testing.T) {
		uc := &fakeUC{}
		h := newHandler(uc)
		bare := payload
		bare.OccurrenceKey = ""

		if err := h.ProposalAwaitingVote(context.Background(), &fakeMessage{body: marshal(t, bare)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if uc.enqueued[0].IdempotencyKey != "proposal_awaiting_vote:p42:push" {
			t.Fatalf("unexpected fallback key %q", uc.enqueued[0].IdempotencyKey)
		}
	})

	t.Run("malformed body is dropped without redelivery", func(t *testing.T) {
		uc := &fakeUC{}
		h := newHandler(uc)

		if err := h.ProposalAwaitingVote(context.Background(), &fakeMessage{body: []byte("not json")}); err != nil {
			t.Fatalf("poison message must not be redelivered: %v", err)
		}
		if len(uc.enqueued) != 0 {
			t.Fatal("nothing should be enqueued for a poison message")
		}
	})

	t.Run("enqueue failure requests redelivery", func(t *testing.T) {
		uc := &fakeUC{enqueueErr: errors.New("db down")}
		h := newHandler(uc)

		if err := h.ProposalAwaitingVote(context.Background(), &fakeMessage{body: marshal(t, payload)}); err == nil {
			t.Fatal("expected error so the broker redelivers")
		}
	})
}

func TestProposalDecided(t *testing.T) {
	uc := &fakeUC{}
	h := newHandler(uc)
	payload := event.ProposalDecidedMessage{
		ProposalID:   42,
		Title:        "Solar roof",
		Outcome:      "approved",
		RecipientIDs: []int64{7, 8},
	}

	if err := h.ProposalDecided(context.Background(), &fakeMessage{body: marshal(t, payload)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(uc.enqueued) != 2 {
		t.Fatalf("expected push and email enqueue, got %d", len(uc.enqueued))
	}
	if uc.enqueued[0].IdempotencyKey != "proposal_decided:p42:approved:push" {
		t.Fatalf("unexpected key %q", uc.enqueued[0].IdempotencyKey)
	}
	if uc.enqueued[0].Content.Title != "Proposal approved" {
		t.Fatalf("unexpected title %q", uc.enqueued[0].Content.Title)
	}
}

func TestGrantMarkedSent(t *testing.T) {
	uc := &fakeUC{}
	h := newHandler(uc)
	payload := event.GrantMarkedSentMessage{
		GrantID:      5,
		ProposalID:   42,
		Title:        "Solar roof",
		AmountCents:  120050,
		RecipientIDs: []int64{7},
	}

	if err := h.GrantMarkedSent(context.Background(), &fakeMessage{body: marshal(t, payload)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(uc.enqueued) != 2 {
		t.Fatalf("expected push and email enqueue, got %d", len(uc.enqueued))
	}
	push := uc.enqueued[0]
	if push.IdempotencyKey != "grant_marked_sent:g5:push" {
		t.Fatalf("unexpected key %q", push.IdempotencyKey)
	}
	if push.Content.Body != `Grant "Solar roof" (EUR 1200.50) was marked as sent.` {
		t.Fatalf("unexpected body %q", push.Content.Body)
	}
}

func TestPolicyUpdated(t *testing.T) {
	uc := &fakeUC{}
	h := newHandler(uc)
	payload := event.PolicyUpdatedMessage{
		PolicyID:     3,
		EditorID:     7,
		Title:        "Reimbursements",
		Summary:      "Receipts now due within 30 days.",
		RecipientIDs: []int64{8, 9},
	}

	if err := h.PolicyUpdated(context.Background(), &fakeMessage{body: marshal(t, payload)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(uc.enqueued) != 2 {
		t.Fatalf("expected push and email enqueue, got %d", len(uc.enqueued))
	}
	if uc.enqueued[0].IdempotencyKey != "policy_updated:pol3:push" {
		t.Fatalf("unexpected key %q", uc.enqueued[0].IdempotencyKey)
	}
}
