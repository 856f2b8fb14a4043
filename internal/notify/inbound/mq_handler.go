package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/notify/usecase"
	"github.com/fundward/fundward/internal/pkg/instrument"
	"github.com/fundward/fundward/internal/pkg/messaging"
	"github.com/fundward/fundward/internal/pkg/uid"
	"github.com/fundward/fundward/internal/pkg/valueobject"
	"github.com/fundward/fundward/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, headers []messaging.Header) context.Context {
	for i := range headers {
		if headers[i].Key == keyOfCorrelationID {
			return instrument.SetCorrelationID(ctx, string(headers[i].Value))
		}
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

// enqueuePair records the push and email Events for one domain occurrence.
// The occurrence key comes from the producer so redelivered messages collapse
// into duplicates instead of double notifications.
func (h *MQHandler) enqueuePair(ctx context.Context, in usecase.EnqueueInput, occurrenceKey string, email entity.Content) error {
	pushIn := in
	pushIn.IdempotencyKey = occurrenceKey + ":push"
	if _, err := h.uc.Enqueue(ctx, pushIn); err != nil {
		return err
	}

	emailIn := in
	emailIn.Channel = entity.ChannelEmail
	emailIn.IdempotencyKey = occurrenceKey + ":email"
	emailIn.Content = email
	if _, err := h.uc.Enqueue(ctx, emailIn); err != nil {
		return err
	}

	return nil
}

func (h *MQHandler) ProposalAwaitingVote(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg.Headers())

	ctx, span := h.ins.Tracer("notify.inbound.mq").Start(ctx, "ProposalAwaitingVote")
	defer span.End()

	body := msg.Body()
	slog.InfoContext(ctx, "consume: proposal awaiting vote", "msg_body", string(body))

	var payload event.ProposalAwaitingVoteMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of proposal awaiting vote", "msg_body", string(body), "error", err)
		return nil
	}

	occurrenceKey := payload.OccurrenceKey
	if occurrenceKey == "" {
		occurrenceKey = fmt.Sprintf("proposal_awaiting_vote:p%d", payload.ProposalID)
	}

	summary := fmt.Sprintf("%q (%s) needs your vote.", payload.Title, formatAmount(payload.AmountCents))
	linkPath := fmt.Sprintf("/proposals/%d", payload.ProposalID)

	err := h.enqueuePair(ctx, usecase.EnqueueInput{
		Type:     entity.EventTypeProposalAwaitingVote,
		Channel:  entity.ChannelPush,
		ActorID:  &payload.AuthorID,
		EntityID: &payload.ProposalID,
		Content: entity.Content{
			Title:    "New proposal awaiting your vote",
			Body:     summary,
			LinkPath: linkPath,
		},
		Payload: valueobject.JSONMap{
			"proposal_id":  payload.ProposalID,
			"amount_cents": payload.AmountCents,
		},
		RecipientIDs: payload.VoterIDs,
	}, occurrenceKey, entity.Content{
		Subject:  "New proposal awaiting your vote",
		TextBody: summary + "\n\nOpen the proposal to cast your vote.",
		HTMLBody: fmt.Sprintf("<p>%s</p><p><a href=%q>Open the proposal</a> to cast your vote.</p>", template.HTMLEscapeString(summary), linkPath),
		LinkPath: linkPath,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to consume proposal awaiting vote", "msg_body", string(body), "error", err)
		return err
	}

	return nil
}

func (h *MQHandler) ProposalDecided(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg.Headers())

	ctx, span := h.ins.Tracer("notify.inbound.mq").Start(ctx, "ProposalDecided")
	defer span.End()

	body := msg.Body()
	slog.InfoContext(ctx, "consume: proposal decided", "msg_body", string(body))

	var payload event.ProposalDecidedMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of proposal decided", "msg_body", string(body), "error", err)
		return nil
	}

	occurrenceKey := payload.OccurrenceKey
	if occurrenceKey == "" {
		occurrenceKey = fmt.Sprintf("proposal_decided:p%d:%s", payload.ProposalID, payload.Outcome)
	}

	summary := fmt.Sprintf("%q was %s.", payload.Title, payload.Outcome)
	linkPath := fmt.Sprintf("/proposals/%d", payload.ProposalID)

	err := h.enqueuePair(ctx, usecase.EnqueueInput{
		Type:     entity.EventTypeProposalDecided,
		Channel:  entity.ChannelPush,
		EntityID: &payload.ProposalID,
		Content: entity.Content{
			Title:    "Proposal " + payload.Outcome,
			Body:     summary,
			LinkPath: linkPath,
		},
		Payload: valueobject.JSONMap{
			"proposal_id": payload.ProposalID,
			"outcome":     payload.Outcome,
		},
		RecipientIDs: payload.RecipientIDs,
	}, occurrenceKey, entity.Content{
		Subject:  "Proposal " + payload.Outcome,
		TextBody: summary,
		HTMLBody: fmt.Sprintf("<p>%s</p><p><a href=%q>View the proposal</a>.</p>", template.HTMLEscapeString(summary), linkPath),
		LinkPath: linkPath,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to consume proposal decided", "msg_body", string(body), "error", err)
		return err
	}

	return nil
}

func (h *MQHandler) PolicyUpdated(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg.Headers())

	ctx, span := h.ins.Tracer("notify.inbound.mq").Start(ctx, "PolicyUpdated")
	defer span.End()

	body := msg.Body()
	slog.InfoContext(ctx, "consume: policy updated", "msg_body", string(body))

	var payload event.PolicyUpdatedMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of policy updated", "msg_body", string(body), "error", err)
		return nil
	}

	occurrenceKey := payload.OccurrenceKey
	if occurrenceKey == "" {
		occurrenceKey = fmt.Sprintf("policy_updated:pol%d", payload.PolicyID)
	}

	summary := fmt.Sprintf("Policy %q was updated: %s", payload.Title, payload.Summary)
	linkPath := fmt.Sprintf("/policies/%d", payload.PolicyID)

	err := h.enqueuePair(ctx, usecase.EnqueueInput{
		Type:     entity.EventTypePolicyUpdated,
		Channel:  entity.ChannelPush,
		ActorID:  &payload.EditorID,
		EntityID: &payload.PolicyID,
		Content: entity.Content{
			Title:    "Committee policy updated",
			Body:     summary,
			LinkPath: linkPath,
		},
		Payload: valueobject.JSONMap{
			"policy_id": payload.PolicyID,
		},
		RecipientIDs: payload.RecipientIDs,
	}, occurrenceKey, entity.Content{
		Subject:  "Committee policy updated",
		TextBody: summary,
		HTMLBody: fmt.Sprintf("<p>%s</p><p><a href=%q>Read the policy</a>.</p>", template.HTMLEscapeString(summary), linkPath),
		LinkPath: linkPath,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to consume policy updated", "msg_body", string(body), "error", err)
		return err
	}

	return nil
}

func (h *MQHandler) GrantMarkedSent(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg.Headers())

	ctx, span := h.ins.Tracer("notify.inbound.mq").Start(ctx, "GrantMarkedSent")
	defer span.End()

	body := msg.Body()
	slog.InfoContext(ctx, "consume: grant marked sent", "msg_body", string(body))

	var payload event.GrantMarkedSentMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of grant marked sent", "msg_body", string(body), "error", err)
		return nil
	}

	occurrenceKey := payload.OccurrenceKey
	if occurrenceKey == "" {
		occurrenceKey = fmt.Sprintf("grant_marked_sent:g%d", payload.GrantID)
	}

	summary := fmt.Sprintf("Grant %q (%s) was marked as sent.", payload.Title, formatAmount(payload.AmountCents))
	linkPath := fmt.Sprintf("/grants/%d", payload.GrantID)

	err := h.enqueuePair(ctx, usecase.EnqueueInput{
		Type:     entity.EventTypeGrantMarkedSent,
		Channel:  entity.ChannelPush,
		EntityID: &payload.GrantID,
		Content: entity.Content{
			Title:    "Grant marked as sent",
			Body:     summary,
			LinkPath: linkPath,
		},
		Payload: valueobject.JSONMap{
			"grant_id":     payload.GrantID,
			"proposal_id":  payload.ProposalID,
			"amount_cents": payload.AmountCents,
		},
		RecipientIDs: payload.RecipientIDs,
	}, occurrenceKey, entity.Content{
		Subject:  "Grant marked as sent",
		TextBody: summary,
		HTMLBody: fmt.Sprintf("<p>%s</p><p><a href=%q>View the grant</a>.</p>", template.HTMLEscapeString(summary), linkPath),
		LinkPath: linkPath,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to consume grant marked sent", "msg_body", string(body), "error", err)
		return err
	}

	return nil
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("EUR %d.%02d", cents/100, cents%100)
}
