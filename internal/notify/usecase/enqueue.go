package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/goerror"
	"github.com/fundward/fundward/internal/pkg/valueobject"
	"github.com/samber/lo"
)

type EnqueueInput struct {
	Type           entity.EventType
	Channel        entity.Channel
	ActorID        *int64
	EntityID       *int64
	IdempotencyKey string `validate:"required,max=255"`
	Content        entity.Content
	Payload        valueobject.JSONMap
	RecipientIDs   []int64
}

// Enqueue records one Event and kicks off its fan-out. It is safe to call
// repeatedly with the same idempotency key: the unique constraint on the key
// turns the second insert into a silent duplicate result.
func (s *Usecase) Enqueue(ctx context.Context, in EnqueueInput) (entity.EnqueueResult, error) {
	ctx, span := s.startSpan(ctx, "Enqueue")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return entity.EnqueueResult{}, goerror.NewInvalidInput(err)
	}
	if !in.Type.Known() {
		return entity.EnqueueResult{}, goerror.NewBusiness("unknown event type "+in.Type.String(), goerror.CodeInvalidFormat)
	}
	if err := validateContent(in.Channel, in.Content); err != nil {
		// Missing content is a caller bug, never a retryable condition.
		return entity.EnqueueResult{}, err
	}

	recipients := lo.Uniq(lo.Filter(in.RecipientIDs, func(id int64, _ int) bool { return id > 0 }))
	if len(recipients) == 0 {
		return entity.EnqueueResult{Reason: entity.EnqueueReasonNoRecipients}, nil
	}

	data := entity.CreateEvent{
		ID:             s.uid.Generate(),
		Type:           in.Type,
		Channel:        in.Channel,
		ActorID:        in.ActorID,
		EntityID:       in.EntityID,
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
		Content:        in.Content,
		Payload:        in.Payload,
		RecipientIDs:   recipients,
	}
	if data.Payload == nil {
		data.Payload = valueobject.JSONMap{}
	}

	if err := s.repoDB.CreateEvent(ctx, data); err != nil {
		if errors.Is(err, goerror.ErrConflict) {
			slog.InfoContext(ctx, "event already enqueued", "idempotency_key", data.IdempotencyKey)
			return entity.EnqueueResult{Reason: entity.EnqueueReasonDuplicate}, nil
		}
		slog.ErrorContext(ctx, "failed to repo create event", "event_type", in.Type.String(), "error", err)
		return entity.EnqueueResult{}, goerror.NewServer(err)
	}

	s.dispatchFanout(ctx, data.ID)

	return entity.EnqueueResult{Enqueued: true, EventID: data.ID}, nil
}

// dispatchFanout expands and drains the new Event without blocking the
// caller. Failures here are only logged: the cron-driven drain picks up
// whatever this pass missed.
func (s *Usecase) dispatchFanout(ctx context.Context, eventID int64) {
	if s.routine == nil {
		return
	}

	s.routine.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := s.Expand(ctx, eventID); err != nil {
			slog.ErrorContext(ctx, "background expansion failed", "event_id", eventID, "error", err)
			return nil
		}
		if _, err := s.Drain(ctx, DrainInput{EventID: &eventID}); err != nil {
			slog.ErrorContext(ctx, "background drain failed", "event_id", eventID, "error", err)
		}
		return nil
	})
}

func validateContent(ch entity.Channel, c entity.Content) error {
	switch ch {
	case entity.ChannelPush:
		if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Body) == "" {
			return goerror.NewBusiness("push content requires title and body", goerror.CodeInvalidFormat)
		}
	case entity.ChannelEmail:
		if strings.TrimSpace(c.Subject) == "" || (strings.TrimSpace(c.HTMLBody) == "" && strings.TrimSpace(c.TextBody) == "") {
			return goerror.NewBusiness("email content requires subject and a body", goerror.CodeInvalidFormat)
		}
	default:
		return goerror.NewBusiness("channel is not supported", goerror.CodeInvalidFormat)
	}

	return nil
}
