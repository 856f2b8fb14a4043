package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/goerror"
	"github.com/samber/lo"
)

type DrainInput struct {
	Limit   int32
	EventID *int64
}

// Drain claims due Deliveries (oldest first) and runs exactly one attempt
// each. It is safe to invoke concurrently: the claim is a conditional update
// that only one worker can win, so overlapping cron triggers never double-send.
func (s *Usecase) Drain(ctx context.Context, in DrainInput) (entity.DrainResult, error) {
	ctx, span := s.startSpan(ctx, "Drain")
	defer span.End()

	var result entity.DrainResult

	// A misconfigured adapter is an operational signal, distinct from
	// "nothing was due". Report it instead of burning attempt budget.
	if !s.push.Configured() && !s.email.Configured() {
		result.ConfigMissing = true
		slog.WarnContext(ctx, "no channel adapter configured, skipping drain")
		return result, nil
	}

	limit := in.Limit
	if limit <= 0 {
		limit = s.drainLimit()
	}

	due, err := s.repoDB.ListDueDeliveries(ctx, limit, in.EventID, s.clock.Now())
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list due deliveries", "error", err)
		return result, goerror.NewServer(err)
	}

	touched := make([]int64, 0, len(due))
	events := make(map[int64]*entity.Event, 4)
	pacing := s.sendInterval()

	for i, delivery := range due {
		adapter := s.adapterFor(delivery.Channel)
		if adapter == nil || !adapter.Configured() {
			// Channel not sendable in this deployment. Checked before the
			// claim so the row stays pending for a pass that can send it,
			// instead of sitting claimed in processing.
			result.Skipped++
			continue
		}

		claimed, err := s.repoDB.ClaimDelivery(ctx, delivery.ID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo claim delivery", "delivery_id", delivery.ID, "error", err)
			return result, goerror.NewServer(err)
		}
		if !claimed {
			result.Skipped++
			continue
		}

		if i > 0 && pacing > 0 {
			// Crude pacing between consecutive sends in the same pass,
			// enough for the provider's documented rate ceiling.
			time.Sleep(pacing)
		}

		outcome, err := s.attempt(ctx, adapter, delivery, events)
		if err != nil {
			return result, err
		}

		result.Processed++
		switch outcome {
		case entity.DeliveryStatusSent:
			result.Sent++
		case entity.DeliveryStatusFailed:
			result.Failed++
		case entity.DeliveryStatusPermanentlyFailed:
			result.PermanentFailures++
		case entity.DeliveryStatusPending:
			result.PendingRetries++
		}

		touched = append(touched, delivery.EventID)
	}

	if err := s.Finalize(ctx, lo.Uniq(touched)); err != nil {
		return result, err
	}

	return result, nil
}

// attempt runs a single delivery attempt and persists its outcome, returning
// the status the Delivery ended up in. The Delivery is already claimed, so
// every path must write a terminal or retry state back.
func (s *Usecase) attempt(ctx context.Context, adapter ChannelAdapter, delivery entity.Delivery, events map[int64]*entity.Event) (entity.DeliveryStatus, error) {
	attempts := delivery.AttemptCount + 1

	event, ok := events[delivery.EventID]
	if !ok {
		loaded, err := s.repoDB.GetEvent(ctx, delivery.EventID)
		if err != nil && !errors.Is(err, goerror.ErrNotFound) {
			slog.ErrorContext(ctx, "failed to repo get event", "event_id", delivery.EventID, "error", err)
			return entity.DeliveryStatusUnknown, goerror.NewServer(err)
		}
		event = loaded
		events[delivery.EventID] = event
	}
	if event == nil {
		// The referenced Event vanished; retrying cannot resolve it.
		return s.failPermanently(ctx, delivery, attempts, "event no longer exists")
	}

	target, refErr, err := s.resolveTarget(ctx, delivery)
	if err != nil {
		return entity.DeliveryStatusUnknown, err
	}
	if refErr != "" {
		return s.failPermanently(ctx, delivery, attempts, refErr)
	}

	sent := adapter.Send(ctx, target, event.Content)

	switch {
	case sent.OK:
		if err := s.repoDB.MarkDeliverySent(ctx, delivery.ID, attempts, s.clock.Now()); err != nil {
			slog.ErrorContext(ctx, "failed to repo mark delivery sent", "delivery_id", delivery.ID, "error", err)
			return entity.DeliveryStatusUnknown, goerror.NewServer(err)
		}
		return entity.DeliveryStatusSent, nil

	case sent.Permanent:
		if delivery.Channel == entity.ChannelPush {
			// Dead endpoint: deactivate it so future expansions skip it.
			if err := s.repoDB.DeactivatePushSubscription(ctx, delivery.Endpoint); err != nil {
				slog.ErrorContext(ctx, "failed to repo deactivate push subscription", "endpoint", delivery.Endpoint, "error", err)
			}
		}
		return s.failPermanently(ctx, delivery, attempts, sent.ErrorMessage)

	default: // transient
		if attempts >= s.maxAttempts() {
			if err := s.repoDB.MarkDeliveryFailed(ctx, delivery.ID, entity.DeliveryStatusFailed, attempts, sent.ErrorMessage); err != nil {
				slog.ErrorContext(ctx, "failed to repo mark delivery failed", "delivery_id", delivery.ID, "error", err)
				return entity.DeliveryStatusUnknown, goerror.NewServer(err)
			}
			slog.WarnContext(ctx, "delivery exhausted retry budget",
				"delivery_id", delivery.ID, "attempts", attempts, "last_error", sent.ErrorMessage)
			return entity.DeliveryStatusFailed, nil
		}

		next := s.clock.Now().Add(backoffDelay(attempts, s.backoffCapMinutes()))
		if err := s.repoDB.MarkDeliveryRetry(ctx, delivery.ID, attempts, next, sent.ErrorMessage); err != nil {
			slog.ErrorContext(ctx, "failed to repo mark delivery retry", "delivery_id", delivery.ID, "error", err)
			return entity.DeliveryStatusUnknown, goerror.NewServer(err)
		}
		return entity.DeliveryStatusPending, nil
	}
}

// resolveTarget loads the concrete endpoint for the Delivery. A non-empty
// refErr means the endpoint reference cannot resolve anymore and the
// Delivery must fail permanently.
func (s *Usecase) resolveTarget(ctx context.Context, delivery entity.Delivery) (entity.DeliveryTarget, string, error) {
	target := entity.DeliveryTarget{UserID: delivery.UserID}

	switch delivery.Channel {
	case entity.ChannelPush:
		sub, err := s.repoDB.GetActivePushSubscription(ctx, delivery.Endpoint)
		if errors.Is(err, goerror.ErrNotFound) {
			return target, "push subscription no longer active", nil
		}
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo get push subscription", "endpoint", delivery.Endpoint, "error", err)
			return target, "", goerror.NewServer(err)
		}
		target.Push = sub

	case entity.ChannelEmail:
		target.Email = delivery.Endpoint

	default:
		return target, "unknown delivery channel", nil
	}

	return target, "", nil
}

func (s *Usecase) failPermanently(ctx context.Context, delivery entity.Delivery, attempts int32, reason string) (entity.DeliveryStatus, error) {
	if err := s.repoDB.MarkDeliveryFailed(ctx, delivery.ID, entity.DeliveryStatusPermanentlyFailed, attempts, reason); err != nil {
		slog.ErrorContext(ctx, "failed to repo mark delivery permanently failed", "delivery_id", delivery.ID, "error", err)
		return entity.DeliveryStatusUnknown, goerror.NewServer(err)
	}

	return entity.DeliveryStatusPermanentlyFailed, nil
}

// backoffDelay computes the retry delay after the given attempt number:
// 1, 2, 4, 8, 16, 32 minutes, capped (60 by default).
func backoffDelay(attempt, capMinutes int32) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	minutes := int64(1) << (attempt - 1)
	if attempt > 30 || minutes > int64(capMinutes) {
		minutes = int64(capMinutes)
	}

	return time.Duration(minutes) * time.Minute
}
