package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/goerror"
)

// Expand resolves an Event into per-endpoint Deliveries: preference filter
// first, then reachability fan-out (one Delivery per active push subscription,
// or one per verified email address). The upsert on
// (event_id, user_id, endpoint) makes re-running expansion a no-op.
func (s *Usecase) Expand(ctx context.Context, eventID int64) error {
	ctx, span := s.startSpan(ctx, "Expand")
	defer span.End()

	event, err := s.repoDB.GetEvent(ctx, eventID)
	if errors.Is(err, goerror.ErrNotFound) {
		return goerror.NewBusiness("event not found", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get event", "event_id", eventID, "error", err)
		return goerror.NewServer(err)
	}

	prefs, err := s.repoDB.ListPreferences(ctx, event.RecipientIDs)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list preferences", "event_id", eventID, "error", err)
		return goerror.NewServer(err)
	}

	optedIn := make([]int64, 0, len(event.RecipientIDs))
	for _, userID := range event.RecipientIDs {
		pref, ok := prefs[userID]
		if !ok {
			pref = entity.DefaultPreferences()
		}
		if event.Channel == entity.ChannelPush && !pref.PushEnabled {
			continue
		}
		if !pref.Allows(event.Type) {
			continue
		}
		optedIn = append(optedIn, userID)
	}

	deliveries, err := s.resolveEndpoints(ctx, event, optedIn)
	if err != nil {
		return err
	}

	if len(deliveries) > 0 {
		if err := s.repoDB.UpsertDeliveries(ctx, deliveries); err != nil {
			slog.ErrorContext(ctx, "failed to repo upsert deliveries", "event_id", eventID, "error", err)
			return goerror.NewServer(err)
		}
	}

	// Nobody reachable or opted in: the Event is complete without a single
	// send attempt. That is a normal outcome, not a failure.
	if err := s.Finalize(ctx, []int64{eventID}); err != nil {
		return err
	}

	return nil
}

func (s *Usecase) resolveEndpoints(ctx context.Context, event *entity.Event, userIDs []int64) ([]entity.CreateDelivery, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	now := s.clock.Now()
	var deliveries []entity.CreateDelivery

	switch event.Channel {
	case entity.ChannelPush:
		subs, err := s.repoDB.ListActivePushSubscriptions(ctx, userIDs)
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo list push subscriptions", "event_id", event.ID, "error", err)
			return nil, goerror.NewServer(err)
		}
		for _, userID := range userIDs {
			for _, sub := range subs[userID] {
				deliveries = append(deliveries, entity.CreateDelivery{
					ID:            s.uid.Generate(),
					EventID:       event.ID,
					UserID:        userID,
					Endpoint:      sub.Endpoint,
					Channel:       entity.ChannelPush,
					NextAttemptAt: now,
				})
			}
		}

	case entity.ChannelEmail:
		emails, err := s.repoDB.GetVerifiedEmails(ctx, userIDs)
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo get verified emails", "event_id", event.ID, "error", err)
			return nil, goerror.NewServer(err)
		}
		for _, userID := range userIDs {
			address, ok := emails[userID]
			if !ok || address == "" {
				continue
			}
			deliveries = append(deliveries, entity.CreateDelivery{
				ID:            s.uid.Generate(),
				EventID:       event.ID,
				UserID:        userID,
				Endpoint:      address,
				Channel:       entity.ChannelEmail,
				NextAttemptAt: now,
			})
		}
	}

	return deliveries, nil
}
