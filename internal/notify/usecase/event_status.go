package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/goerror"
)

// GetEventStatus returns one Event with its delivery counts grouped by
// status, the operator view of "is this fully resolved".
func (s *Usecase) GetEventStatus(ctx context.Context, eventID int64) (*entity.EventStatus, error) {
	ctx, span := s.startSpan(ctx, "GetEventStatus")
	defer span.End()

	if _, err := s.requireAuth(ctx); err != nil {
		return nil, err
	}

	event, err := s.repoDB.GetEvent(ctx, eventID)
	if errors.Is(err, goerror.ErrNotFound) {
		return nil, goerror.NewBusiness("event not found", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get event", "event_id", eventID, "error", err)
		return nil, goerror.NewServer(err)
	}

	counts, err := s.repoDB.CountEventDeliveries(ctx, eventID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo count event deliveries", "event_id", eventID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &entity.EventStatus{Event: *event, DeliveryCounts: counts}, nil
}
