package usecase

import (
	"context"
	"log/slog"

	"github.com/fundward/fundward/internal/pkg/goerror"
)

// Finalize stamps processed_at on each Event that has no pending or
// processing Deliveries left. Idempotent: already-stamped events and events
// with outstanding work are left untouched.
func (s *Usecase) Finalize(ctx context.Context, eventIDs []int64) error {
	ctx, span := s.startSpan(ctx, "Finalize")
	defer span.End()

	for _, id := range eventIDs {
		done, err := s.repoDB.FinalizeEvent(ctx, id, s.clock.Now())
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo finalize event", "event_id", id, "error", err)
			return goerror.NewServer(err)
		}
		if done {
			slog.InfoContext(ctx, "event fully processed", "event_id", id)
		}
	}

	return nil
}
