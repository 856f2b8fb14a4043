package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/goerror"
)

type RegisterSubscriptionInput struct {
	Endpoint  string `validate:"required,url,max=2048"`
	P256dh    string `validate:"required,max=512"`
	Auth      string `validate:"required,max=256"`
	UserAgent string `validate:"max=512"`
}

// RegisterSubscription stores a browser push subscription for the caller.
// Re-registering an existing endpoint reactivates it and refreshes its keys,
// which is what browsers do after a subscription rotates.
func (s *Usecase) RegisterSubscription(ctx context.Context, in RegisterSubscriptionInput) error {
	ctx, span := s.startSpan(ctx, "RegisterSubscription")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return err
	}

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	sub := entity.PushSubscription{
		ID:        s.uid.Generate(),
		UserID:    clm.UserID,
		Endpoint:  in.Endpoint,
		P256dh:    in.P256dh,
		Auth:      in.Auth,
		UserAgent: in.UserAgent,
		Active:    true,
	}

	if err := s.repoDB.RegisterPushSubscription(ctx, sub); err != nil {
		slog.ErrorContext(ctx, "failed to repo register push subscription", "user_id", clm.UserID, "error", err)
		return goerror.NewServer(err)
	}

	return nil
}

type RemoveSubscriptionInput struct {
	Endpoint string `validate:"required,max=2048"`
}

// RemoveSubscription deactivates the caller's push subscription for the given
// endpoint. Deactivation keeps the row so delivery history stays resolvable.
func (s *Usecase) RemoveSubscription(ctx context.Context, in RemoveSubscriptionInput) error {
	ctx, span := s.startSpan(ctx, "RemoveSubscription")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return err
	}

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	sub, err := s.repoDB.GetActivePushSubscription(ctx, in.Endpoint)
	if errors.Is(err, goerror.ErrNotFound) {
		return goerror.NewBusiness("subscription not found", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get push subscription", "error", err)
		return goerror.NewServer(err)
	}
	if sub.UserID != clm.UserID {
		return goerror.NewBusiness("subscription not found", goerror.CodeNotFound)
	}

	if err := s.repoDB.DeactivatePushSubscription(ctx, in.Endpoint); err != nil {
		slog.ErrorContext(ctx, "failed to repo deactivate push subscription", "error", err)
		return goerror.NewServer(err)
	}

	return nil
}
