package inbound

import (
	"context"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/notify/usecase"
)

type ucEnqueue interface {
	Enqueue(ctx context.Context, in usecase.EnqueueInput) (entity.EnqueueResult, error)
}

type ucTrigger interface {
	Drain(ctx context.Context, in usecase.DrainInput) (entity.DrainResult, error)
	RunWeeklyReminder(ctx context.Context, in usecase.WeeklyReminderInput) (entity.ReminderRunResult, error)
	RunDailyDigest(ctx context.Context, in usecase.DailyDigestInput) (entity.DigestRunResult, error)
}

type uc interface {
	ucEnqueue
	ucTrigger

	GetPreferences(ctx context.Context) (entity.Preferences, error)
	UpdatePreferences(ctx context.Context, in usecase.UpdatePreferencesInput) error
	RegisterSubscription(ctx context.Context, in usecase.RegisterSubscriptionInput) error
	RemoveSubscription(ctx context.Context, in usecase.RemoveSubscriptionInput) error
	GetEventStatus(ctx context.Context, eventID int64) (*entity.EventStatus, error)
}
