package inbound

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/notify/usecase"
	"github.com/fundward/fundward/internal/pkg/config"
	"github.com/fundward/fundward/internal/pkg/goerror"
	"github.com/fundward/fundward/internal/pkg/idempotency"
	"github.com/fundward/fundward/internal/pkg/router"
)

const (
	triggerTokenHeader = "X-Trigger-Token"
	overlapLock        = 2 * time.Minute
)

type HTTPEndpoint struct {
	uc    uc
	cfg   config.Config
	idemp idempotency.Idempotency
}

// GetPreferences returns notification preferences.
// @Summary Get notification preferences
// @Description Returns notification preferences for the authenticated user.
// @Tags Notify
// @Security BearerAuth
// @Produce json
// @Success 200 {object} router.successResponse{data=PreferencesResponse} "Preferences"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notify/preferences [get]
func (h *HTTPEndpoint) GetPreferences(r *router.Request) (any, error) {
	pref, err := h.uc.GetPreferences(r.Context())
	if err != nil {
		return nil, err
	}

	events := make(map[string]bool, len(pref.Events))
	for et, enabled := range pref.Events {
		events[et.String()] = enabled
	}

	return PreferencesResponse{PushEnabled: pref.PushEnabled, Events: events}, nil
}

// UpdatePreferences overwrites notification preferences.
// @Summary Update notification preferences
// @Description Overwrites notification preferences for the authenticated user.
// @Tags Notify
// @Security BearerAuth
// @Accept json
// @Param request body UpdatePreferencesRequest true "Preferences payload"
// @Success 204 "No Content"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notify/preferences [put]
func (h *HTTPEndpoint) UpdatePreferences(r *router.Request) (any, error) {
	var req UpdatePreferencesRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	settings := make([]entity.PreferenceSetting, 0, len(req.Events))
	for name, enabled := range req.Events {
		settings = append(settings, entity.PreferenceSetting{
			EventType: entity.EventType(name),
			IsEnabled: enabled,
		})
	}

	return nil, h.uc.UpdatePreferences(r.Context(), usecase.UpdatePreferencesInput{
		PushEnabled: req.PushEnabled,
		Settings:    settings,
	})
}

// RegisterSubscription stores a browser push subscription.
// @Summary Register push subscription
// @Description Stores a web push subscription for the authenticated user.
// @Tags Notify
// @Security BearerAuth
// @Accept json
// @Param request body RegisterSubscriptionRequest true "Subscription payload"
// @Success 204 "No Content"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notify/subscriptions [post]
func (h *HTTPEndpoint) RegisterSubscription(r *router.Request) (any, error) {
	var req RegisterSubscriptionRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	return nil, h.uc.RegisterSubscription(r.Context(), usecase.RegisterSubscriptionInput{
		Endpoint:  req.Endpoint,
		P256dh:    req.P256dh,
		Auth:      req.Auth,
		UserAgent: req.UserAgent,
	})
}

// RemoveSubscription deactivates a push subscription.
// @Summary Remove push subscription
// @Description Deactivates a web push subscription for the authenticated user.
// @Tags Notify
// @Security BearerAuth
// @Accept json
// @Param request body RemoveSubscriptionRequest true "Subscription payload"
// @Success 204 "No Content"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "Subscription not found"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notify/subscriptions [delete]
func (h *HTTPEndpoint) RemoveSubscription(r *router.Request) (any, error) {
	var req RemoveSubscriptionRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	return nil, h.uc.RemoveSubscription(r.Context(), usecase.RemoveSubscriptionInput{Endpoint: req.Endpoint})
}

// GetEventStatus returns one event with delivery counts.
// @Summary Get event status
// @Description Returns one notification event with delivery counts by status.
// @Tags Notify
// @Security BearerAuth
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} router.successResponse{data=EventStatusResponse} "Event status"
// @Failure 400 {object} router.errorResponse "Invalid event id"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "Event not found"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notify/events/{id} [get]
func (h *HTTPEndpoint) GetEventStatus(r *router.Request) (any, error) {
	id, err := r.GetParamInt64("id")
	if err != nil {
		return nil, goerror.NewInvalidFormat()
	}

	status, err := h.uc.GetEventStatus(r.Context(), id)
	if err != nil {
		return nil, err
	}

	deliveries := make(map[string]int64, len(status.DeliveryCounts))
	for st, count := range status.DeliveryCounts {
		deliveries[st.String()] = count
	}

	return EventStatusResponse{
		ID:             status.Event.ID,
		Type:           status.Event.Type.String(),
		Channel:        status.Event.Channel.String(),
		IdempotencyKey: status.Event.IdempotencyKey,
		Recipients:     len(status.Event.RecipientIDs),
		ProcessedAt:    status.Event.ProcessedAt,
		CreatedAt:      status.Event.CreatedAt,
		Deliveries:     deliveries,
	}, nil
}

// ProcessDeliveries runs one worker pass over due deliveries.
// @Summary Process due deliveries
// @Description Claims and attempts due deliveries. Cron-facing, shared-token auth.
// @Tags Notify
// @Accept json
// @Produce json
// @Param request body ProcessDeliveriesRequest false "Drain options"
// @Success 200 {object} router.successResponse{data=DrainResponse} "Drain result"
// @Failure 401 {object} router.errorResponse "Invalid trigger token"
// @Failure 409 {object} router.errorResponse "Trigger already running"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notify/deliveries/process [post]
func (h *HTTPEndpoint) ProcessDeliveries(r *router.Request) (any, error) {
	if err := h.checkTriggerToken(r); err != nil {
		return nil, err
	}

	var req ProcessDeliveriesRequest
	if r.ContentLength > 0 {
		if err := r.DecodeBody(&req); err != nil {
			return nil, err
		}
	}

	return h.runGuarded(r.Context(), "notify:deliveries:process", func(ctx context.Context) (any, error) {
		result, err := h.uc.Drain(ctx, usecase.DrainInput{Limit: req.Limit, EventID: req.EventID})
		if err != nil {
			return nil, err
		}

		return DrainResponse{
			Processed:         result.Processed,
			Sent:              result.Sent,
			Failed:            result.Failed,
			PermanentFailures: result.PermanentFailures,
			PendingRetries:    result.PendingRetries,
			Skipped:           result.Skipped,
			ConfigMissing:     result.ConfigMissing,
		}, nil
	})
}

// RunWeeklyReminder triggers the weekly action reminder job.
// @Summary Run weekly reminder job
// @Description Enqueues weekly reminders for members with outstanding work. Cron-facing, shared-token auth.
// @Tags Notify
// @Accept json
// @Produce json
// @Param request body RunWeeklyReminderRequest false "Job options"
// @Success 200 {object} router.successResponse{data=WeeklyReminderResponse} "Job result"
// @Failure 401 {object} router.errorResponse "Invalid trigger token"
// @Failure 409 {object} router.errorResponse "Trigger already running"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notify/jobs/weekly-reminder [post]
func (h *HTTPEndpoint) RunWeeklyReminder(r *router.Request) (any, error) {
	if err := h.checkTriggerToken(r); err != nil {
		return nil, err
	}

	var req RunWeeklyReminderRequest
	if r.ContentLength > 0 {
		if err := r.DecodeBody(&req); err != nil {
			return nil, err
		}
	}

	now, err := parseOptionalTime(req.Now)
	if err != nil {
		return nil, goerror.NewInvalidFormat()
	}

	return h.runGuarded(r.Context(), "notify:jobs:weekly_reminder", func(ctx context.Context) (any, error) {
		result, err := h.uc.RunWeeklyReminder(ctx, usecase.WeeklyReminderInput{Now: now})
		if err != nil {
			return nil, err
		}

		return WeeklyReminderResponse{
			Due:        result.Due,
			Candidates: result.Candidates,
			Enqueued:   result.Enqueued,
			Duplicates: result.Duplicates,
			Skipped:    result.Skipped,
		}, nil
	})
}

// RunDailyDigest triggers the daily sent-digest job.
// @Summary Run daily digest job
// @Description Enqueues the daily digest of sent and outstanding grants. Cron-facing, shared-token auth.
// @Tags Notify
// @Accept json
// @Produce json
// @Param request body RunDailyDigestRequest false "Job options"
// @Success 200 {object} router.successResponse{data=DailyDigestResponse} "Job result"
// @Failure 401 {object} router.errorResponse "Invalid trigger token"
// @Failure 409 {object} router.errorResponse "Trigger already running"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/notify/jobs/daily-digest [post]
func (h *HTTPEndpoint) RunDailyDigest(r *router.Request) (any, error) {
	if err := h.checkTriggerToken(r); err != nil {
		return nil, err
	}

	var req RunDailyDigestRequest
	if r.ContentLength > 0 {
		if err := r.DecodeBody(&req); err != nil {
			return nil, err
		}
	}

	now, err := parseOptionalTime(req.Now)
	if err != nil {
		return nil, goerror.NewInvalidFormat()
	}

	return h.runGuarded(r.Context(), "notify:jobs:daily_digest", func(ctx context.Context) (any, error) {
		result, err := h.uc.RunDailyDigest(ctx, usecase.DailyDigestInput{
			Now:              now,
			IgnoreTimeWindow: req.IgnoreTimeWindow,
			ForceSend:        req.ForceSend,
		})
		if err != nil {
			return nil, err
		}

		return DailyDigestResponse{
			Due:     result.Due,
			Reason:  result.Reason,
			EventID: result.EventID,
		}, nil
	})
}

func (h *HTTPEndpoint) checkTriggerToken(r *router.Request) error {
	expected := h.cfg.GetString("notify.trigger_token")
	got := r.Header.Get(triggerTokenHeader)

	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return goerror.NewBusiness("invalid trigger token", goerror.CodeUnauthorized)
	}

	return nil
}

// runGuarded wraps a trigger in a short redis lock so overlapping cron firings
// collapse into one run. The lock is advisory: if redis is unavailable the
// trigger still runs, because the database constraints stay authoritative.
func (h *HTTPEndpoint) runGuarded(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if h.idemp == nil {
		return fn(ctx)
	}

	state, err := h.idemp.Acquire(ctx, key, overlapLock)
	if err != nil {
		slog.WarnContext(ctx, "overlap guard unavailable, running unguarded", "key", key, "error", err)
		return fn(ctx)
	}
	if state == idempotency.StateInProgress {
		return nil, goerror.NewBusiness("trigger already running", goerror.CodeConflict)
	}

	out, err := fn(ctx)

	// Release quickly; the next cron firing must be able to run.
	if markErr := h.idemp.MarkCompleted(ctx, key, time.Second); markErr != nil {
		slog.WarnContext(ctx, "failed to release overlap guard", "key", key, "error", markErr)
	}

	return out, err
}

func parseOptionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
