package usecase

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/goerror"
	"github.com/fundward/fundward/internal/pkg/valueobject"
	"github.com/samber/lo"
)

type WeeklyReminderInput struct {
	// Now overrides the evaluation clock for manual and test runs.
	Now *time.Time
}

// RunWeeklyReminder enqueues one personalized reminder per user with
// outstanding committee work. Gated to the configured weekday and hour in
// the reference time zone; the (user, week_key) audit row caps each user at
// one reminder per ISO week no matter how often the trigger fires.
func (s *Usecase) RunWeeklyReminder(ctx context.Context, in WeeklyReminderInput) (entity.ReminderRunResult, error) {
	ctx, span := s.startSpan(ctx, "RunWeeklyReminder")
	defer span.End()

	var result entity.ReminderRunResult

	local := s.jobNow(in.Now).In(s.location())
	if local.Weekday() != s.reminderWeekday() || local.Hour() < s.jobHour() {
		slog.InfoContext(ctx, "weekly reminder outside send window", "local_time", local.Format(time.RFC3339))
		return result, nil
	}
	result.Due = true

	key := weekKey(local)

	candidates, err := s.repoDB.ListReminderCandidates(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list reminder candidates", "error", err)
		return result, goerror.NewServer(err)
	}
	result.Candidates = len(candidates)
	if len(candidates) == 0 {
		return result, nil
	}

	// Bulk dedup check before rendering anything.
	userIDs := lo.Map(candidates, func(c entity.ReminderCandidate, _ int) int64 { return c.UserID })
	reminded, err := s.repoDB.ListRemindedUsers(ctx, key, userIDs)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list reminded users", "week_key", key, "error", err)
		return result, goerror.NewServer(err)
	}

	for _, candidate := range candidates {
		if _, done := reminded[candidate.UserID]; done {
			result.Skipped++
			continue
		}

		enqueued, err := s.remindUser(ctx, candidate, key)
		if err != nil {
			return result, err
		}
		if enqueued {
			result.Enqueued++
		} else {
			result.Duplicates++
		}

		// The audit row lands only after the enqueue settled; a crash before
		// this point just means the next run retries, which the idempotency
		// keys absorb.
		if err := s.repoDB.CreateReminderAudit(ctx, candidate.UserID, key); err != nil && !errors.Is(err, goerror.ErrConflict) {
			slog.ErrorContext(ctx, "failed to repo create reminder audit",
				"user_id", candidate.UserID, "week_key", key, "error", err)
		}
	}

	slog.InfoContext(ctx, "weekly reminder run finished",
		"week_key", key, "candidates", result.Candidates, "enqueued", result.Enqueued,
		"duplicates", result.Duplicates, "skipped", result.Skipped)

	return result, nil
}

// remindUser enqueues the push and email reminder Events for one candidate.
// Returns true when at least one Event was newly created.
func (s *Usecase) remindUser(ctx context.Context, candidate entity.ReminderCandidate, key string) (bool, error) {
	body := reminderBody(candidate)
	payload := valueobject.JSONMap{
		"week_key":          key,
		"open_votes":        candidate.OpenVotes,
		"authored_awaiting": candidate.AuthoredAwaiting,
	}

	pushRes, err := s.Enqueue(ctx, EnqueueInput{
		Type:           entity.EventTypeWeeklyReminder,
		Channel:        entity.ChannelPush,
		IdempotencyKey: fmt.Sprintf("weekly_reminder:%s:u%d:push", key, candidate.UserID),
		Content: entity.Content{
			Title:    "Your weekly committee reminder",
			Body:     body,
			LinkPath: "/proposals",
		},
		Payload:      payload,
		RecipientIDs: []int64{candidate.UserID},
	})
	if err != nil {
		return false, err
	}

	emailRes, err := s.Enqueue(ctx, EnqueueInput{
		Type:           entity.EventTypeWeeklyReminder,
		Channel:        entity.ChannelEmail,
		IdempotencyKey: fmt.Sprintf("weekly_reminder:%s:u%d:email", key, candidate.UserID),
		Content: entity.Content{
			Subject:  "Your weekly committee reminder",
			TextBody: body + "\n\nOpen the proposals page to catch up.",
			HTMLBody: fmt.Sprintf("<p>%s</p><p><a href=\"/proposals\">Open the proposals page</a> to catch up.</p>", template.HTMLEscapeString(body)),
			LinkPath: "/proposals",
		},
		Payload:      payload,
		RecipientIDs: []int64{candidate.UserID},
	})
	if err != nil {
		return false, err
	}

	return pushRes.Enqueued || emailRes.Enqueued, nil
}

func reminderBody(c entity.ReminderCandidate) string {
	switch {
	case c.OpenVotes > 0 && c.AuthoredAwaiting > 0:
		return fmt.Sprintf("%s awaiting your vote, and %s you authored still awaiting others.",
			countProposals(c.OpenVotes), countProposals(c.AuthoredAwaiting))
	case c.OpenVotes > 0:
		return fmt.Sprintf("%s awaiting your vote.", countProposals(c.OpenVotes))
	default:
		return fmt.Sprintf("%s you authored still awaiting votes from others.", countProposals(c.AuthoredAwaiting))
	}
}

func countProposals(n int32) string {
	if n == 1 {
		return "1 proposal"
	}
	return fmt.Sprintf("%d proposals", n)
}
