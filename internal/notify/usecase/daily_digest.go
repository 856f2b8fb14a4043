package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/goerror"
	"github.com/fundward/fundward/internal/pkg/valueobject"
)

type DailyDigestInput struct {
	// Now overrides the evaluation clock for manual and test runs.
	Now *time.Time
	// IgnoreTimeWindow skips the local-hour gate (manual trigger).
	IgnoreTimeWindow bool
	// ForceSend produces a uniquely-keyed one-off digest even when one was
	// already sent today or there is nothing to report. Preview use only.
	ForceSend bool
}

const (
	DigestReasonDuplicate = "duplicate"
	DigestReasonNothing   = "nothing_to_report"
)

// RunDailyDigest enqueues one shared Event summarizing grants marked sent
// today plus the approved-but-unsent backlog, addressed to all board members.
// The day_key audit row makes it a global once-per-day job.
func (s *Usecase) RunDailyDigest(ctx context.Context, in DailyDigestInput) (entity.DigestRunResult, error) {
	ctx, span := s.startSpan(ctx, "RunDailyDigest")
	defer span.End()

	var result entity.DigestRunResult

	now := s.jobNow(in.Now)
	loc := s.location()
	local := now.In(loc)

	if !in.IgnoreTimeWindow && local.Hour() < s.jobHour() {
		slog.InfoContext(ctx, "daily digest outside send window", "local_time", local.Format(time.RFC3339))
		return result, nil
	}
	result.Due = true

	key := dayKey(local)

	if !in.ForceSend {
		sent, err := s.repoDB.HasDigestAudit(ctx, key)
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo check digest audit", "day_key", key, "error", err)
			return result, goerror.NewServer(err)
		}
		if sent {
			result.Reason = DigestReasonDuplicate
			return result, nil
		}
	}

	// The lookback is wider than a day on purpose: the audit trail records UTC
	// instants, and a fixed 48h window then a local-day filter is simpler than
	// computing exact local-midnight bounds. The filter below keeps only
	// today's entries.
	marked, err := s.repoDB.ListGrantsMarkedSentSince(ctx, now.Add(-s.digestLookback()))
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list grants marked sent", "error", err)
		return result, goerror.NewServer(err)
	}

	sentToday := make([]entity.SentGrant, 0, len(marked))
	for _, grant := range marked {
		if dayKey(grant.MarkedSentAt.In(loc)) == key {
			sentToday = append(sentToday, grant)
		}
	}

	if len(sentToday) == 0 && !in.ForceSend {
		result.Reason = DigestReasonNothing
		return result, nil
	}

	outstanding, err := s.repoDB.ListApprovedUnsentGrants(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list approved unsent grants", "error", err)
		return result, goerror.NewServer(err)
	}

	recipients, err := s.repoDB.ListDigestRecipients(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list digest recipients", "error", err)
		return result, goerror.NewServer(err)
	}

	idemKey := "daily_digest:" + key + ":email"
	if in.ForceSend {
		// A forced run must never collide with the scheduled one.
		idemKey = "daily_digest:preview:" + s.uuid.Generate() + ":email"
	}

	res, err := s.Enqueue(ctx, EnqueueInput{
		Type:           entity.EventTypeDailyDigest,
		Channel:        entity.ChannelEmail,
		IdempotencyKey: idemKey,
		Content:        digestContent(local, sentToday, outstanding),
		Payload: valueobject.JSONMap{
			"day_key":           key,
			"sent_count":        len(sentToday),
			"outstanding_count": len(outstanding),
		},
		RecipientIDs: recipients,
	})
	if err != nil {
		return result, err
	}

	result.Reason = res.Reason
	result.EventID = res.EventID

	if res.Enqueued || res.Reason == entity.EnqueueReasonDuplicate {
		if err := s.repoDB.CreateDigestAudit(ctx, key); err != nil && !errors.Is(err, goerror.ErrConflict) {
			slog.ErrorContext(ctx, "failed to repo create digest audit", "day_key", key, "error", err)
		}
	}

	slog.InfoContext(ctx, "daily digest run finished",
		"day_key", key, "sent_today", len(sentToday), "outstanding", len(outstanding),
		"event_id", result.EventID, "reason", result.Reason)

	return result, nil
}

// digestHTMLTemplate renders the HTML body; grant titles are user-entered and
// html/template escapes them.
var digestHTMLTemplate = template.Must(template.New("digest").Option("missingkey=zero").Parse(
	`<h2>Grant digest for {{.Date}}</h2>` +
		`{{if .Sent}}<h3>Marked as sent today</h3><ul>{{range .Sent}}<li>{{.Title}} ({{.Amount}})</li>{{end}}</ul>` +
		`{{else}}<p>No grants were marked as sent today.</p>{{end}}` +
		`{{if .Outstanding}}<h3>Approved but not yet sent</h3><ul>{{range .Outstanding}}<li>{{.Title}} ({{.Amount}})</li>{{end}}</ul>{{end}}`))

type digestLine struct {
	Title  string
	Amount string
}

func digestContent(local time.Time, sent []entity.SentGrant, outstanding []entity.OutstandingGrant) entity.Content {
	date := local.Format("Monday, 2 January 2006")

	data := struct {
		Date              string
		Sent, Outstanding []digestLine
	}{Date: date}
	for _, g := range sent {
		data.Sent = append(data.Sent, digestLine{Title: g.Title, Amount: formatCents(g.AmountCents)})
	}
	for _, g := range outstanding {
		data.Outstanding = append(data.Outstanding, digestLine{Title: g.Title, Amount: formatCents(g.AmountCents)})
	}

	var html bytes.Buffer
	if err := digestHTMLTemplate.Execute(&html, data); err != nil {
		slog.Error("failed to render digest html", "error", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Grant digest for %s\n\n", date)
	if len(sent) > 0 {
		text.WriteString("Marked as sent today:\n")
		for _, line := range data.Sent {
			fmt.Fprintf(&text, "  - %s (%s)\n", line.Title, line.Amount)
		}
	} else {
		text.WriteString("No grants were marked as sent today.\n")
	}
	if len(outstanding) > 0 {
		text.WriteString("\nApproved but not yet sent:\n")
		for _, line := range data.Outstanding {
			fmt.Fprintf(&text, "  - %s (%s)\n", line.Title, line.Amount)
		}
	}

	return entity.Content{
		Subject:  "Grant digest for " + local.Format("2 January 2006"),
		TextBody: text.String(),
		HTMLBody: html.String(),
		LinkPath: "/grants",
	}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("EUR %d.%02d", cents/100, cents%100)
}
