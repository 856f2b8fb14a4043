package usecase

import (
	"context"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/clock"
	"github.com/fundward/fundward/internal/pkg/config"
	"github.com/fundward/fundward/internal/pkg/goerror"
	"github.com/fundward/fundward/internal/pkg/goroutine"
	"github.com/fundward/fundward/internal/pkg/instrument"
	"github.com/fundward/fundward/internal/pkg/jwt"
	"github.com/fundward/fundward/internal/pkg/uid"
	"github.com/fundward/fundward/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

type repoDB interface {
	CreateEvent(ctx context.Context, data entity.CreateEvent) error
	GetEvent(ctx context.Context, id int64) (*entity.Event, error)
	FinalizeEvent(ctx context.Context, id int64, now time.Time) (bool, error)
	CountEventDeliveries(ctx context.Context, eventID int64) (map[entity.DeliveryStatus]int64, error)

	UpsertDeliveries(ctx context.Context, deliveries []entity.CreateDelivery) error
	ListDueDeliveries(ctx context.Context, limit int32, eventID *int64, now time.Time) ([]entity.Delivery, error)
	ClaimDelivery(ctx context.Context, id int64) (bool, error)
	MarkDeliverySent(ctx context.Context, id int64, attemptCount int32, sentAt time.Time) error
	MarkDeliveryRetry(ctx context.Context, id int64, attemptCount int32, nextAttemptAt time.Time, lastError string) error
	MarkDeliveryFailed(ctx context.Context, id int64, status entity.DeliveryStatus, attemptCount int32, lastError string) error

	ListPreferences(ctx context.Context, userIDs []int64) (map[int64]entity.Preferences, error)
	UpsertPreferences(ctx context.Context, userID int64, pushEnabled bool, settings []entity.PreferenceSetting) error

	ListActivePushSubscriptions(ctx context.Context, userIDs []int64) (map[int64][]entity.PushSubscription, error)
	GetActivePushSubscription(ctx context.Context, endpoint string) (*entity.PushSubscription, error)
	RegisterPushSubscription(ctx context.Context, sub entity.PushSubscription) error
	DeactivatePushSubscription(ctx context.Context, endpoint string) error

	GetVerifiedEmails(ctx context.Context, userIDs []int64) (map[int64]string, error)

	ListRemindedUsers(ctx context.Context, weekKey string, userIDs []int64) (map[int64]struct{}, error)
	CreateReminderAudit(ctx context.Context, userID int64, weekKey string) error
	HasDigestAudit(ctx context.Context, dayKey string) (bool, error)
	CreateDigestAudit(ctx context.Context, dayKey string) error

	ListReminderCandidates(ctx context.Context) ([]entity.ReminderCandidate, error)
	ListGrantsMarkedSentSince(ctx context.Context, since time.Time) ([]entity.SentGrant, error)
	ListApprovedUnsentGrants(ctx context.Context) ([]entity.OutstandingGrant, error)
	ListDigestRecipients(ctx context.Context) ([]int64, error)
}

// ChannelAdapter is the boundary to one concrete transport. The core never
// sees provider wire formats, only the normalized three-way SendResult.
type ChannelAdapter interface {
	// Configured reports whether the adapter has credentials to send at all.
	Configured() bool
	// Send performs exactly one delivery attempt with a bounded timeout.
	Send(ctx context.Context, target entity.DeliveryTarget, content entity.Content) entity.SendResult
}

type Usecase struct {
	repoDB    repoDB
	cfg       config.Config
	uid       uid.NumberID
	uuid      uid.StringID
	clock     clock.Clocker
	validator validator.Validator
	routine   *goroutine.Manager
	push      ChannelAdapter
	email     ChannelAdapter
	ins       instrument.Instrumentation
}

type Dependency struct {
	RepoDB     repoDB
	Config     config.Config
	UID        uid.NumberID
	UUID       uid.StringID
	Clock      clock.Clocker
	Validator  validator.Validator
	Goroutine  *goroutine.Manager
	Push       ChannelAdapter
	Email      ChannelAdapter
	Instrument instrument.Instrumentation
}

func NewNotify(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:    dep.RepoDB,
		cfg:       dep.Config,
		uid:       dep.UID,
		uuid:      dep.UUID,
		clock:     dep.Clock,
		validator: dep.Validator,
		routine:   dep.Goroutine,
		push:      dep.Push,
		email:     dep.Email,
		ins:       dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("notify.usecase").Start(ctx, name)
}

func (s *Usecase) requireAuth(ctx context.Context) (*jwt.Claims, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewBusiness("authentication required", goerror.CodeUnauthorized)
	}

	return clm, nil
}

func (s *Usecase) adapterFor(ch entity.Channel) ChannelAdapter {
	switch ch {
	case entity.ChannelPush:
		return s.push
	case entity.ChannelEmail:
		return s.email
	default:
		return nil
	}
}

// Config-backed tunables. Defaults are tuned to the push provider's
// documented rate ceiling.

func (s *Usecase) maxAttempts() int32 {
	if v := s.cfg.GetInt32("notify.max_attempts"); v > 0 {
		return v
	}
	return 5
}

func (s *Usecase) backoffCapMinutes() int32 {
	if v := s.cfg.GetInt32("notify.backoff_cap_minutes"); v > 0 {
		return v
	}
	return 60
}

func (s *Usecase) sendInterval() time.Duration {
	if v := s.cfg.GetInt64("notify.send_interval_ms"); v > 0 {
		return time.Duration(v) * time.Millisecond
	}
	return 600 * time.Millisecond
}

func (s *Usecase) drainLimit() int32 {
	if v := s.cfg.GetInt32("notify.drain_limit"); v > 0 {
		return v
	}
	return 100
}
