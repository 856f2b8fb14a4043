package usecase

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/config"
	"github.com/fundward/fundward/internal/pkg/goerror"
	"github.com/fundward/fundward/internal/pkg/instrument"
	"github.com/fundward/fundward/internal/pkg/jwt"
	"github.com/fundward/fundward/internal/pkg/validator"
)

// fixedClock pins the usecase clock to a single instant.
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

// seqNumberID hands out predictable int64 IDs starting at 1.
type seqNumberID struct {
	last int64
}

func (s *seqNumberID) Generate() int64 {
	s.last++
	return s.last
}

type seqStringID struct {
	last int
}

func (s *seqStringID) Generate() string {
	s.last++
	return fmt.Sprintf("uuid-%d", s.last)
}

// fakeAdapter replays canned SendResults in order and records every call.
type fakeAdapter struct {
	configured bool
	results    []entity.SendResult
	calls      []entity.DeliveryTarget
	contents   []entity.Content
}

func (a *fakeAdapter) Configured() bool {
	return a.configured
}

func (a *fakeAdapter) Send(_ context.Context, target entity.DeliveryTarget, content entity.Content) entity.SendResult {
	a.calls = append(a.calls, target)
	a.contents = append(a.contents, content)
	if len(a.results) == 0 {
		return entity.SendResult{OK: true}
	}
	res := a.results[0]
	if len(a.results) > 1 {
		a.results = a.results[1:]
	}
	return res
}

type retryMark struct {
	id            int64
	attemptCount  int32
	nextAttemptAt time.Time
	lastError     string
}

type failMark struct {
	id           int64
	status       entity.DeliveryStatus
	attemptCount int32
	lastError    string
}

// fakeRepo is an in-memory repoDB that mirrors the database semantics the
// usecases rely on: unique idempotency keys, delivery upsert dedup, the
// claim transition, and audit-row conflicts.
type fakeRepo struct {
	events      map[int64]*entity.Event
	eventByKey  map[string]int64
	deliveries  map[int64]*entity.Delivery
	prefs       map[int64]entity.Preferences
	subs        map[string]*entity.PushSubscription
	emails      map[int64]string
	reminded    map[string]map[int64]struct{}
	digestSent  map[string]bool
	candidates  []entity.ReminderCandidate
	sentGrants  []entity.SentGrant
	outstanding []entity.OutstandingGrant
	recipients  []int64

	retryMarks  []retryMark
	failMarks   []failMark
	deactivated []string

	createEventErr error
	listDueErr     error
	failClaims     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:     map[int64]*entity.Event{},
		eventByKey: map[string]int64{},
		deliveries: map[int64]*entity.Delivery{},
		prefs:      map[int64]entity.Preferences{},
		subs:       map[string]*entity.PushSubscription{},
		emails:     map[int64]string{},
		reminded:   map[string]map[int64]struct{}{},
		digestSent: map[string]bool{},
	}
}

func (f *fakeRepo) CreateEvent(_ context.Context, data entity.CreateEvent) error {
	if f.createEventErr != nil {
		return f.createEventErr
	}
	if _, exists := f.eventByKey[data.IdempotencyKey]; exists {
		return goerror.ErrConflict
	}
	f.eventByKey[data.IdempotencyKey] = data.ID
	f.events[data.ID] = &entity.Event{
		ID:             data.ID,
		Type:           data.Type,
		Channel:        data.Channel,
		ActorID:        data.ActorID,
		EntityID:       data.EntityID,
		IdempotencyKey: data.IdempotencyKey,
		Content:        data.Content,
		Payload:        data.Payload,
		RecipientIDs:   data.RecipientIDs,
	}
	return nil
}

func (f *fakeRepo) GetEvent(_ context.Context, id int64) (*entity.Event, error) {
	event, ok := f.events[id]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	clone := *event
	return &clone, nil
}

func (f *fakeRepo) FinalizeEvent(_ context.Context, id int64, now time.Time) (bool, error) {
	event, ok := f.events[id]
	if !ok || event.ProcessedAt != nil {
		return false, nil
	}
	for _, d := range f.deliveries {
		if d.EventID == id && (d.Status == entity.DeliveryStatusPending || d.Status == entity.DeliveryStatusProcessing) {
			return false, nil
		}
	}
	event.ProcessedAt = &now
	return true, nil
}

func (f *fakeRepo) CountEventDeliveries(_ context.Context, eventID int64) (map[entity.DeliveryStatus]int64, error) {
	counts := map[entity.DeliveryStatus]int64{}
	for _, d := range f.deliveries {
		if d.EventID == eventID {
			counts[d.Status]++
		}
	}
	return counts, nil
}

func (f *fakeRepo) UpsertDeliveries(_ context.Context, deliveries []entity.CreateDelivery) error {
	for _, in := range deliveries {
		exists := false
		for _, d := range f.deliveries {
			if d.EventID == in.EventID && d.UserID == in.UserID && d.Endpoint == in.Endpoint {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		f.deliveries[in.ID] = &entity.Delivery{
			ID:            in.ID,
			EventID:       in.EventID,
			UserID:        in.UserID,
			Endpoint:      in.Endpoint,
			Channel:       in.Channel,
			Status:        entity.DeliveryStatusPending,
			NextAttemptAt: in.NextAttemptAt,
		}
	}
	return nil
}

func (f *fakeRepo) ListDueDeliveries(_ context.Context, limit int32, eventID *int64, now time.Time) ([]entity.Delivery, error) {
	if f.listDueErr != nil {
		return nil, f.listDueErr
	}
	var due []entity.Delivery
	for _, d := range f.deliveries {
		if d.Status != entity.DeliveryStatusPending || d.NextAttemptAt.After(now) {
			continue
		}
		if eventID != nil && d.EventID != *eventID {
			continue
		}
		due = append(due, *d)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if int32(len(due)) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeRepo) ClaimDelivery(_ context.Context, id int64) (bool, error) {
	if f.failClaims > 0 {
		f.failClaims--
		return false, nil
	}
	d, ok := f.deliveries[id]
	if !ok || d.Status != entity.DeliveryStatusPending {
		return false, nil
	}
	d.Status = entity.DeliveryStatusProcessing
	return true, nil
}

func (f *fakeRepo) MarkDeliverySent(_ context.Context, id int64, attemptCount int32, sentAt time.Time) error {
	d := f.deliveries[id]
	d.Status = entity.DeliveryStatusSent
	d.AttemptCount = attemptCount
	d.SentAt = &sentAt
	return nil
}

func (f *fakeRepo) MarkDeliveryRetry(_ context.Context, id int64, attemptCount int32, nextAttemptAt time.Time, lastError string) error {
	d := f.deliveries[id]
	d.Status = entity.DeliveryStatusPending
	d.AttemptCount = attemptCount
	d.NextAttemptAt = nextAttemptAt
	d.LastError = lastError
	f.retryMarks = append(f.retryMarks, retryMark{id, attemptCount, nextAttemptAt, lastError})
	return nil
}

func (f *fakeRepo) MarkDeliveryFailed(_ context.Context, id int64, status entity.DeliveryStatus, attemptCount int32, lastError string) error {
	d := f.deliveries[id]
	d.Status = status
	d.AttemptCount = attemptCount
	d.LastError = lastError
	f.failMarks = append(f.failMarks, failMark{id, status, attemptCount, lastError})
	return nil
}

func (f *fakeRepo) ListPreferences(_ context.Context, userIDs []int64) (map[int64]entity.Preferences, error) {
	out := map[int64]entity.Preferences{}
	for _, id := range userIDs {
		if pref, ok := f.prefs[id]; ok {
			out[id] = pref
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertPreferences(_ context.Context, userID int64, pushEnabled bool, settings []entity.PreferenceSetting) error {
	events := map[entity.EventType]bool{}
	for _, s := range settings {
		events[s.EventType] = s.IsEnabled
	}
	f.prefs[userID] = entity.Preferences{PushEnabled: pushEnabled, Events: events}
	return nil
}

func (f *fakeRepo) ListActivePushSubscriptions(_ context.Context, userIDs []int64) (map[int64][]entity.PushSubscription, error) {
	out := map[int64][]entity.PushSubscription{}
	for _, id := range userIDs {
		for _, sub := range f.subs {
			if sub.UserID == id && sub.Active {
				out[id] = append(out[id], *sub)
			}
		}
		sort.Slice(out[id], func(a, b int) bool { return out[id][a].Endpoint < out[id][b].Endpoint })
	}
	return out, nil
}

func (f *fakeRepo) GetActivePushSubscription(_ context.Context, endpoint string) (*entity.PushSubscription, error) {
	sub, ok := f.subs[endpoint]
	if !ok || !sub.Active {
		return nil, goerror.ErrNotFound
	}
	clone := *sub
	return &clone, nil
}

func (f *fakeRepo) RegisterPushSubscription(_ context.Context, sub entity.PushSubscription) error {
	if existing, ok := f.subs[sub.Endpoint]; ok {
		sub.ID = existing.ID
	}
	sub.Active = true
	f.subs[sub.Endpoint] = &sub
	return nil
}

func (f *fakeRepo) DeactivatePushSubscription(_ context.Context, endpoint string) error {
	if sub, ok := f.subs[endpoint]; ok {
		sub.Active = false
	}
	f.deactivated = append(f.deactivated, endpoint)
	return nil
}

func (f *fakeRepo) GetVerifiedEmails(_ context.Context, userIDs []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range userIDs {
		if address, ok := f.emails[id]; ok {
			out[id] = address
		}
	}
	return out, nil
}

func (f *fakeRepo) ListRemindedUsers(_ context.Context, weekKey string, userIDs []int64) (map[int64]struct{}, error) {
	out := map[int64]struct{}{}
	for _, id := range userIDs {
		if _, ok := f.reminded[weekKey][id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateReminderAudit(_ context.Context, userID int64, weekKey string) error {
	if _, ok := f.reminded[weekKey][userID]; ok {
		return goerror.ErrConflict
	}
	if f.reminded[weekKey] == nil {
		f.reminded[weekKey] = map[int64]struct{}{}
	}
	f.reminded[weekKey][userID] = struct{}{}
	return nil
}

func (f *fakeRepo) HasDigestAudit(_ context.Context, dayKey string) (bool, error) {
	return f.digestSent[dayKey], nil
}

func (f *fakeRepo) CreateDigestAudit(_ context.Context, dayKey string) error {
	if f.digestSent[dayKey] {
		return goerror.ErrConflict
	}
	f.digestSent[dayKey] = true
	return nil
}

func (f *fakeRepo) ListReminderCandidates(_ context.Context) ([]entity.ReminderCandidate, error) {
	return f.candidates, nil
}

func (f *fakeRepo) ListGrantsMarkedSentSince(_ context.Context, since time.Time) ([]entity.SentGrant, error) {
	var out []entity.SentGrant
	for _, g := range f.sentGrants {
		if !g.MarkedSentAt.Before(since) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListApprovedUnsentGrants(_ context.Context) ([]entity.OutstandingGrant, error) {
	return f.outstanding, nil
}

func (f *fakeRepo) ListDigestRecipients(_ context.Context) ([]int64, error) {
	return f.recipients, nil
}

const testConfigYAML = `
notify:
  send_interval_ms: 1
`

// newTestUsecase wires a Usecase over the in-memory repo with a pinned clock.
// The goroutine manager is left nil so enqueue fan-out stays synchronous and
// deterministic; expansion and drain are invoked explicitly by the tests.
func newTestUsecase(t *testing.T, repo *fakeRepo, push, email *fakeAdapter, now time.Time) *Usecase {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(testConfigYAML))
	if err != nil {
		t.Fatalf("build config: %v", err)
	}

	val, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("build validator: %v", err)
	}

	return NewNotify(Dependency{
		RepoDB:     repo,
		Config:     cfg,
		UID:        &seqNumberID{last: 1000},
		UUID:       &seqStringID{},
		Clock:      &fixedClock{now: now},
		Validator:  val,
		Push:       push,
		Email:      email,
		Instrument: instrument.NewNoop(),
	})
}

func authCtx(userID int64) context.Context {
	return jwt.SetAuth(context.Background(), jwt.Claims{UserID: userID, UserEmail: fmt.Sprintf("u%d@fundward.app", userID)})
}
