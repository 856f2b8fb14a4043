package entity

import (
	"time"

	"github.com/fundward/fundward/internal/pkg/valueobject"
)

// Content is the rendered message attached to an Event. Push events use
// Title/Body, email events use Subject/HTMLBody/TextBody. LinkPath is a
// relative web path used for deep-linking on both channels.
type Content struct {
	Title    string
	Body     string
	Subject  string
	HTMLBody string
	TextBody string
	LinkPath string
}

type CreateEvent struct {
	ID             int64
	Type           EventType
	Channel        Channel
	ActorID        *int64
	EntityID       *int64
	IdempotencyKey string
	Content        Content
	Payload        valueobject.JSONMap
	RecipientIDs   []int64
}

type Event struct {
	ID             int64
	Type           EventType
	Channel        Channel
	ActorID        *int64
	EntityID       *int64
	IdempotencyKey string
	Content        Content
	Payload        valueobject.JSONMap
	RecipientIDs   []int64
	ProcessedAt    *time.Time
	CreatedAt      time.Time
}

type CreateDelivery struct {
	ID            int64
	EventID       int64
	UserID        int64
	Endpoint      string
	Channel       Channel
	NextAttemptAt time.Time
}

type Delivery struct {
	ID            int64
	EventID       int64
	UserID        int64
	Endpoint      string
	Channel       Channel
	Status        DeliveryStatus
	AttemptCount  int32
	NextAttemptAt time.Time
	LastError     string
	SentAt        *time.Time
	CreatedAt     time.Time
}

// Preferences holds one user's opt-in state. Events maps event types to an
// explicit flag; anything absent from the map is treated as enabled
// (fail-open, so new users without rows are still reachable).
type Preferences struct {
	PushEnabled bool
	Events      map[EventType]bool
}

// DefaultPreferences is what a user without any stored rows gets.
func DefaultPreferences() Preferences {
	return Preferences{PushEnabled: true, Events: map[EventType]bool{}}
}

// Allows reports whether the user accepts the given event type.
func (p Preferences) Allows(et EventType) bool {
	enabled, ok := p.Events[et]
	if !ok {
		return true
	}
	return enabled
}

type PreferenceSetting struct {
	EventType EventType
	IsEnabled bool
}

type PushSubscription struct {
	ID        int64
	UserID    int64
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
	Active    bool
	CreatedAt time.Time
}

type ReminderAudit struct {
	UserID    int64
	WeekKey   string
	CreatedAt time.Time
}

type DigestAudit struct {
	DayKey    string
	CreatedAt time.Time
}

const (
	EnqueueReasonDuplicate    = "duplicate"
	EnqueueReasonNoRecipients = "no_recipients"
)

type EnqueueResult struct {
	Enqueued bool
	EventID  int64
	Reason   string
}

// DrainResult aggregates one worker pass. ConfigMissing marks a pass that did
// nothing because the channel adapter has no credentials, which operators must
// be able to tell apart from "nothing was due".
type DrainResult struct {
	Processed         int
	Sent              int
	Failed            int
	PermanentFailures int
	PendingRetries    int
	Skipped           int
	ConfigMissing     bool
}

// EventStatus is the operator view of one Event and its outstanding work.
type EventStatus struct {
	Event          Event
	DeliveryCounts map[DeliveryStatus]int64
}

// ReminderRunResult reports one weekly-reminder invocation.
type ReminderRunResult struct {
	Due        bool
	Candidates int
	Enqueued   int
	Duplicates int
	Skipped    int
}

// DigestRunResult reports one daily-digest invocation.
type DigestRunResult struct {
	Due     bool
	Reason  string
	EventID int64
}

// ReminderCandidate summarizes one user's outstanding work for the weekly
// reminder: proposals awaiting their vote and proposals they authored that
// are still awaiting others.
type ReminderCandidate struct {
	UserID           int64
	OpenVotes        int32
	AuthoredAwaiting int32
}

type SentGrant struct {
	GrantID      int64
	Title        string
	AmountCents  int64
	MarkedSentAt time.Time
}

type OutstandingGrant struct {
	GrantID     int64
	Title       string
	AmountCents int64
	ApprovedAt  time.Time
}
