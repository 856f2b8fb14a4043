package inbound

import "time"

type PreferencesResponse struct {
	PushEnabled bool            `json:"push_enabled"`
	Events      map[string]bool `json:"events"`
}

type UpdatePreferencesRequest struct {
	PushEnabled bool            `json:"push_enabled"`
	Events      map[string]bool `json:"events"`
}

type RegisterSubscriptionRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dh    string `json:"p256dh"`
	Auth      string `json:"auth"`
	UserAgent string `json:"user_agent"`
}

type RemoveSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
}

type ProcessDeliveriesRequest struct {
	Limit   int32  `json:"limit"`
	EventID *int64 `json:"event_id"`
}

type DrainResponse struct {
	Processed         int  `json:"processed"`
	Sent              int  `json:"sent"`
	Failed            int  `json:"failed"`
	PermanentFailures int  `json:"permanent_failures"`
	PendingRetries    int  `json:"pending_retries"`
	Skipped           int  `json:"skipped"`
	ConfigMissing     bool `json:"config_missing"`
}

type RunWeeklyReminderRequest struct {
	// Now overrides the evaluation clock, RFC 3339. Manual runs only.
	Now string `json:"now,omitempty"`
}

type WeeklyReminderResponse struct {
	Due        bool `json:"due"`
	Candidates int  `json:"candidates"`
	Enqueued   int  `json:"enqueued"`
	Duplicates int  `json:"duplicates"`
	Skipped    int  `json:"skipped"`
}

type RunDailyDigestRequest struct {
	Now              string `json:"now,omitempty"`
	IgnoreTimeWindow bool   `json:"ignore_time_window"`
	ForceSend        bool   `json:"force_send"`
}

type DailyDigestResponse struct {
	Due     bool   `json:"due"`
	Reason  string `json:"reason,omitempty"`
	EventID int64  `json:"event_id,omitempty,string"`
}

type EventStatusResponse struct {
	ID             int64            `json:"id,string"`
	Type           string           `json:"type"`
	Channel        string           `json:"channel"`
	IdempotencyKey string           `json:"idempotency_key"`
	Recipients     int              `json:"recipients"`
	ProcessedAt    *time.Time       `json:"processed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	Deliveries     map[string]int64 `json:"deliveries"`
}
