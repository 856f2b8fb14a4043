package entity

import (
	"strings"
)

type Channel int16

const (
	ChannelUnknown Channel = 0
	ChannelPush    Channel = 1
	ChannelEmail   Channel = 2
)

func ChannelFromString(raw string) Channel {
	switch strings.TrimSpace(raw) {
	case "push":
		return ChannelPush
	case "email":
		return ChannelEmail
	default:
		return ChannelUnknown
	}
}

func (c Channel) String() string {
	switch c {
	case ChannelPush:
		return "push"
	case ChannelEmail:
		return "email"
	default:
		return "unknown"
	}
}

type DeliveryStatus int16

const (
	DeliveryStatusUnknown           DeliveryStatus = 0
	DeliveryStatusPending           DeliveryStatus = 1
	DeliveryStatusProcessing        DeliveryStatus = 2
	DeliveryStatusSent              DeliveryStatus = 3
	DeliveryStatusFailed            DeliveryStatus = 4
	DeliveryStatusPermanentlyFailed DeliveryStatus = 5
)

func (s DeliveryStatus) String() string {
	switch s {
	case DeliveryStatusPending:
		return "pending"
	case DeliveryStatusProcessing:
		return "processing"
	case DeliveryStatusSent:
		return "sent"
	case DeliveryStatusFailed:
		return "failed"
	case DeliveryStatusPermanentlyFailed:
		return "permanently_failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status can never transition again.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusSent || s == DeliveryStatusFailed || s == DeliveryStatusPermanentlyFailed
}

type EventType string

const (
	EventTypeProposalAwaitingVote EventType = "proposal_awaiting_vote"
	EventTypeProposalDecided      EventType = "proposal_decided"
	EventTypePolicyUpdated        EventType = "policy_updated"
	EventTypeGrantMarkedSent      EventType = "grant_marked_sent"
	EventTypeWeeklyReminder       EventType = "weekly_reminder"
	EventTypeDailyDigest          EventType = "daily_digest"
)

// KnownEventTypes is the closed set accepted by enqueue and preference updates.
var KnownEventTypes = []EventType{
	EventTypeProposalAwaitingVote,
	EventTypeProposalDecided,
	EventTypePolicyUpdated,
	EventTypeGrantMarkedSent,
	EventTypeWeeklyReminder,
	EventTypeDailyDigest,
}

func (et EventType) String() string {
	return string(et)
}

func (et EventType) Known() bool {
	for _, known := range KnownEventTypes {
		if et == known {
			return true
		}
	}
	return false
}
