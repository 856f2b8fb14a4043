package event

const GrantMarkedSentDestination string = "grant_marked_sent"
const GrantMarkedSentConsumerNotify string = "grant_marked_sent_notify"

type GrantMarkedSentMessage struct {
	GrantID       int64   `json:"grant_id"`
	ProposalID    int64   `json:"proposal_id"`
	Title         string  `json:"title"`
	AmountCents   int64   `json:"amount_cents"`
	RecipientIDs  []int64 `json:"recipient_ids"`
	OccurrenceKey string  `json:"occurrence_key"`
}
