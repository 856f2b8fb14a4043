package event

const ProposalDecidedDestination string = "proposal_decided"
const ProposalDecidedConsumerNotify string = "proposal_decided_notify"

type ProposalDecidedMessage struct {
	ProposalID    int64   `json:"proposal_id"`
	Title         string  `json:"title"`
	Outcome       string  `json:"outcome"` // approved | rejected
	RecipientIDs  []int64 `json:"recipient_ids"`
	OccurrenceKey string  `json:"occurrence_key"`
}
