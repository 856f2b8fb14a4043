package event

const ProposalAwaitingVoteDestination string = "proposal_awaiting_vote"
const ProposalAwaitingVoteConsumerNotify string = "proposal_awaiting_vote_notify"

type ProposalAwaitingVoteMessage struct {
	ProposalID    int64   `json:"proposal_id"`
	AuthorID      int64   `json:"author_id"`
	Title         string  `json:"title"`
	AmountCents   int64   `json:"amount_cents"`
	VoterIDs      []int64 `json:"voter_ids"`
	OccurrenceKey string  `json:"occurrence_key"`
}
