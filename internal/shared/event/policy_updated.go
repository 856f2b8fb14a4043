package event

const PolicyUpdatedDestination string = "policy_updated"
const PolicyUpdatedConsumerNotify string = "policy_updated_notify"

type PolicyUpdatedMessage struct {
	PolicyID      int64   `json:"policy_id"`
	EditorID      int64   `json:"editor_id"`
	Title         string  `json:"title"`
	Summary       string  `json:"summary"`
	RecipientIDs  []int64 `json:"recipient_ids"`
	OccurrenceKey string  `json:"occurrence_key"`
}
