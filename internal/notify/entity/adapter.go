package entity

// DeliveryTarget is the resolved destination handed to a channel adapter.
// Exactly one of Push or Email is populated, matching the delivery channel.
type DeliveryTarget struct {
	UserID int64
	Push   *PushSubscription
	Email  string
}

// SendResult is the normalized three-way outcome of one adapter call.
// OK means delivered. Permanent means the endpoint will never accept this
// message and retrying is pointless. Neither set means a transient failure
// worth retrying with backoff.
type SendResult struct {
	OK                bool
	Permanent         bool
	ProviderMessageID string
	ErrorMessage      string
}
