package domain

import "time"

// Pipeline event types pushed to live feed clients.
const (
	EventPostAdmitted         = "post.admitted"
	EventDelivery             = "delivery"
	EventSubscriptionDisabled = "subscription.disabled"
	EventCycleCompleted       = "cycle.completed"
	EventCycleFailed          = "cycle.failed"
)

// PipelineEvent is a broadcast-only notice about what the relay just did.
type PipelineEvent struct {
	Type           string    `json:"type"`
	Handle         string    `json:"handle,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	PostURL        string    `json:"post_url,omitempty"`
	Status         string    `json:"status,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
