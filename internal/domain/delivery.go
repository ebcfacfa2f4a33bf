package domain

import (
	"time"
)

// Delivery kinds: a relayed post or a lifecycle error notice.
const (
	DeliveryKindPost  = "post"
	DeliveryKindError = "error"
)

type DeliveryAttempt struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	Handle         string    `json:"handle"`
	Kind           string    `json:"kind"`
	PostURL        *string   `json:"post_url,omitempty"`
	Status         string    `json:"status"`
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ResponseTimeMs *int      `json:"response_time_ms,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
