package domain

import (
	"strings"
	"time"
)

// SubscriptionState is the lifecycle state of a subscription.
type SubscriptionState string

const (
	StateActive   SubscriptionState = "active"
	StateDisabled SubscriptionState = "disabled"
)

// Subscription binds a monitored account to a webhook and a message template.
type Subscription struct {
	ID               string            `json:"id"`
	MonitoredAccount string            `json:"monitored_account"`
	WebhookURL       string            `json:"webhook_url"`
	NotifyTemplate   string            `json:"notify_template"`
	State            SubscriptionState `json:"state"`
	DisabledReason   *string           `json:"disabled_reason,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Handle returns the normalized monitored account handle.
func (s Subscription) Handle() string {
	return NormalizeHandle(s.MonitoredAccount)
}

type CreateSubscriptionRequest struct {
	MonitoredAccount string `json:"monitored_account"`
	WebhookURL       string `json:"webhook_url"`
	NotifyTemplate   string `json:"notify_template"`
}

// NormalizeHandle trims whitespace and a leading "@" and lowercases the handle.
// Handles on the platform are case-insensitive, so grouping and cursor keys use this form.
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(h)
}

// Credential is one scraper login from the configured pool.
type Credential struct {
	Username string
	Secret   string
}

// String never includes the secret.
func (c Credential) String() string {
	return c.Username
}
