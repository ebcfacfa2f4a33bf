package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/go-chi/chi/v5"
)

type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context, handle, state string, limit int) ([]domain.Subscription, error)
	ReactivateSubscription(ctx context.Context, id string) (*domain.Subscription, error)
}

// WebhookTester sends one message to a webhook and reports whether it was accepted.
type WebhookTester interface {
	Deliver(ctx context.Context, endpoint, message string) bool
}

type SubscriptionHandler struct {
	store  SubscriptionStore
	tester WebhookTester
}

// NewSubscriptionHandler creates the handler. tester may be nil, in which case
// new webhooks are not sent a test message.
func NewSubscriptionHandler(s SubscriptionStore, tester WebhookTester) *SubscriptionHandler {
	return &SubscriptionHandler{store: s, tester: tester}
}

type createSubscriptionResponse struct {
	domain.Subscription
	WebhookVerified *bool `json:"webhook_verified,omitempty"`
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if domain.NormalizeHandle(req.MonitoredAccount) == "" {
		respondError(w, http.StatusBadRequest, "monitored_account is required")
		return
	}
	if !validWebhookURL(req.WebhookURL) {
		respondError(w, http.StatusBadRequest, "webhook_url must be an absolute http(s) URL")
		return
	}
	if strings.TrimSpace(req.NotifyTemplate) == "" {
		respondError(w, http.StatusBadRequest, "notify_template is required")
		return
	}

	sub, err := h.store.CreateSubscription(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	// The subscription is kept even if the test message is rejected.
	resp := createSubscriptionResponse{Subscription: *sub}
	if h.tester != nil {
		ok := h.tester.Deliver(r.Context(), sub.WebhookURL, TestMessage(sub.MonitoredAccount))
		resp.WebhookVerified = &ok
	}

	respondJSON(w, http.StatusCreated, resp)
}

// TestMessage is sent to a webhook right after it is subscribed.
func TestMessage(handle string) string {
	return fmt.Sprintf(":white_check_mark: This webhook will now receive new posts from **@%s**.", handle)
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	if state != "" && state != string(domain.StateActive) && state != string(domain.StateDisabled) {
		respondError(w, http.StatusBadRequest, "state must be active or disabled")
		return
	}

	subs, err := h.store.ListSubscriptions(r.Context(), domain.NormalizeHandle(q.Get("handle")), state, queryLimit(r, 100))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	respondJSON(w, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.GetSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	respondJSON(w, http.StatusOK, sub)
}

// Reactivate moves a disabled subscription back to active with a fresh expiry.
// The relay itself never does this.
func (h *SubscriptionHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.ReactivateSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reactivate subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	respondJSON(w, http.StatusOK, sub)
}

func validWebhookURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
