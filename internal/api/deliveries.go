package api

import (
	"context"
	"net/http"

	"github.com/Priya8975/post-relay/internal/domain"
)

type DeliveryLog interface {
	ListDeliveryAttempts(ctx context.Context, subscriptionID, handle, status string, limit int) ([]domain.DeliveryAttempt, error)
}

type DeliveryHandler struct {
	store DeliveryLog
}

func NewDeliveryHandler(s DeliveryLog) *DeliveryHandler {
	return &DeliveryHandler{store: s}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	attempts, err := h.store.ListDeliveryAttempts(r.Context(),
		q.Get("subscription_id"),
		domain.NormalizeHandle(q.Get("handle")),
		q.Get("status"),
		queryLimit(r, 50),
	)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list delivery attempts")
		return
	}

	respondJSON(w, http.StatusOK, attempts)
}
