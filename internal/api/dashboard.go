package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/Priya8975/post-relay/internal/store"
	"github.com/Priya8975/post-relay/internal/timeparse"
	"github.com/go-chi/chi/v5"
)

type MetricsSource interface {
	GetDeliveryMetrics(ctx context.Context) (*store.DeliveryMetrics, error)
}

type CursorReader interface {
	Get(ctx context.Context, handle string) (time.Time, bool, error)
}

type ClientCounter interface {
	ClientCount() int
}

type DashboardHandler struct {
	store   MetricsSource
	cursors CursorReader
	hub     ClientCounter
}

func NewDashboardHandler(s MetricsSource, cursors CursorReader, hub ClientCounter) *DashboardHandler {
	return &DashboardHandler{store: s, cursors: cursors, hub: hub}
}

// Summary returns aggregated delivery and subscription counts for the dashboard.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetDeliveryMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	type summaryResponse struct {
		store.DeliveryMetrics
		WebSocketClients int `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, summaryResponse{
		DeliveryMetrics:  *m,
		WebSocketClients: h.hub.ClientCount(),
	})
}

// Cursor returns the creation time of the newest post relayed for an account.
func (h *DashboardHandler) Cursor(w http.ResponseWriter, r *http.Request) {
	handle := domain.NormalizeHandle(chi.URLParam(r, "handle"))
	if handle == "" {
		respondError(w, http.StatusBadRequest, "handle is required")
		return
	}

	t, ok, err := h.cursors.Get(r.Context(), handle)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read cursor")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "no post relayed for this account yet")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"handle":         handle,
		"last_post_time": timeparse.Format(t),
	})
}
