package api

import (
	"net/http"

	"github.com/Priya8975/post-relay/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Store is everything the ops API reads from or writes to Postgres.
type Store interface {
	SubscriptionStore
	DeliveryLog
	MetricsSource
}

// LiveFeed is the websocket hub.
type LiveFeed interface {
	ClientCounter
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}

// NewRouter creates and configures the ops HTTP router.
// tester, when set, sends a test message to every newly subscribed webhook.
func NewRouter(st Store, cursors CursorReader, feed LiveFeed, tester WebhookTester, checks map[string]Check) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Use(corsMiddleware)

	subHandler := NewSubscriptionHandler(st, tester)
	deliveryHandler := NewDeliveryHandler(st)
	dashHandler := NewDashboardHandler(st, cursors, feed)

	r.Get("/ws", feed.HandleWebSocket)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(checks))

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subHandler.Create)
			r.Get("/", subHandler.List)
			r.Get("/{id}", subHandler.Get)
			r.Post("/{id}/reactivate", subHandler.Reactivate)
		})

		r.Get("/deliveries", deliveryHandler.List)
		r.Get("/dashboard", dashHandler.Summary)
		r.Get("/accounts/{handle}/cursor", dashHandler.Cursor)
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
