package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/Priya8975/post-relay/internal/metrics"
	"github.com/Priya8975/post-relay/internal/store"
)

// Job is one message bound for one subscription's webhook.
type Job struct {
	SubscriptionID string
	Handle         string
	Kind           string
	Endpoint       string
	Message        string
	PostURL        string
}

// AttemptRecorder stores the audit trail of deliveries.
type AttemptRecorder interface {
	RecordDeliveryAttempt(ctx context.Context, rec store.DeliveryAttemptRecord) error
}

// Publisher receives live pipeline events.
type Publisher interface {
	Publish(event domain.PipelineEvent)
}

// Deliverer posts messages to subscriber webhooks.
type Deliverer struct {
	httpClient *http.Client
	recorder   AttemptRecorder
	publisher  Publisher
	logger     *slog.Logger
}

// NewDeliverer creates a deliverer. recorder and publisher may be nil.
func NewDeliverer(timeout time.Duration, recorder AttemptRecorder, publisher Publisher, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		recorder:  recorder,
		publisher: publisher,
		logger:    logger,
	}
}

type webhookBody struct {
	Content string `json:"content"`
}

// Deliver posts {"content": message} to endpoint and reports whether the
// endpoint acknowledged it with 200 or 204. It never retries.
func (d *Deliverer) Deliver(ctx context.Context, endpoint, message string) bool {
	status, err := d.post(ctx, endpoint, message)
	return err == nil && isAck(status)
}

// DeliverJob is Deliver plus logging, metrics, and the audit record.
func (d *Deliverer) DeliverJob(ctx context.Context, job Job) bool {
	start := time.Now()
	status, err := d.post(ctx, job.Endpoint, job.Message)
	elapsed := time.Since(start)

	var statusCode *int
	if status != 0 {
		statusCode = &status
	}

	errMsg := ""
	switch {
	case err != nil:
		errMsg = err.Error()
	case !isAck(status):
		errMsg = fmt.Sprintf("unexpected status %d", status)
	}

	result := "success"
	if errMsg != "" {
		result = "failed"
	}

	d.recordAttempt(ctx, job, result, statusCode, elapsed, errMsg)
	metrics.ObserveDelivery(job.Kind, result, elapsed)

	if result == "success" {
		d.logger.Info("delivery successful",
			"subscription_id", job.SubscriptionID,
			"handle", job.Handle,
			"kind", job.Kind,
			"status_code", status,
			"response_time_ms", elapsed.Milliseconds(),
		)
	} else {
		d.logger.Warn("delivery failed",
			"subscription_id", job.SubscriptionID,
			"handle", job.Handle,
			"kind", job.Kind,
			"error", errMsg,
			"status_code", status,
			"response_time_ms", elapsed.Milliseconds(),
		)
	}

	if d.publisher != nil {
		d.publisher.Publish(domain.PipelineEvent{
			Type:           domain.EventDelivery,
			Handle:         job.Handle,
			SubscriptionID: job.SubscriptionID,
			PostURL:        job.PostURL,
			Status:         result,
			Detail:         errMsg,
			Timestamp:      time.Now().UTC(),
		})
	}

	return result == "success"
}

func (d *Deliverer) post(ctx context.Context, endpoint, message string) (int, error) {
	body, err := json.Marshal(webhookBody{Content: message})
	if err != nil {
		return 0, fmt.Errorf("encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain a little so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return resp.StatusCode, nil
}

// recordAttempt appends the result to the delivery log. A failure here is
// logged and never changes the delivery outcome.
func (d *Deliverer) recordAttempt(ctx context.Context, job Job, status string, statusCode *int, elapsed time.Duration, errMsg string) {
	if d.recorder == nil {
		return
	}
	err := d.recorder.RecordDeliveryAttempt(ctx, store.DeliveryAttemptRecord{
		SubscriptionID: job.SubscriptionID,
		Handle:         job.Handle,
		Kind:           job.Kind,
		PostURL:        job.PostURL,
		Status:         status,
		HTTPStatusCode: statusCode,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		ErrorMessage:   errMsg,
	})
	if err != nil {
		d.logger.Error("failed to record delivery attempt",
			"error", err,
			"subscription_id", job.SubscriptionID,
		)
	}
}

func isAck(status int) bool {
	return status == http.StatusOK || status == http.StatusNoContent
}
