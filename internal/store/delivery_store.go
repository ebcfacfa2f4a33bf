package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Priya8975/post-relay/internal/domain"
)

// DeliveryAttemptRecord holds data for inserting a delivery attempt.
type DeliveryAttemptRecord struct {
	SubscriptionID string
	Handle         string
	Kind           string
	PostURL        string
	Status         string
	HTTPStatusCode *int
	ResponseTimeMs int
	ErrorMessage   string
}

// RecordDeliveryAttempt appends one webhook attempt to the audit log.
func (s *PostgresStore) RecordDeliveryAttempt(ctx context.Context, rec DeliveryAttemptRecord) error {
	var postURL *string
	if rec.PostURL != "" {
		postURL = &rec.PostURL
	}

	var errMsg *string
	if rec.ErrorMessage != "" {
		errMsg = &rec.ErrorMessage
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_attempts (subscription_id, handle, kind, post_url, status, http_status_code, response_time_ms, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.SubscriptionID, rec.Handle, rec.Kind, postURL, rec.Status, rec.HTTPStatusCode, rec.ResponseTimeMs, errMsg)
	if err != nil {
		return fmt.Errorf("inserting delivery attempt: %w", err)
	}
	return nil
}

// ListDeliveryAttempts returns delivery attempts with optional filtering.
func (s *PostgresStore) ListDeliveryAttempts(ctx context.Context, subscriptionID, handle, status string, limit int) ([]domain.DeliveryAttempt, error) {
	query := `SELECT id, subscription_id, handle, kind, post_url, status, http_status_code, response_time_ms, error_message, created_at FROM delivery_attempts`
	args := []any{}
	conditions := []string{}

	if subscriptionID != "" {
		args = append(args, subscriptionID)
		conditions = append(conditions, fmt.Sprintf("subscription_id = $%d", len(args)))
	}
	if handle != "" {
		args = append(args, domain.NormalizeHandle(handle))
		conditions = append(conditions, fmt.Sprintf("handle = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery attempts: %w", err)
	}
	defer rows.Close()

	attempts := []domain.DeliveryAttempt{}
	for rows.Next() {
		var a domain.DeliveryAttempt
		err := rows.Scan(
			&a.ID, &a.SubscriptionID, &a.Handle, &a.Kind, &a.PostURL,
			&a.Status, &a.HTTPStatusCode, &a.ResponseTimeMs, &a.ErrorMessage, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery attempt: %w", err)
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}
