package store

import (
	"context"
	"fmt"
)

// DeliveryMetrics holds aggregated delivery and subscription statistics.
type DeliveryMetrics struct {
	TotalDeliveries       int     `json:"total_deliveries"`
	SuccessCount          int     `json:"success_count"`
	FailedCount           int     `json:"failed_count"`
	SuccessRate           float64 `json:"success_rate"`
	AvgResponseMs         float64 `json:"avg_response_ms"`
	ErrorNotices          int     `json:"error_notices"`
	ActiveSubscriptions   int     `json:"active_subscriptions"`
	DisabledSubscriptions int     `json:"disabled_subscriptions"`
	MonitoredAccounts     int     `json:"monitored_accounts"`
}

// GetDeliveryMetrics returns aggregated statistics from the database.
func (s *PostgresStore) GetDeliveryMetrics(ctx context.Context) (*DeliveryMetrics, error) {
	var m DeliveryMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'success') AS success,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COUNT(*) FILTER (WHERE kind = 'error') AS error_notices,
			COALESCE(AVG(response_time_ms) FILTER (WHERE response_time_ms > 0), 0) AS avg_response_ms
		FROM delivery_attempts
	`).Scan(&m.TotalDeliveries, &m.SuccessCount, &m.FailedCount, &m.ErrorNotices, &m.AvgResponseMs)
	if err != nil {
		return nil, fmt.Errorf("querying delivery metrics: %w", err)
	}

	if m.TotalDeliveries > 0 {
		m.SuccessRate = float64(m.SuccessCount) / float64(m.TotalDeliveries) * 100
	}

	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE state = 'active') AS active,
			COUNT(*) FILTER (WHERE state = 'disabled') AS disabled,
			COUNT(DISTINCT monitored_account) FILTER (WHERE state = 'active') AS accounts
		FROM subscriptions
	`).Scan(&m.ActiveSubscriptions, &m.DisabledSubscriptions, &m.MonitoredAccounts)
	if err != nil {
		return nil, fmt.Errorf("querying subscription counts: %w", err)
	}

	return &m, nil
}
