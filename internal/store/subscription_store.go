package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `id, monitored_account, webhook_url, notify_template, state, disabled_reason, expires_at, created_at, updated_at`

// DefaultSubscriptionTerm is how long a new or reactivated subscription stays live.
const DefaultSubscriptionTerm = "1 month"

func scanSubscription(row pgx.Row) (domain.Subscription, error) {
	var sub domain.Subscription
	var state string
	err := row.Scan(
		&sub.ID, &sub.MonitoredAccount, &sub.WebhookURL, &sub.NotifyTemplate,
		&state, &sub.DisabledReason, &sub.ExpiresAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	sub.State = domain.SubscriptionState(state)
	return sub, err
}

// ListActiveSubscriptions returns every live subscription in creation order.
// Expired rows are not live.
func (s *PostgresStore) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE state = 'active' AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, storeErr("querying active subscriptions", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, storeErr("scanning subscription", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating subscriptions", err)
	}

	return subs, nil
}

// DisableSubscription moves an active subscription to disabled. It reports
// false when the row was already disabled or no longer exists.
func (s *PostgresStore) DisableSubscription(ctx context.Context, id, reason string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET state = 'disabled', disabled_reason = $2, updated_at = NOW()
		WHERE id = $1 AND state = 'active'
	`, id, reason)
	if err != nil {
		return false, storeErr("disabling subscription", err)
	}
	return result.RowsAffected() > 0, nil
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (monitored_account, webhook_url, notify_template, expires_at)
		VALUES ($1, $2, $3, NOW() + $4::interval)
		RETURNING `+subscriptionColumns,
		domain.NormalizeHandle(req.MonitoredAccount), req.WebhookURL, req.NotifyTemplate, DefaultSubscriptionTerm,
	)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("inserting subscription: %w", err)
	}
	return &sub, nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return &sub, nil
}

// ListSubscriptions returns subscriptions with optional handle and state filters.
func (s *PostgresStore) ListSubscriptions(ctx context.Context, handle, state string, limit int) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	args := []any{}
	conditions := []string{}

	if handle != "" {
		args = append(args, domain.NormalizeHandle(handle))
		conditions = append(conditions, fmt.Sprintf("monitored_account = $%d", len(args)))
	}
	if state != "" {
		args = append(args, state)
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)))
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
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ReactivateSubscription re-enables a subscription and renews its term.
// It returns nil when the id does not exist.
func (s *PostgresStore) ReactivateSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET state = 'active', disabled_reason = NULL, expires_at = NOW() + $2::interval, updated_at = NOW()
		WHERE id = $1
		RETURNING `+subscriptionColumns,
		id, DefaultSubscriptionTerm,
	)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reactivating subscription: %w", err)
	}
	return &sub, nil
}
