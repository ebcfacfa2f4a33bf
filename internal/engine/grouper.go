package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/Priya8975/post-relay/internal/store"
)

// Group is every active subscription that targets one monitored account.
type Group struct {
	Handle        string
	Subscriptions []domain.Subscription
}

type SubscriptionSource interface {
	ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
}

// GroupByAccount groups subscriptions by normalized handle. Groups come out
// in order of each handle's first appearance so credential assignment is
// reproducible for a given input.
func GroupByAccount(subs []domain.Subscription) []Group {
	index := make(map[string]int)
	var groups []Group

	for _, sub := range subs {
		if sub.State != domain.StateActive {
			continue
		}
		h := sub.Handle()
		if h == "" {
			continue
		}
		i, ok := index[h]
		if !ok {
			i = len(groups)
			index[h] = i
			groups = append(groups, Group{Handle: h})
		}
		groups[i].Subscriptions = append(groups[i].Subscriptions, sub)
	}
	return groups
}

// LoadGroups reads the active subscriptions and groups them. Any read failure
// is reported as a store error.
func LoadGroups(ctx context.Context, source SubscriptionSource) ([]Group, error) {
	subs, err := source.ListActiveSubscriptions(ctx)
	if err != nil {
		if errors.Is(err, store.ErrStore) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: loading subscriptions: %w", store.ErrStore, err)
	}
	return GroupByAccount(subs), nil
}
