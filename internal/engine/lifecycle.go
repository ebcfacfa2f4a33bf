package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/Priya8975/post-relay/internal/metrics"
	"github.com/Priya8975/post-relay/internal/worker"
)

// ErrNetworkOutage means the health probe failed while a disablement was
// pending. The rest of the cycle must be abandoned.
var ErrNetworkOutage = errors.New("network outage")

type NetworkProbe interface {
	Check(ctx context.Context) error
}

type SubscriptionDisabler interface {
	DisableSubscription(ctx context.Context, id, reason string) (bool, error)
}

// Dispatcher delivers a batch of independent jobs.
type Dispatcher interface {
	Run(ctx context.Context, jobs []worker.Job) []worker.Result
}

// Lifecycle disables subscriptions whose monitored account is gone for good.
type Lifecycle struct {
	probe      NetworkProbe
	disabler   SubscriptionDisabler
	dispatcher Dispatcher
	publisher  worker.Publisher
	logger     *slog.Logger
}

func NewLifecycle(probe NetworkProbe, disabler SubscriptionDisabler, dispatcher Dispatcher, publisher worker.Publisher, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		probe:      probe,
		disabler:   disabler,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

// HandlePermanent runs the Active -> Disabled transition for every
// subscription in group. The network is probed first and a failed probe
// returns ErrNetworkOutage without touching anything. Otherwise each
// subscriber is sent one error notice and then its row is disabled.
func (l *Lifecycle) HandlePermanent(ctx context.Context, group Group, reason domain.FailureReason) error {
	if err := l.probe.Check(ctx); err != nil {
		metrics.ProbeFailures.Inc()
		return fmt.Errorf("%w: %w", ErrNetworkOutage, err)
	}

	notice := ErrorNotice(group.Handle, reason)
	jobs := make([]worker.Job, 0, len(group.Subscriptions))
	for _, sub := range group.Subscriptions {
		jobs = append(jobs, worker.Job{
			SubscriptionID: sub.ID,
			Handle:         group.Handle,
			Kind:           domain.DeliveryKindError,
			Endpoint:       sub.WebhookURL,
			Message:        notice,
		})
	}
	l.dispatcher.Run(ctx, jobs)

	for _, sub := range group.Subscriptions {
		changed, err := l.disabler.DisableSubscription(ctx, sub.ID, string(reason))
		if err != nil {
			return fmt.Errorf("disabling subscription %s: %w", sub.ID, err)
		}
		if !changed {
			l.logger.Info("subscription already inactive", "subscription_id", sub.ID, "handle", group.Handle)
			continue
		}

		metrics.SubscriptionsDisabled.WithLabelValues(string(reason)).Inc()
		l.logger.Warn("subscription disabled",
			"subscription_id", sub.ID,
			"handle", group.Handle,
			"reason", string(reason),
		)
		if l.publisher != nil {
			l.publisher.Publish(domain.PipelineEvent{
				Type:           domain.EventSubscriptionDisabled,
				Handle:         group.Handle,
				SubscriptionID: sub.ID,
				Detail:         string(reason),
				Timestamp:      time.Now().UTC(),
			})
		}
	}
	return nil
}

// ErrorNotice is the Discord-style message sent when a subscription is disabled.
func ErrorNotice(handle string, reason domain.FailureReason) string {
	switch reason {
	case domain.ReasonAccountNotFound:
		return fmt.Sprintf(":warning: **@%s** could not be found. The account may have been deleted or renamed, so notifications for it have been turned off.", handle)
	case domain.ReasonAccessRestricted:
		return fmt.Sprintf(":lock: **@%s** is private or suspended and can no longer be read, so notifications for it have been turned off.", handle)
	default:
		return fmt.Sprintf(":warning: Notifications for **@%s** have been turned off.", handle)
	}
}

// PostMessage renders a subscription's template for a new post.
func PostMessage(template, postURL string) string {
	return template + "\n" + postURL
}
